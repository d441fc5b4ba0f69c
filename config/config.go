// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package config holds the settings of the attachment daemon.  A
// configuration is a YAML document such as
//
//     http: ":8080"
//     registry: "postgres://postgres@localhost/attachments"
//     blobs: "s3:opik-attachments"
//     upload:
//       session_ttl: 1h
//       part_size: 8388608
//     s3:
//       region: us-east-1
//     projects:
//       - workspace: default
//         name: demo
//
// Every field may be omitted; Default() describes a self-contained
// in-memory daemon.
package config

import (
	"io/ioutil"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// Config is the complete daemon configuration.
type Config struct {
	// HTTP is the [ip]:port the REST API listens on.
	HTTP string `mapstructure:"http"`

	// PublicURL is the externally visible base URL of the daemon.
	// The in-memory blob store builds its presigned URLs under it.
	PublicURL string `mapstructure:"public_url"`

	// Registry is the "impl[:address]" of the metadata registry.
	Registry string `mapstructure:"registry"`

	// Blobs is the "impl[:address]" of the object store.
	Blobs string `mapstructure:"blobs"`

	// Secret signs in-memory blob store URLs.  If empty a random
	// secret is chosen at startup.
	Secret string `mapstructure:"secret"`

	// LogRequests enables the per-request access log.
	LogRequests bool `mapstructure:"log_requests"`

	// LogLevel is a logrus level name.
	LogLevel string `mapstructure:"log_level"`

	Upload   Upload    `mapstructure:"upload"`
	Query    Query     `mapstructure:"query"`
	Reclaim  Reclaim   `mapstructure:"reclaim"`
	S3       S3        `mapstructure:"s3"`
	Projects []Project `mapstructure:"projects"`
}

// Upload configures the upload coordinator.  Zero values take the
// coordinator's defaults.
type Upload struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	PartSize      int64         `mapstructure:"part_size"`
	MaxFileSize   int64         `mapstructure:"max_file_size"`
	MaxSingleSize int64         `mapstructure:"max_single_size"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// Query configures the attachment query service.
type Query struct {
	URLTTL    time.Duration `mapstructure:"url_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

// Reclaim configures orphaned blob deletion.
type Reclaim struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

// S3 holds the connection settings shared by the "s3" and "minio"
// object stores.
type S3 struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
	Secure    bool   `mapstructure:"secure"`
}

// Project is a project the in-memory project resolver knows about at
// startup.  If ID is empty, the ID is derived from the workspace and
// name.
type Project struct {
	Workspace string `mapstructure:"workspace"`
	Name      string `mapstructure:"name"`
	ID        string `mapstructure:"id"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HTTP:     ":5980",
		Registry: "memory",
		Blobs:    "memory",
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults.
func Load(filename string) (Config, error) {
	cfg := Default()
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return cfg, err
	}
	err = cfg.Parse(bytes)
	return cfg, err
}

// Parse decodes a YAML document into cfg.  Fields the document does
// not mention keep their current values.
func (cfg *Config) Parse(document []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(document, &raw); err != nil {
		return err
	}
	return Decode(cfg, raw)
}

// Decode copies a generic map, as produced by a YAML or JSON parser,
// into a configuration structure.  Strings are accepted for numbers
// and booleans, and durations may be written as "90s" or "1h".
func Decode(result interface{}, options map[string]interface{}) error {
	config := mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			secondsToDuration,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           result,
	}
	decoder, err := mapstructure.NewDecoder(&config)
	if err == nil {
		err = decoder.Decode(options)
	}
	return err
}

// secondsToDuration reads a bare YAML number as a count of seconds.
func secondsToDuration(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}
