// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Attachmentd serves the attachment upload API.  It coordinates
// multipart uploads into an object store, records completed uploads in
// a metadata registry, and hands out presigned download links.  The
// file bytes never pass through the daemon unless the in-memory object
// store is selected, in which case it also serves the presigned URLs.
//
//     attachmentd --config attachmentd.yaml --registry postgres://localhost/opik --blobs s3:opik-attachments
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/comet-ml/opik-sub005/backend"
	"github.com/comet-ml/opik-sub005/config"
)

func main() {
	registry := backend.Backend{Implementation: "memory"}
	blobs := backend.Backend{Implementation: "memory"}

	app := cli.NewApp()
	app.Name = "attachmentd"
	app.Usage = "serve the attachment upload API"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Usage:  "global configuration YAML file",
			EnvVar: "ATTACHMENTD_CONFIG",
		},
		cli.StringFlag{
			Name:  "http",
			Usage: "[ip]:port for HTTP REST interface",
		},
		cli.StringFlag{
			Name:  "public-url",
			Usage: "externally visible base URL, for in-memory blob links",
		},
		cli.GenericFlag{
			Name:  "registry",
			Value: &registry,
			Usage: "impl[:address] of the metadata registry",
		},
		cli.GenericFlag{
			Name:  "blobs",
			Value: &blobs,
			Usage: "impl[:address] of the object store",
		},
		cli.BoolFlag{
			Name:  "log-requests",
			Usage: "log all requests",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "minimum level of log messages",
		},
	}
	app.Action = func(c *cli.Context) error {
		cfg, err := loadConfig(c, &registry, &blobs)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"err": err,
			}).Fatal("Could not load configuration")
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		daemon, err := newDaemon(ctx, cfg, registry, blobs, logrus.StandardLogger())
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"err":      err,
				"registry": registry.Implementation,
				"blobs":    blobs.String(),
			}).Fatal("Could not create storage backends")
			return err
		}
		return daemon.Serve(ctx)
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and overlays the
// command-line flags on it.  Backend flags given on the command line
// win over the file.
func loadConfig(c *cli.Context, registry, blobs *backend.Backend) (config.Config, error) {
	cfg := config.Default()
	if filename := c.String("config"); filename != "" {
		var err error
		cfg, err = config.Load(filename)
		if err != nil {
			return cfg, err
		}
	}
	if c.IsSet("http") {
		cfg.HTTP = c.String("http")
	}
	if c.IsSet("public-url") {
		cfg.PublicURL = c.String("public-url")
	}
	if c.IsSet("log-requests") {
		cfg.LogRequests = c.Bool("log-requests")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if !c.IsSet("registry") {
		if err := registry.Set(cfg.Registry); err != nil {
			return cfg, err
		}
	}
	if !c.IsSet("blobs") {
		if err := blobs.Set(cfg.Blobs); err != nil {
			return cfg, err
		}
	}
	cfg.Registry = registry.String()
	cfg.Blobs = blobs.String()
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + hostPort(cfg.HTTP)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	logrus.SetLevel(level)
	return cfg, nil
}

// hostPort fills in "localhost" for a listen address with no host.
func hostPort(bind string) string {
	if len(bind) > 0 && bind[0] == ':' {
		return "localhost" + bind
	}
	return bind
}
