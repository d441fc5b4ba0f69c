// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package upload coordinates attachment uploads.
//
// A multipart upload starts with StartUpload(), which asks the blob
// store for a multipart upload and one presigned PUT URL per part.
// The client uploads the parts directly to the store and then calls
// CompleteUpload() with the part ETags; the coordinator finalizes the
// object and records it in the registry.  Sessions that are never
// completed are aborted by Sweep() once their TTL passes.
//
// Small files can skip the dance with UploadSingle().
package upload

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
)

var uploadEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "opik",
		Subsystem: "attachment",
		Name:      "upload_events_total",
		Help:      "Upload session lifecycle events",
	},
	[]string{"event"},
)

// Collectors returns the metrics this package maintains, for the
// caller to register.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{uploadEvents}
}

// Coordinator orchestrates the upload lifecycle.  Create one with the
// fields below filled in; call Run() in a goroutine to expire
// abandoned sessions.
type Coordinator struct {
	// Registry records completed attachments.  Required.
	Registry attachment.Registry

	// Store holds the blobs.  Required.
	Store attachment.BlobStore

	// Projects resolves project names.  Required.
	Projects attachment.ProjectResolver

	// Reclaimer receives storage keys of replaced attachments.
	// If unset, replaced blobs are leaked.
	Reclaimer attachment.Reclaimer

	// SessionTTL is how long a started upload may stay
	// incomplete.  Part URLs are valid for the same time.  If
	// unset, defaults to 1 hour.
	SessionTTL time.Duration

	// SweepInterval is how often Run() expires sessions.  If
	// unset, defaults to 1 minute.
	SweepInterval time.Duration

	// PartSize is the preferred multipart part size.  It may grow
	// for very large files.  If unset, defaults to 5 MiB.
	PartSize int64

	// MaxFileSize is the largest multipart upload accepted.  If
	// unset, defaults to 10 GiB.
	MaxFileSize int64

	// MaxSingleSize is the largest single-shot upload accepted.
	// If unset, defaults to 5 MiB.
	MaxSingleSize int64

	// RetryAttempts bounds the attempts made for a store call that
	// fails transiently.  If unset, defaults to 4.
	RetryAttempts int

	// RetryInitial and RetryMax bound the delay between retries.
	// If unset, default to 100 milliseconds and 2 seconds.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// Logger receives lifecycle events.  If unset, uses the
	// logrus standard logger.
	Logger logrus.FieldLogger

	// Clock defines a time source.  Only test code should need to
	// set this.  If unset, uses a time source backed by real
	// wall-clock time.
	Clock clock.Clock

	once     sync.Once
	sessions *arena
}

// setDefaults sets default values for any Coordinator fields that are
// uninitialized.
func (c *Coordinator) setDefaults() {
	c.once.Do(func() {
		if c.SessionTTL == time.Duration(0) {
			c.SessionTTL = time.Hour
		}
		if c.SweepInterval == time.Duration(0) {
			c.SweepInterval = time.Minute
		}
		if c.PartSize == 0 {
			c.PartSize = 5 << 20
		}
		if c.MaxFileSize == 0 {
			c.MaxFileSize = 10 << 30
		}
		if c.MaxSingleSize == 0 {
			c.MaxSingleSize = 5 << 20
		}
		if c.RetryAttempts == 0 {
			c.RetryAttempts = 4
		}
		if c.RetryInitial == time.Duration(0) {
			c.RetryInitial = 100 * time.Millisecond
		}
		if c.RetryMax == time.Duration(0) {
			c.RetryMax = 2 * time.Second
		}
		if c.Logger == nil {
			c.Logger = logrus.StandardLogger()
		}
		if c.Clock == nil {
			c.Clock = clock.New()
		}
		c.sessions = newArena()
	})
}

// MaxPartSize returns the largest part size any upload within
// MaxFileSize is asked to send.
func (c *Coordinator) MaxPartSize() int64 {
	c.setDefaults()
	_, partSize := attachment.PartPlan(c.MaxFileSize, c.PartSize)
	return partSize
}

// Summary is a snapshot of the session arena.
type Summary struct {
	// Sessions is the number of started, uncompleted uploads.
	Sessions int

	// Overdue is the number of those past their TTL that the
	// sweep has not removed yet.
	Overdue int
}

// Summarize reports in-flight session counts.
func (c *Coordinator) Summarize() Summary {
	c.setDefaults()
	total, overdue := c.sessions.count(c.Clock.Now())
	return Summary{Sessions: total, Overdue: overdue}
}

// Run expires abandoned sessions until the provided context is
// cancelled, then returns nil.
func (c *Coordinator) Run(ctx context.Context) error {
	c.setDefaults()
	ticker := c.Clock.Ticker(c.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
