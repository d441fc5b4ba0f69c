// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package reclaim deletes orphaned blobs in the background.
//
// Storage keys arrive through Reclaim() when an attachment is
// overwritten or deleted.  The registry row is already gone by then,
// so failures here never reach a client: each key is retried with
// exponential backoff up to a bounded number of attempts, then logged
// and dropped for out-of-band garbage collection.
package reclaim

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
)

var reclaimEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "opik",
		Subsystem: "attachment",
		Name:      "reclaim_events_total",
		Help:      "Orphaned blob deletions by outcome",
	},
	[]string{"event"},
)

// Collectors returns the metrics this package maintains, for the
// caller to register.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{reclaimEvents}
}

// pending is one key waiting to be deleted.
type pending struct {
	Key       string
	Attempts  int
	NotBefore time.Time
	Backoff   *backoff.ExponentialBackOff
}

// Reclaimer is a queue of storage keys deleted by a background loop.
// It implements attachment.Reclaimer.  Create one with the fields
// below filled in, then call Run().
type Reclaimer struct {
	// Store is the blob store objects are deleted from.  Required.
	Store attachment.BlobStore

	// MaxAttempts is the number of deletion attempts per key
	// before giving up.  If unset, defaults to 5.
	MaxAttempts int

	// Interval is how often the loop checks for keys whose retry
	// delay has passed.  If unset, defaults to 5 seconds.
	Interval time.Duration

	// InitialBackoff and MaxBackoff bound the retry delay.  If
	// unset, default to 1 second and 5 minutes.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Logger receives reclamation failures.  If unset, uses the
	// logrus standard logger.
	Logger logrus.FieldLogger

	// Clock defines a time source.  Only test code should need to
	// set this.  If unset, uses a time source backed by real
	// wall-clock time.
	Clock clock.Clock

	once  sync.Once
	sem   sync.Mutex
	queue []*pending
	wake  chan struct{}
}

// setDefaults sets default values for any Reclaimer fields that are
// uninitialized.
func (r *Reclaimer) setDefaults() {
	r.once.Do(func() {
		if r.MaxAttempts == 0 {
			r.MaxAttempts = 5
		}
		if r.Interval == time.Duration(0) {
			r.Interval = 5 * time.Second
		}
		if r.InitialBackoff == time.Duration(0) {
			r.InitialBackoff = time.Second
		}
		if r.MaxBackoff == time.Duration(0) {
			r.MaxBackoff = 5 * time.Minute
		}
		if r.Logger == nil {
			r.Logger = logrus.StandardLogger()
		}
		if r.Clock == nil {
			r.Clock = clock.New()
		}
		r.wake = make(chan struct{}, 1)
	})
}

// Reclaim queues storage keys for deletion.  It never blocks on the
// store.
func (r *Reclaimer) Reclaim(keys ...string) {
	r.setDefaults()
	if len(keys) == 0 {
		return
	}
	now := r.Clock.Now()
	r.sem.Lock()
	for _, key := range keys {
		if key == "" {
			continue
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.InitialBackoff
		b.MaxInterval = r.MaxBackoff
		b.Reset()
		r.queue = append(r.queue, &pending{Key: key, NotBefore: now, Backoff: b})
	}
	r.sem.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of keys not yet deleted or dropped.
func (r *Reclaimer) Pending() int {
	r.setDefaults()
	r.sem.Lock()
	defer r.sem.Unlock()
	return len(r.queue)
}

// Pass makes one deletion attempt for every key whose retry delay has
// passed, and returns the number of keys deleted.
func (r *Reclaimer) Pass(ctx context.Context) int {
	r.setDefaults()
	now := r.Clock.Now()

	r.sem.Lock()
	var due, later []*pending
	for _, p := range r.queue {
		if p.NotBefore.After(now) {
			later = append(later, p)
		} else {
			due = append(due, p)
		}
	}
	r.queue = later
	r.sem.Unlock()

	deleted := 0
	var retry []*pending
	for _, p := range due {
		if ctx.Err() != nil {
			retry = append(retry, p)
			continue
		}
		err := r.Store.Delete(ctx, p.Key)
		if err == nil {
			deleted++
			reclaimEvents.WithLabelValues("reclaimed").Inc()
			continue
		}
		p.Attempts++
		log := r.Logger.WithFields(logrus.Fields{
			"key":      p.Key,
			"attempts": p.Attempts,
			"err":      err,
		})
		if p.Attempts >= r.MaxAttempts {
			log.Error("Giving up on orphaned blob")
			reclaimEvents.WithLabelValues("dropped").Inc()
			continue
		}
		log.Warn("Could not delete orphaned blob")
		reclaimEvents.WithLabelValues("retried").Inc()
		p.NotBefore = now.Add(p.Backoff.NextBackOff())
		retry = append(retry, p)
	}

	if len(retry) > 0 {
		r.sem.Lock()
		r.queue = append(r.queue, retry...)
		r.sem.Unlock()
	}
	return deleted
}

// Run deletes queued keys until the provided context is cancelled.
// Keys are attempted as soon as they are queued, and retried on every
// Interval tick once their backoff delay has passed.
func (r *Reclaimer) Run(ctx context.Context) error {
	r.setDefaults()
	ticker := r.Clock.Ticker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
			r.Pass(ctx)
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}
