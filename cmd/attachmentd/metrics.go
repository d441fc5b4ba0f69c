// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/comet-ml/opik-sub005/deletion"
	"github.com/comet-ml/opik-sub005/reclaim"
	"github.com/comet-ml/opik-sub005/upload"
)

// observeInterval is how often the summary gauges are refreshed.
const observeInterval = 15 * time.Second

var sessionSummary = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "opik",
		Subsystem: "attachment",
		Name:      "upload_sessions",
		Help:      "Summary of in-flight upload sessions",
	},
	[]string{"state"},
)

var reclaimPending = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "opik",
		Subsystem: "attachment",
		Name:      "reclaim_pending",
		Help:      "Orphaned blobs waiting to be deleted",
	},
)

// newMetrics creates the registry served at /metrics.
func (d *daemon) newMetrics() (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		sessionSummary,
		reclaimPending,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	}
	collectors = append(collectors, upload.Collectors()...)
	collectors = append(collectors, reclaim.Collectors()...)
	collectors = append(collectors, deletion.Collectors()...)
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// observe refreshes the summary gauges until ctx is cancelled.
func (d *daemon) observe(ctx context.Context) error {
	ticker := time.NewTicker(observeInterval)
	defer ticker.Stop()
	for {
		d.record()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *daemon) record() {
	summary := d.Uploads.Summarize()
	sessionSummary.With(prometheus.Labels{"state": "open"}).Set(float64(summary.Sessions))
	sessionSummary.With(prometheus.Labels{"state": "overdue"}).Set(float64(summary.Overdue))
	reclaimPending.Set(float64(d.Reclaimer.Pending()))
}
