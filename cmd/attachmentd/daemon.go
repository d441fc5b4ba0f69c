// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/backend"
	"github.com/comet-ml/opik-sub005/config"
	"github.com/comet-ml/opik-sub005/deletion"
	"github.com/comet-ml/opik-sub005/memory"
	"github.com/comet-ml/opik-sub005/query"
	"github.com/comet-ml/opik-sub005/reclaim"
	"github.com/comet-ml/opik-sub005/restserver"
	"github.com/comet-ml/opik-sub005/upload"
)

// shutdownGrace bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownGrace = 10 * time.Second

// daemon holds the wired services of one attachmentd process.
type daemon struct {
	Config    config.Config
	Blobs     attachment.BlobStore
	Projects  *memory.Projects
	Uploads   *upload.Coordinator
	Queries   *query.Service
	Deletion  *deletion.Service
	Reclaimer *reclaim.Reclaimer
	Metrics   *prometheus.Registry
	Logger    *logrus.Logger
}

// newDaemon creates the storage backends and the services over them.
func newDaemon(ctx context.Context, cfg config.Config, registryBackend, blobBackend backend.Backend, logger *logrus.Logger) (*daemon, error) {
	registry, err := registryBackend.Registry()
	if err != nil {
		return nil, err
	}
	blobs, err := blobBackend.BlobStore(ctx, cfg.PublicURL, []byte(cfg.Secret), cfg.S3)
	if err != nil {
		return nil, err
	}

	// The daemon owns no project catalog of its own; projects come
	// from the configuration, and names not listed there are created
	// on first use.  Project IDs are derived from names, so they
	// survive a restart.
	projects := memory.NewProjects()
	projects.AutoCreate = true
	for _, project := range cfg.Projects {
		workspace := attachment.WorkspaceOf(project.Workspace)
		if project.ID == "" {
			projects.Add(workspace, project.Name)
		} else if _, err := projects.AddWithID(workspace, project.Name, project.ID); err != nil {
			return nil, err
		}
	}

	reclaimer := &reclaim.Reclaimer{
		Store:       blobs,
		MaxAttempts: cfg.Reclaim.MaxAttempts,
		Interval:    cfg.Reclaim.Interval,
		Logger:      logger,
	}
	d := &daemon{
		Config:    cfg,
		Blobs:     blobs,
		Projects:  projects,
		Reclaimer: reclaimer,
		Logger:    logger,
		Uploads: &upload.Coordinator{
			Registry:      registry,
			Store:         blobs,
			Projects:      projects,
			Reclaimer:     reclaimer,
			SessionTTL:    cfg.Upload.SessionTTL,
			SweepInterval: cfg.Upload.SweepInterval,
			PartSize:      cfg.Upload.PartSize,
			MaxFileSize:   cfg.Upload.MaxFileSize,
			MaxSingleSize: cfg.Upload.MaxSingleSize,
			RetryAttempts: cfg.Upload.RetryAttempts,
			Logger:        logger,
		},
		Queries: &query.Service{
			Registry:  registry,
			Store:     blobs,
			Projects:  projects,
			URLTTL:    cfg.Query.URLTTL,
			CacheSize: cfg.Query.CacheSize,
			Logger:    logger,
		},
		Deletion: &deletion.Service{
			Registry:  registry,
			Projects:  projects,
			Reclaimer: reclaimer,
			Logger:    logger,
		},
	}
	if mem, isMemory := blobs.(*memory.BlobStore); isMemory {
		mem.MaxPartSize = d.Uploads.MaxPartSize()
	}
	d.Metrics, err = d.newMetrics()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Handler builds the complete HTTP handler: the REST API, /metrics,
// the in-memory blob store's presigned URLs if that store is in use,
// and the negroni middleware around them.
func (d *daemon) Handler() http.Handler {
	r := mux.NewRouter()
	if blobs, isHandler := d.Blobs.(http.Handler); isHandler {
		r.PathPrefix("/blob/").Handler(http.StripPrefix("/blob/", blobs))
	}
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	restserver.PopulateRouter(r.PathPrefix(restserver.Prefix).Subrouter(), restserver.API{
		Uploads:  d.Uploads,
		Queries:  d.Queries,
		Deletion: d.Deletion,
		Logger:   d.Logger,
	})

	recovery := negroni.NewRecovery()
	recovery.Logger = d.Logger
	recovery.PrintStack = false
	n := negroni.New(recovery)
	if d.Config.LogRequests {
		reqLogger := negroni.NewLogger()
		reqLogger.ALogger = &logrus.Logger{
			Out:       d.Logger.Out,
			Formatter: d.Logger.Formatter,
			Hooks:     d.Logger.Hooks,
			Level:     logrus.DebugLevel,
		}
		n.Use(reqLogger)
	}
	n.UseHandler(r)
	return n
}

// Serve runs the HTTP server and the background loops until ctx is
// cancelled, then shuts the server down.
func (d *daemon) Serve(ctx context.Context) error {
	server := &http.Server{Addr: d.Config.HTTP, Handler: d.Handler()}
	loops, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.run(loops, "sweep", d.Uploads.Run)
	go d.run(loops, "reclaim", d.Reclaimer.Run)
	go d.run(loops, "observe", d.observe)

	errs := make(chan error, 1)
	go func() {
		d.Logger.WithFields(logrus.Fields{
			"http":  d.Config.HTTP,
			"blobs": d.Config.Blobs,
		}).Info("Serving attachment API")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		d.Logger.WithFields(logrus.Fields{
			"err": err,
		}).Error("HTTP server failed")
		return err
	case <-ctx.Done():
	}

	d.Logger.Info("Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()
	return server.Shutdown(shutdownCtx)
}

// run runs one background loop, logging if it stops with an error.
func (d *daemon) run(ctx context.Context, name string, loop func(context.Context) error) {
	if err := loop(ctx); err != nil && ctx.Err() == nil {
		d.Logger.WithFields(logrus.Fields{
			"loop": name,
			"err":  err,
		}).Error("Background loop failed")
	}
}
