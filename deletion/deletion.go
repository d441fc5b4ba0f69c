// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package deletion removes attachments in batches.
//
// The registry is the source of truth: once Delete() returns, the
// attachments no longer appear in listings.  Their blobs are handed
// to a Reclaimer and removed in the background, and a failure there
// never fails the deletion.
package deletion

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
)

var deletedAttachments = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "opik",
		Subsystem: "attachment",
		Name:      "deleted_total",
		Help:      "Attachments removed by batch deletion",
	},
)

// Collectors returns the metrics this package maintains.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{deletedAttachments}
}

// Service deletes attachments.
type Service struct {
	// Registry holds attachment metadata.  Required.
	Registry attachment.Registry

	// Projects checks project access.  Required.
	Projects attachment.ProjectResolver

	// Reclaimer deletes the blobs of removed attachments.  If
	// unset, the blobs are leaked.
	Reclaimer attachment.Reclaimer

	// Logger receives deletion events.  If unset, uses the logrus
	// standard logger.
	Logger logrus.FieldLogger
}

// Delete removes every attachment matching req and returns how many
// were removed.  If req.ProjectID is empty, the request applies to
// every project in the workspace.
func (svc *Service) Delete(ctx context.Context, workspace string, req attachment.DeletionRequest) (int, error) {
	logger := svc.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	workspace = attachment.WorkspaceOf(workspace)

	for _, entity := range req.Entities {
		if entity.EntityType == attachment.NoEntity {
			return 0, attachment.ErrValidation{Field: "entity_type", Reason: "is required"}
		}
		if entity.EntityID == "" {
			return 0, attachment.ErrValidation{Field: "entity_id", Reason: "is required"}
		}
	}
	if len(req.Entities) == 0 {
		return 0, nil
	}

	var projects []attachment.Project
	if req.ProjectID != "" {
		project, err := svc.Projects.Project(ctx, workspace, req.ProjectID)
		if err != nil {
			return 0, err
		}
		projects = []attachment.Project{project}
	} else {
		var err error
		projects, err = svc.Projects.Projects(ctx, workspace)
		if err != nil {
			return 0, err
		}
	}

	total := 0
	for _, project := range projects {
		batch := req
		batch.ProjectID = project.ID
		removed, err := svc.Registry.DeleteBatch(ctx, batch)
		if err != nil {
			// Projects already processed stay deleted; the
			// request is idempotent, so the caller can retry
			if attachment.IsTransient(err) {
				return total, attachment.ErrUnavailable{Err: err}
			}
			return total, err
		}
		if len(removed) == 0 {
			continue
		}
		keys := make([]string, len(removed))
		for i, att := range removed {
			keys[i] = att.StorageKey
		}
		if svc.Reclaimer != nil {
			svc.Reclaimer.Reclaim(keys...)
		}
		total += len(removed)
		deletedAttachments.Add(float64(len(removed)))
		logger.WithFields(logrus.Fields{
			"project_id": project.ID,
			"count":      len(removed),
		}).Debug("Deleted attachments")
	}
	return total, nil
}
