// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package query lists and downloads completed attachments.
//
// Every listed attachment carries a presigned GET URL.  Signing is
// cheap but not free, and a listing page can ask for a thousand of
// them, so signed URLs are kept in an LRU cache for a fraction of
// their lifetime.  A cached URL is always handed out with at least
// (1 - CacheFraction) of its TTL remaining.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
)

// Entry is one listed attachment with its download link.
type Entry struct {
	attachment.Attachment
	Link string
}

// Page is one page of a listing.
type Page struct {
	Page    int
	Size    int
	Total   int
	Entries []Entry
}

// DownloadRequest names a single attachment to download.  The project
// is identified by ProjectID if it is set, and by ProjectName
// otherwise.
type DownloadRequest struct {
	ProjectID   string
	ProjectName string
	EntityType  attachment.EntityType
	EntityID    string
	FileName    string

	// MimeType, if set, overrides the stored content type in the
	// download response.
	MimeType string
}

type cachedURL struct {
	URL     string
	Refresh time.Time
}

// Service answers attachment queries.  Create one with the fields
// below filled in.
type Service struct {
	// Registry holds attachment metadata.  Required.
	Registry attachment.Registry

	// Store signs download URLs.  Required.
	Store attachment.BlobStore

	// Projects checks project access.  Required.
	Projects attachment.ProjectResolver

	// URLTTL is the lifetime of presigned download URLs.  If
	// unset, defaults to 15 minutes.
	URLTTL time.Duration

	// CacheSize is the number of presigned URLs kept.  If unset,
	// defaults to 10000.  A negative value disables the cache.
	CacheSize int

	// CacheFraction is the part of URLTTL a signed URL is reused
	// for.  If unset, defaults to 0.5.
	CacheFraction float64

	// Logger receives query diagnostics.  If unset, uses the
	// logrus standard logger.
	Logger logrus.FieldLogger

	// Clock defines a time source.  Only test code should need to
	// set this.
	Clock clock.Clock

	once  sync.Once
	cache *lru.Cache[string, cachedURL]
}

func (svc *Service) setDefaults() {
	svc.once.Do(func() {
		if svc.URLTTL == time.Duration(0) {
			svc.URLTTL = 15 * time.Minute
		}
		if svc.CacheSize == 0 {
			svc.CacheSize = 10000
		}
		if svc.CacheFraction <= 0 || svc.CacheFraction > 1 {
			svc.CacheFraction = 0.5
		}
		if svc.Logger == nil {
			svc.Logger = logrus.StandardLogger()
		}
		if svc.Clock == nil {
			svc.Clock = clock.New()
		}
		if svc.CacheSize > 0 {
			// Only fails for a non-positive size
			svc.cache, _ = lru.New[string, cachedURL](svc.CacheSize)
		}
	})
}

// List returns one page of a project's attachments, each with a
// presigned download link.
func (svc *Service) List(ctx context.Context, workspace string, query attachment.AttachmentQuery) (Page, error) {
	svc.setDefaults()
	if query.ProjectID == "" {
		return Page{}, attachment.ErrValidation{Field: "project_id", Reason: "is required"}
	}
	if _, err := svc.Projects.Project(ctx, attachment.WorkspaceOf(workspace), query.ProjectID); err != nil {
		return Page{}, err
	}

	found, err := svc.Registry.Find(ctx, query)
	if err != nil {
		return Page{}, err
	}
	page := Page{
		Page:    found.Page,
		Size:    found.Size,
		Total:   found.Total,
		Entries: make([]Entry, len(found.Attachments)),
	}
	for i, att := range found.Attachments {
		link, err := svc.link(ctx, att, "")
		if err != nil {
			return Page{}, err
		}
		page.Entries[i] = Entry{Attachment: att, Link: link}
	}
	return page, nil
}

// Download returns a presigned URL for a single attachment.
func (svc *Service) Download(ctx context.Context, workspace string, req DownloadRequest) (string, error) {
	svc.setDefaults()
	workspace = attachment.WorkspaceOf(workspace)

	var (
		project attachment.Project
		err     error
	)
	switch {
	case req.ProjectID != "":
		project, err = svc.Projects.Project(ctx, workspace, req.ProjectID)
	case req.ProjectName != "":
		project, err = svc.Projects.ResolveProject(ctx, workspace, req.ProjectName)
	default:
		err = attachment.ErrValidation{Field: "container_id", Reason: "is required"}
	}
	if err != nil {
		return "", err
	}
	if req.FileName == "" {
		return "", attachment.ErrValidation{Field: "file_name", Reason: "is required"}
	}

	att, err := svc.Registry.Get(ctx, attachment.Key{
		ProjectID:  project.ID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		FileName:   req.FileName,
	})
	if err != nil {
		return "", err
	}
	return svc.link(ctx, att, req.MimeType)
}

// link returns a presigned GET URL for an attachment, from the cache
// if a fresh enough one is there.
func (svc *Service) link(ctx context.Context, att attachment.Attachment, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = att.MimeType
	}
	// Storage keys are unique per upload, so a replaced attachment
	// never reuses a stale entry
	cacheKey := fmt.Sprintf("%s\x00%s", att.StorageKey, mimeType)
	now := svc.Clock.Now()
	if svc.cache != nil {
		if cached, ok := svc.cache.Get(cacheKey); ok && now.Before(cached.Refresh) {
			return cached.URL, nil
		}
	}

	url, err := svc.Store.PresignGet(ctx, att.StorageKey, mimeType, att.FileName, svc.URLTTL)
	if err != nil {
		svc.Logger.WithFields(logrus.Fields{
			"storage_key": att.StorageKey,
			"err":         err,
		}).Warn("Could not sign download URL")
		if attachment.IsTransient(err) {
			return "", attachment.ErrUnavailable{Err: err}
		}
		return "", err
	}
	if svc.cache != nil {
		reuse := time.Duration(float64(svc.URLTTL) * svc.CacheFraction)
		svc.cache.Add(cacheKey, cachedURL{URL: url, Refresh: now.Add(reuse)})
	}
	return url, nil
}
