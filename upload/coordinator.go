// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package upload

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
)

// prepare validates an upload target and resolves its project.
func (c *Coordinator) prepare(ctx context.Context, workspace string, info attachment.AttachmentInfo, size int64) (attachment.Project, error) {
	if err := info.Validate(); err != nil {
		return attachment.Project{}, err
	}
	if size < 0 {
		return attachment.Project{}, attachment.ErrValidation{Field: "file_size", Reason: "must not be negative"}
	}
	return c.Projects.ResolveProject(ctx, workspace, info.ProjectName)
}

// StartUpload begins a multipart upload.  The returned session
// carries only the upload ID, one presigned PUT URL per part, and the
// size every part but the last must have.
func (c *Coordinator) StartUpload(ctx context.Context, workspace string, info attachment.AttachmentInfo, size int64) (attachment.UploadSession, error) {
	c.setDefaults()
	workspace = attachment.WorkspaceOf(workspace)
	if size == 0 {
		return attachment.UploadSession{}, attachment.ErrValidation{Field: "file_size", Reason: "must be positive"}
	}
	project, err := c.prepare(ctx, workspace, info, size)
	if err != nil {
		return attachment.UploadSession{}, err
	}
	if size > c.MaxFileSize {
		return attachment.UploadSession{}, attachment.ErrQuota{Size: size, Limit: c.MaxFileSize}
	}

	count, partSize := attachment.PartPlan(size, c.PartSize)
	key := attachment.StorageKey(project.ID, info, uuid.NewV4().String())
	storeUploadID, err := retry(ctx, c, "initiate", func() (string, error) {
		return c.Store.InitiateMultipart(ctx, key, info.MimeType)
	})
	if err != nil {
		return attachment.UploadSession{}, unavailable(err)
	}

	urls := make([]string, count)
	for i := range urls {
		partNumber := i + 1
		urls[i], err = retry(ctx, c, "presign", func() (string, error) {
			return c.Store.PresignPart(ctx, key, storeUploadID, partNumber, c.SessionTTL)
		})
		if err != nil {
			c.abort(ctx, key, storeUploadID)
			return attachment.UploadSession{}, unavailable(err)
		}
	}

	now := c.Clock.Now()
	s := &session{
		UploadSession: attachment.UploadSession{
			UploadID:   uuid.NewV4().String(),
			StorageKey: key,
			PartURLs:   urls,
			PartSize:   partSize,
			CreatedAt:  now,
			ExpiresAt:  now.Add(c.SessionTTL),
			State:      attachment.Started,
		},
		Workspace:     workspace,
		ProjectID:     project.ID,
		Info:          info,
		SizeBytes:     size,
		StoreUploadID: storeUploadID,
	}
	c.sessions.put(s)
	uploadEvents.WithLabelValues("started").Inc()
	c.Logger.WithFields(logrus.Fields{
		"upload_id":  s.UploadID,
		"project_id": project.ID,
		"file_name":  info.FileName,
		"parts":      count,
	}).Debug("Started upload")

	return attachment.UploadSession{
		UploadID: s.UploadID,
		PartURLs: append([]string(nil), urls...),
		PartSize: partSize,
	}, nil
}

// CompleteUpload finalizes a multipart upload with the part ETags the
// client collected and records the attachment.
//
// The first call for an upload ID claims the session; any concurrent
// or later call gets ErrNoSuchUpload.  A part list that is not exactly
// 1..N, or that the store rejects, gets ErrConflict and the session is
// gone.  If the store keeps failing transiently the session is put
// back and the caller gets ErrUnavailable and may try again.  The
// object the store assembles must be exactly the declared size, or it
// is discarded with ErrQuota or ErrConflict.
func (c *Coordinator) CompleteUpload(ctx context.Context, workspace, uploadID string, parts []attachment.Part) (attachment.Attachment, error) {
	c.setDefaults()
	workspace = attachment.WorkspaceOf(workspace)

	s, ok := c.sessions.claim(uploadID)
	if !ok {
		return attachment.Attachment{}, attachment.ErrNoSuchUpload{UploadID: uploadID}
	}
	if s.Workspace != workspace {
		c.sessions.put(s)
		return attachment.Attachment{}, attachment.ErrForbidden
	}
	if c.Clock.Now().After(s.ExpiresAt) {
		// The sweep has not got to it yet; behave as if it had
		c.expire(ctx, s)
		return attachment.Attachment{}, attachment.ErrNoSuchUpload{UploadID: uploadID}
	}

	sorted := append([]attachment.Part(nil), parts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})
	if reason := checkParts(sorted, len(s.PartURLs)); reason != "" {
		c.conflict(ctx, s)
		return attachment.Attachment{}, attachment.ErrConflict{UploadID: uploadID, Reason: reason}
	}

	size, err := retry(ctx, c, "complete", func() (int64, error) {
		return c.Store.CompleteMultipart(ctx, s.StorageKey, s.StoreUploadID, sorted)
	})
	if err == attachment.ErrNoSuchStoreUpload {
		// An earlier attempt may have committed and lost its reply
		size, err = c.committed(ctx, s)
	}
	switch {
	case err == attachment.ErrPartsRejected:
		c.conflict(ctx, s)
		return attachment.Attachment{}, attachment.ErrConflict{UploadID: uploadID, Reason: "store rejected the part ETags"}
	case err == attachment.ErrNoSuchStoreUpload:
		uploadEvents.WithLabelValues("lost").Inc()
		c.reclaim(s.StorageKey)
		return attachment.Attachment{}, attachment.ErrNoSuchUpload{UploadID: uploadID}
	case err != nil:
		// Either transient failures ran out of retries, or
		// something unexpected; the client may retry
		c.sessions.put(s)
		uploadEvents.WithLabelValues("unavailable").Inc()
		c.Logger.WithFields(logrus.Fields{
			"upload_id": uploadID,
			"err":       err,
		}).Warn("Could not complete upload")
		return attachment.Attachment{}, unavailable(err)
	}
	if err := c.checkSize(s, size); err != nil {
		uploadEvents.WithLabelValues("conflicted").Inc()
		c.reclaim(s.StorageKey)
		c.Logger.WithFields(logrus.Fields{
			"upload_id": uploadID,
			"declared":  s.SizeBytes,
			"size":      size,
		}).Info("Discarded upload of the wrong size")
		return attachment.Attachment{}, err
	}

	info := s.Info
	att := attachment.Attachment{
		ID:         uuid.NewV4().String(),
		FileName:   info.FileName,
		ProjectID:  s.ProjectID,
		EntityType: info.EntityType,
		EntityID:   info.EntityID,
		MimeType:   info.MimeType,
		SizeBytes:  size,
		StorageKey: s.StorageKey,
		UploadedAt: c.Clock.Now().UTC(),
	}
	if err := c.record(ctx, att); err != nil {
		return attachment.Attachment{}, err
	}
	uploadEvents.WithLabelValues("completed").Inc()
	return att, nil
}

// checkParts returns a reason the sorted part list is not exactly
// 1..n, or an empty string if it is.
func checkParts(parts []attachment.Part, n int) string {
	if len(parts) != n {
		return fmt.Sprintf("expected %d parts, got %d", n, len(parts))
	}
	for i, part := range parts {
		if part.PartNumber != i+1 {
			return fmt.Sprintf("expected part %d, got part %d", i+1, part.PartNumber)
		}
		if part.ETag == "" {
			return fmt.Sprintf("part %d has no ETag", part.PartNumber)
		}
	}
	return ""
}

// committed finds the object of a multipart upload the store no
// longer knows, returning its size.  If there is no object it returns
// ErrNoSuchStoreUpload.
func (c *Coordinator) committed(ctx context.Context, s *session) (int64, error) {
	size, err := retry(ctx, c, "stat", func() (int64, error) {
		return c.Store.Stat(ctx, s.StorageKey)
	})
	if err == attachment.ErrNoSuchObject {
		return 0, attachment.ErrNoSuchStoreUpload
	}
	return size, err
}

// checkSize compares the size of an assembled object with the size
// declared when its upload started.
func (c *Coordinator) checkSize(s *session, size int64) error {
	if size > c.MaxFileSize {
		return attachment.ErrQuota{Size: size, Limit: c.MaxFileSize}
	}
	if size != s.SizeBytes {
		return attachment.ErrConflict{
			UploadID: s.UploadID,
			Reason:   fmt.Sprintf("uploaded %d bytes, declared %d", size, s.SizeBytes),
		}
	}
	return nil
}

// record upserts a new attachment and hands the blob of any record it
// replaced to the reclaimer.  If the registry fails, the new blob is
// itself orphaned and reclaimed, so nothing partial survives.
func (c *Coordinator) record(ctx context.Context, att attachment.Attachment) error {
	replaced, err := c.Registry.Upsert(ctx, att)
	if err != nil {
		c.Logger.WithFields(logrus.Fields{
			"storage_key": att.StorageKey,
			"err":         err,
		}).Error("Could not record attachment")
		c.reclaim(att.StorageKey)
		return unavailable(err)
	}
	if replaced != nil && replaced.StorageKey != att.StorageKey {
		c.reclaim(replaced.StorageKey)
	}
	return nil
}

func (c *Coordinator) reclaim(key string) {
	if c.Reclaimer != nil {
		c.Reclaimer.Reclaim(key)
	}
}

// conflict drops a session whose part list cannot be completed.
func (c *Coordinator) conflict(ctx context.Context, s *session) {
	uploadEvents.WithLabelValues("conflicted").Inc()
	c.abort(ctx, s.StorageKey, s.StoreUploadID)
}

// abort discards a multipart upload at the store.  This is
// best-effort; the store's own lifecycle rules catch what it misses.
func (c *Coordinator) abort(ctx context.Context, key, storeUploadID string) {
	_, err := retry(ctx, c, "abort", func() (struct{}, error) {
		return struct{}{}, c.Store.AbortMultipart(ctx, key, storeUploadID)
	})
	if err != nil && err != attachment.ErrNoSuchStoreUpload {
		c.Logger.WithFields(logrus.Fields{
			"storage_key": key,
			"err":         err,
		}).Warn("Could not abort multipart upload")
	}
}

// UploadSingle stores a small file in one request and records it.  If
// r is an io.Seeker, transient store failures are retried.
func (c *Coordinator) UploadSingle(ctx context.Context, workspace string, info attachment.AttachmentInfo, r io.Reader, size int64) (attachment.Attachment, error) {
	c.setDefaults()
	workspace = attachment.WorkspaceOf(workspace)
	project, err := c.prepare(ctx, workspace, info, size)
	if err != nil {
		return attachment.Attachment{}, err
	}
	if size > c.MaxSingleSize {
		return attachment.Attachment{}, attachment.ErrQuota{Size: size, Limit: c.MaxSingleSize}
	}

	key := attachment.StorageKey(project.ID, info, uuid.NewV4().String())
	if seeker, ok := r.(io.Seeker); ok {
		first := true
		_, err = retry(ctx, c, "put", func() (struct{}, error) {
			if !first {
				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					return struct{}{}, err
				}
			}
			first = false
			return struct{}{}, c.Store.Put(ctx, key, info.MimeType, r, size)
		})
	} else {
		err = c.Store.Put(ctx, key, info.MimeType, r, size)
	}
	if err != nil {
		return attachment.Attachment{}, unavailable(err)
	}

	att := attachment.Attachment{
		ID:         uuid.NewV4().String(),
		FileName:   info.FileName,
		ProjectID:  project.ID,
		EntityType: info.EntityType,
		EntityID:   info.EntityID,
		MimeType:   info.MimeType,
		SizeBytes:  size,
		StorageKey: key,
		UploadedAt: c.Clock.Now().UTC(),
	}
	if err := c.record(ctx, att); err != nil {
		return attachment.Attachment{}, err
	}
	uploadEvents.WithLabelValues("single").Inc()
	return att, nil
}

// expire aborts a claimed session that outlived its TTL.
func (c *Coordinator) expire(ctx context.Context, s *session) {
	s.State = attachment.Aborted
	uploadEvents.WithLabelValues("expired").Inc()
	c.abort(ctx, s.StorageKey, s.StoreUploadID)
	c.Logger.WithFields(logrus.Fields{
		"upload_id":  s.UploadID,
		"project_id": s.ProjectID,
		"file_name":  s.Info.FileName,
	}).Info("Expired upload")
}

// Sweep claims every started session whose TTL has passed and aborts
// its multipart upload.  It returns the number of sessions expired.
func (c *Coordinator) Sweep(ctx context.Context) int {
	c.setDefaults()
	expired := c.sessions.claimExpired(c.Clock.Now())
	for _, s := range expired {
		c.expire(ctx, s)
	}
	return len(expired)
}
