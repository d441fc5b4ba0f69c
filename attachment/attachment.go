// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package attachment defines the abstract API to the attachment
// upload subsystem.
//
// Attachments are files carried by traces, spans and threads.  Large
// files are uploaded by the client directly to an object store through
// pre-signed URLs; the service only coordinates the multipart upload
// and records metadata once the store confirms the object.
//
// Specific implementations of the interfaces here live in other
// packages: memory and postgres provide a Registry, and memory,
// s3store and miniostore provide a BlobStore.
package attachment

import (
	"context"
	"io"
	"time"
)

// EntityType identifies the kind of object an attachment hangs off of.
type EntityType int

const (
	// NoEntity is the zero value and is never valid on an attachment.
	NoEntity EntityType = iota

	// TraceEntity attaches a file to a trace.
	TraceEntity

	// SpanEntity attaches a file to a span.
	SpanEntity

	// ThreadEntity attaches a file to a conversation thread.
	ThreadEntity
)

// SessionState is the lifecycle state of an UploadSession.
type SessionState int

const (
	// Started sessions have issued part URLs and are waiting for
	// the client to complete them.
	Started SessionState = iota

	// Completed sessions produced an Attachment.
	Completed

	// Aborted sessions expired or were rejected by the store.
	Aborted
)

// AttachmentInfo identifies the target of an upload before the upload
// has completed.
type AttachmentInfo struct {
	FileName    string
	ProjectName string
	MimeType    string
	EntityType  EntityType
	EntityID    string

	// Path is an optional client-supplied logical path.  It does
	// not affect the storage key.
	Path string
}

// Key is the logical identity of an attachment.  At most one live
// Attachment exists per Key.
type Key struct {
	ProjectID  string
	EntityType EntityType
	EntityID   string
	FileName   string
}

// EntityRef names one entity in a DeletionRequest.
type EntityRef struct {
	EntityType EntityType
	EntityID   string
}

// Attachment is the persisted metadata for a completed upload.
type Attachment struct {
	ID         string
	FileName   string
	ProjectID  string
	EntityType EntityType
	EntityID   string
	MimeType   string
	SizeBytes  int64
	StorageKey string
	UploadedAt time.Time
}

// Key returns the logical identity of an attachment.
func (a Attachment) Key() Key {
	return Key{
		ProjectID:  a.ProjectID,
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		FileName:   a.FileName,
	}
}

// Part is one uploaded part of a multipart upload, as reported by the
// client.  ETag is whatever the store returned from the part PUT.
type Part struct {
	PartNumber int
	ETag       string
}

// UploadSession describes an in-flight multipart upload.  Only
// UploadID, PartURLs and PartSize are ever shown to clients.
type UploadSession struct {
	UploadID   string
	StorageKey string
	PartURLs   []string
	PartSize   int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	State      SessionState
}

// AttachmentQuery selects attachments from a Registry.  ProjectID is
// required; the other filters are applied when non-zero.
type AttachmentQuery struct {
	ProjectID  string
	EntityType EntityType
	EntityID   string

	// Prefix restricts results to file names beginning with it.
	Prefix string

	// Page is 1-based.  Zero means the first page.
	Page int

	// Size is the page size.  Zero means DefaultPageSize; values
	// above MaxPageSize are clamped.
	Size int
}

// AttachmentPage is one page of a Find result.
type AttachmentPage struct {
	Page        int
	Size        int
	Total       int
	Attachments []Attachment
}

// DeletionRequest selects attachments to remove.  ProjectID is
// required.  Entities are ORed together; an empty list matches no
// attachments.
type DeletionRequest struct {
	ProjectID string
	Entities  []EntityRef
	Prefix    string
}

// Project is a resolved project within a workspace.
type Project struct {
	ID        string
	Name      string
	Workspace string
}

// Registry is the durable mapping from attachment keys to blob
// locations.
type Registry interface {
	// Upsert creates or replaces the attachment with the same
	// Key.  If a record was replaced, it is returned so that the
	// caller can reclaim its storage; otherwise the first return
	// value is nil.
	Upsert(ctx context.Context, att Attachment) (*Attachment, error)

	// Get retrieves a single attachment by key.  If there is no
	// such attachment, returns ErrNoSuchAttachment.
	Get(ctx context.Context, key Key) (Attachment, error)

	// Find returns one page of attachments matching a query,
	// most recently uploaded first.
	Find(ctx context.Context, query AttachmentQuery) (AttachmentPage, error)

	// DeleteBatch removes all of the attachments matching a
	// request and returns the removed records.
	DeleteBatch(ctx context.Context, req DeletionRequest) ([]Attachment, error)
}

// BlobStore wraps an object store's multipart upload primitives.
// Implementations contain no business rules.  Retryable failures are
// returned wrapped in TransientError.
type BlobStore interface {
	// InitiateMultipart starts a multipart upload for key and
	// returns the store's upload ID.
	InitiateMultipart(ctx context.Context, key, mimeType string) (string, error)

	// PresignPart returns a URL the client can PUT one part to.
	// Part numbers start at 1.
	PresignPart(ctx context.Context, key, storeUploadID string, partNumber int, ttl time.Duration) (string, error)

	// CompleteMultipart finalizes a multipart upload with parts
	// sorted by part number, and returns the object size.  If
	// the store rejects the part list, returns ErrPartsRejected;
	// if it does not know the upload, ErrNoSuchStoreUpload.
	CompleteMultipart(ctx context.Context, key, storeUploadID string, parts []Part) (int64, error)

	// Stat returns the size of a stored object, or ErrNoSuchObject
	// if there is none.
	Stat(ctx context.Context, key string) (int64, error)

	// AbortMultipart discards a multipart upload and any parts
	// already stored.
	AbortMultipart(ctx context.Context, key, storeUploadID string) error

	// PresignGet returns a time-limited URL that downloads key.
	PresignGet(ctx context.Context, key, mimeType, fileName string, ttl time.Duration) (string, error)

	// Put stores a complete object in one request.
	Put(ctx context.Context, key, mimeType string, r io.Reader, size int64) error

	// Delete removes an object.  Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// ProjectResolver maps workspace-scoped project names and IDs to
// projects.  Authentication lives behind this interface.
type ProjectResolver interface {
	// ResolveProject finds a project by name within a workspace.
	// Returns ErrNoSuchProject if it does not exist.
	ResolveProject(ctx context.Context, workspace, name string) (Project, error)

	// Project finds a project by ID.  Returns ErrForbidden if the
	// project exists but belongs to another workspace, and
	// ErrNoSuchProject if it does not exist.
	Project(ctx context.Context, workspace, id string) (Project, error)

	// Projects lists every project in a workspace.
	Projects(ctx context.Context, workspace string) ([]Project, error)
}

// Reclaimer accepts storage keys whose objects are no longer
// referenced and deletes them eventually.
type Reclaimer interface {
	Reclaim(keys ...string)
}
