// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restdata defines common data structures shared between the
// restserver and restclient packages.  Generally JSON encodings of
// these are passed across the wire as application/json; the more
// specific application/vnd.opik.attachment.v1+json is also accepted.
//
// API Usage
//
// Every route lives under /v1/private.  The workspace a request acts
// on is named in the Comet-Workspace HTTP header; if it is absent the
// workspace "default" is used.
//
// HTTP GET /v1/private/attachment returns a JSON serialization of the
// RootData object, whose fields are RFC 6570 URI templates for the
// other resources.  The URL structure is predictable, and the paths
// below are stable, but a client that follows the root document is
// insulated from changes to them.
//
//     POST /v1/private/attachment/upload-start
//     POST /v1/private/attachment/upload-complete
//     GET  /v1/private/attachment/list{?path,project_id,entity_type,entity_id,page,size}
//     PUT  /v1/private/attachment/upload{?file_name,project_name,mime_type,entity_type,entity_id}
//     GET  /v1/private/attachment/download{?file_name,container_id,project_name,mime_type,entity_type,entity_id}
//     POST /v1/private/attachment/delete
//
// A multipart upload POSTs a StartUploadRequest to upload-start and
// gets back a StartUploadResponse with one presigned URL per part.
// The client PUTs each part's bytes directly to its URL and keeps the
// ETag response header.  It then POSTs a CompleteUploadRequest with
// those ETags to upload-complete, which returns 204 No Content once
// the attachment is recorded.
//
// The single-shot upload route takes the raw file bytes as its
// request body.  The download route answers with 302 Found and a
// presigned URL in the Location header.
//
// Entity types are "trace", "span", and "thread"; they are accepted in
// any case.  Timestamps are RFC 3339 strings.
//
// Errors
//
// Failures are returned as encodings of the ErrorResponse type with a
// failing HTTP status:
//
//     400 Bad Request           invalid request fields
//     403 Forbidden             project in another workspace
//     404 Not Found             unknown project, attachment, or upload
//     409 Conflict              part list rejected at completion
//     413 Payload Too Large     file exceeds the size limit
//     415 Unsupported Media Type  unknown request Content-Type
//     503 Service Unavailable   the object store is failing
//
// ErrorResponse round-trips all of the attachment package's errors.
// If Go server code panics, this is captured and returned as an
// ErrorResponse with error code "panic".
package restdata

import (
	"time"

	"github.com/comet-ml/opik-sub005/attachment"
)

// V1JSONMediaType is the preferred, most specific MIME type for the
// JSON representation of this content.
const V1JSONMediaType = "application/vnd.opik.attachment.v1+json"

// JSONMediaType requests the most recent version of the JSON
// representation of this content.
const JSONMediaType = "application/vnd.opik.attachment+json"

// RootPath is the URL path of the root document.
const RootPath = "/v1/private/attachment"

// WorkspaceHeader names the HTTP header that carries the workspace.
const WorkspaceHeader = "Comet-Workspace"

// RootData is returned by the root path.  Each field is a URI
// template relative to the root document's URL.
type RootData struct {
	// StartUploadURL accepts HTTP POST of a StartUploadRequest and
	// returns a StartUploadResponse.
	StartUploadURL string `json:"upload_start_url"`

	// CompleteUploadURL accepts HTTP POST of a
	// CompleteUploadRequest and returns no content.
	CompleteUploadURL string `json:"upload_complete_url"`

	// ListURL supports HTTP GET, returning an AttachmentPage.  It
	// is a URI template with parameters "path", "project_id",
	// "entity_type", "entity_id", "page", and "size".
	ListURL string `json:"list_url"`

	// UploadURL accepts HTTP PUT of raw file bytes.  It is a URI
	// template with parameters "file_name", "project_name",
	// "mime_type", "entity_type", and "entity_id".
	UploadURL string `json:"upload_url"`

	// DownloadURL redirects to the file contents.  It is a URI
	// template with parameters "file_name", "container_id" (the
	// project ID), "project_name", "mime_type", "entity_type", and
	// "entity_id".
	DownloadURL string `json:"download_url"`

	// DeleteURL accepts HTTP POST of a DeleteRequest and returns
	// no content.
	DeleteURL string `json:"delete_url"`
}

// StartUploadRequest begins a multipart upload.
type StartUploadRequest struct {
	FileName    string `json:"file_name"`
	ProjectName string `json:"project_name"`
	MimeType    string `json:"mime_type"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Path        string `json:"path,omitempty"`

	// FileSize is the total size of the file in bytes.  It
	// decides how many part URLs are issued.
	FileSize int64 `json:"file_size"`
}

// Info converts the request to the target of an upload.
func (r StartUploadRequest) Info() (attachment.AttachmentInfo, error) {
	entityType, err := attachment.ParseEntityType(r.EntityType)
	if err != nil {
		return attachment.AttachmentInfo{}, err
	}
	return attachment.AttachmentInfo{
		FileName:    r.FileName,
		ProjectName: r.ProjectName,
		MimeType:    r.MimeType,
		EntityType:  entityType,
		EntityID:    r.EntityID,
		Path:        r.Path,
	}, nil
}

// StartUploadResponse is returned from upload-start.
type StartUploadResponse struct {
	// UploadID must be echoed back to upload-complete.
	UploadID string `json:"upload_id"`

	// PreSignURLs has one URL per part, in part number order
	// starting at 1.
	PreSignURLs []string `json:"pre_sign_urls"`

	// PartSize is the number of bytes each part but the last must
	// carry.
	PartSize int64 `json:"part_size,omitempty"`
}

// UploadedPart reports the ETag the store returned for one part.
type UploadedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"e_tag"`
}

// CompleteUploadRequest finishes a multipart upload.
type CompleteUploadRequest struct {
	UploadID string         `json:"upload_id"`
	Parts    []UploadedPart `json:"uploaded_file_parts"`
}

// AttachmentParts converts the wire part list.
func (r CompleteUploadRequest) AttachmentParts() []attachment.Part {
	parts := make([]attachment.Part, len(r.Parts))
	for i, part := range r.Parts {
		parts[i] = attachment.Part{PartNumber: part.PartNumber, ETag: part.ETag}
	}
	return parts
}

// Attachment is one entry in a listing.
type Attachment struct {
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	Link       string    `json:"link"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AttachmentPage is one page of a listing.
type AttachmentPage struct {
	Page    int          `json:"page"`
	Size    int          `json:"size"`
	Total   int          `json:"total"`
	Content []Attachment `json:"content"`
}

// EntityRef names one trace, span, or thread.
type EntityRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// DeleteRequest removes the attachments of some entities.
type DeleteRequest struct {
	Entities []EntityRef `json:"entities"`

	// ProjectID, if empty, applies the request to every project
	// in the workspace.
	ProjectID string `json:"project_id,omitempty"`

	// Path restricts deletion to file names with this prefix.
	Path string `json:"path,omitempty"`
}

// DeletionRequest converts the wire request.
func (r DeleteRequest) DeletionRequest() (attachment.DeletionRequest, error) {
	req := attachment.DeletionRequest{
		ProjectID: r.ProjectID,
		Prefix:    r.Path,
		Entities:  make([]attachment.EntityRef, len(r.Entities)),
	}
	for i, entity := range r.Entities {
		entityType, err := attachment.ParseEntityType(entity.EntityType)
		if err != nil {
			return attachment.DeletionRequest{}, err
		}
		req.Entities[i] = attachment.EntityRef{EntityType: entityType, EntityID: entity.EntityID}
	}
	return req, nil
}

// ErrorResponse can be a response to any method, generally accompanied
// by a failing HTTP status code.
type ErrorResponse struct {
	// Error is a short description of the failure.  This may be
	// the name of an attachment API error, the string "panic", or
	// the string "error" for some other kind of error.
	Error string `json:"error"`

	// Message is a human-readable description of the failure.
	Message string `json:"message"`

	// Value is the primary parameter of the error, such as an
	// upload ID or project name, if there is one.
	Value string `json:"value,omitempty"`

	// Detail is a secondary parameter of the error.
	Detail string `json:"detail,omitempty"`

	// Stack is the server-side stack trace of a panic.
	Stack string `json:"stack,omitempty"`
}
