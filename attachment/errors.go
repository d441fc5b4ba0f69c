// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package attachment

import (
	"errors"
	"fmt"
)

// ErrNoSuchAttachment is returned by Registry.Get() and the query
// service when no attachment has the requested key.
var ErrNoSuchAttachment = errors.New("No such attachment")

// ErrForbidden is returned when a workspace tries to reach a project
// or upload session that belongs to a different workspace.
var ErrForbidden = errors.New("Access to this resource is forbidden")

// ErrPartsRejected is returned from BlobStore.CompleteMultipart() if
// the store refuses the part list, usually because an ETag does not
// match a stored part or a part is missing.
var ErrPartsRejected = errors.New("Store rejected the uploaded parts")

// ErrNoSuchStoreUpload is returned from BlobStore multipart calls when
// the store does not recognize the multipart upload ID.
var ErrNoSuchStoreUpload = errors.New("Store has no such multipart upload")

// ErrNoSuchObject is returned by BlobStore.Stat for a key the store
// holds no object under.
var ErrNoSuchObject = errors.New("Store has no such object")

// ErrNoSuchUpload is returned from the upload coordinator when an
// upload ID is unknown, already completed, or expired.
type ErrNoSuchUpload struct {
	UploadID string
}

func (err ErrNoSuchUpload) Error() string {
	return fmt.Sprintf("No such upload %v", err.UploadID)
}

// ErrNoSuchProject is returned by a ProjectResolver when a project
// name or ID does not exist in the workspace.
type ErrNoSuchProject struct {
	Name string
}

func (err ErrNoSuchProject) Error() string {
	return fmt.Sprintf("No such project %v", err.Name)
}

// ErrValidation is returned when a request is malformed.  Field names
// the offending input.
type ErrValidation struct {
	Field  string
	Reason string
}

func (err ErrValidation) Error() string {
	return fmt.Sprintf("Invalid %v: %v", err.Field, err.Reason)
}

// ErrQuota is returned when a declared or uploaded file size exceeds
// the configured limit.
type ErrQuota struct {
	Size  int64
	Limit int64
}

func (err ErrQuota) Error() string {
	return fmt.Sprintf("File size %d exceeds limit %d", err.Size, err.Limit)
}

// ErrConflict is returned from upload completion when the part list
// is not exactly 1..N, the store rejects it, or the uploaded object is
// not the declared size.  The session is gone and the client must
// start over.
type ErrConflict struct {
	UploadID string
	Reason   string
}

func (err ErrConflict) Error() string {
	return fmt.Sprintf("Upload %v conflicts: %v", err.UploadID, err.Reason)
}

// ErrUnavailable is returned when the backing store kept failing
// transiently after retries.  The operation may be retried later.
type ErrUnavailable struct {
	Err error
}

func (err ErrUnavailable) Error() string {
	if err.Err == nil {
		return "Service temporarily unavailable"
	}
	return "Service temporarily unavailable: " + err.Err.Error()
}

func (err ErrUnavailable) Unwrap() error {
	return err.Err
}

// TransientError wraps a store failure that may succeed on retry:
// network errors, server-side errors and throttling.
type TransientError struct {
	Err error
}

func (err TransientError) Error() string {
	return "transient: " + err.Err.Error()
}

func (err TransientError) Unwrap() error {
	return err.Err
}

// IsTransient returns true if err is or wraps a TransientError.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}
