// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package s3store

import (
	"context"
	"errors"
	"net"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/comet-ml/opik-sub005/attachment"
)

// transientCodes are S3 error codes that are worth retrying.
var transientCodes = map[string]bool{
	"InternalError":        true,
	"ServiceUnavailable":   true,
	"SlowDown":             true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestTimeout":       true,
	"RequestTimeTooSkewed": true,
}

// rejectedCodes are S3 error codes for a part list the store will
// never accept.
var rejectedCodes = map[string]bool{
	"InvalidPart":      true,
	"InvalidPartOrder": true,
	"EntityTooSmall":   true,
}

// httpStatusError matches SDK response errors that carry a status.
type httpStatusError interface {
	HTTPStatusCode() int
}

// translate maps an SDK error to the attachment error vocabulary.
// nil stays nil.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return attachment.ErrNoSuchStoreUpload
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "NoSuchUpload":
			return attachment.ErrNoSuchStoreUpload
		case code == "NotFound" || code == "NoSuchKey":
			return attachment.ErrNoSuchObject
		case rejectedCodes[code]:
			return attachment.ErrPartsRejected
		case transientCodes[code]:
			return attachment.TransientError{Err: err}
		}
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		if status := statusErr.HTTPStatusCode(); status >= 500 || status == 429 {
			return attachment.TransientError{Err: err}
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return attachment.TransientError{Err: err}
	}
	return err
}
