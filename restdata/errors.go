// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restdata

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/comet-ml/opik-sub005/attachment"
)

// ErrorStatus describes errors that correspond to specific HTTP status
// codes.
type ErrorStatus interface {
	// HTTPStatus returns the HTTP status code for this error.
	HTTPStatus() int
}

// ErrUnsupportedMediaType is returned from Decode() if the provided
// Content-Type: is unrecognized.  This translates directly into the
// equivalent HTTP 415 error.
type ErrUnsupportedMediaType struct {
	Type string
}

func (e ErrUnsupportedMediaType) Error() string {
	return fmt.Sprintf("Unsupported media type %q", e.Type)
}

// HTTPStatus returns a fixed 415 Unsupported Media Type error code.
func (e ErrUnsupportedMediaType) HTTPStatus() int {
	return http.StatusUnsupportedMediaType
}

// ErrBadRequest is returned as an error when there is an error decoding
// HTTP headers or the request body.
type ErrBadRequest struct {
	Err error
}

func (e ErrBadRequest) Error() string {
	return e.Err.Error()
}

// HTTPStatus returns a fixed 400 Bad Request HTTP status code.
func (e ErrBadRequest) HTTPStatus() int {
	return http.StatusBadRequest
}

// HTTPStatus returns the HTTP status code a server should send for
// err.  Errors that are not recognized are 500 Internal Server Error.
func HTTPStatus(err error) int {
	if errS, hasStatus := err.(ErrorStatus); hasStatus {
		return errS.HTTPStatus()
	}
	switch err {
	case attachment.ErrNoSuchAttachment:
		return http.StatusNotFound
	case attachment.ErrForbidden:
		return http.StatusForbidden
	}
	switch err.(type) {
	case attachment.ErrValidation:
		return http.StatusBadRequest
	case attachment.ErrNoSuchProject, attachment.ErrNoSuchUpload:
		return http.StatusNotFound
	case attachment.ErrQuota:
		return http.StatusRequestEntityTooLarge
	case attachment.ErrConflict:
		return http.StatusConflict
	case attachment.ErrUnavailable:
		return http.StatusServiceUnavailable
	}
	if attachment.IsTransient(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// FromError populates an ErrorResponse to fill in its fields based
// on an error value.  This remaps the well-known attachment errors
// to specific e.Error codes.
func (e *ErrorResponse) FromError(err error) {
	e.Error = "error"
	e.Message = err.Error()
	switch err {
	case attachment.ErrNoSuchAttachment:
		e.Error = "ErrNoSuchAttachment"
	case attachment.ErrForbidden:
		e.Error = "ErrForbidden"
	}
	switch et := err.(type) {
	case attachment.ErrNoSuchUpload:
		e.Error = "ErrNoSuchUpload"
		e.Value = et.UploadID
	case attachment.ErrNoSuchProject:
		e.Error = "ErrNoSuchProject"
		e.Value = et.Name
	case attachment.ErrValidation:
		e.Error = "ErrValidation"
		e.Value = et.Field
		e.Detail = et.Reason
	case attachment.ErrQuota:
		e.Error = "ErrQuota"
		e.Value = strconv.FormatInt(et.Size, 10)
		e.Detail = strconv.FormatInt(et.Limit, 10)
	case attachment.ErrConflict:
		e.Error = "ErrConflict"
		e.Value = et.UploadID
		e.Detail = et.Reason
	case attachment.ErrUnavailable:
		e.Error = "ErrUnavailable"
		if et.Err != nil {
			e.Detail = et.Err.Error()
		}
	case ErrBadRequest:
		// Discard this wrapper and return the embedded error
		e.FromError(et.Err)
	}
}

// ToError converts e back to an attachment error, if that is possible.
// If not, returns a plain error with e.Message text.
func (e *ErrorResponse) ToError() error {
	switch e.Error {
	case "ErrNoSuchAttachment":
		return attachment.ErrNoSuchAttachment
	case "ErrForbidden":
		return attachment.ErrForbidden
	case "ErrNoSuchUpload":
		return attachment.ErrNoSuchUpload{UploadID: e.Value}
	case "ErrNoSuchProject":
		return attachment.ErrNoSuchProject{Name: e.Value}
	case "ErrValidation":
		return attachment.ErrValidation{Field: e.Value, Reason: e.Detail}
	case "ErrQuota":
		size, err1 := strconv.ParseInt(e.Value, 10, 64)
		limit, err2 := strconv.ParseInt(e.Detail, 10, 64)
		if err1 == nil && err2 == nil {
			return attachment.ErrQuota{Size: size, Limit: limit}
		}
	case "ErrConflict":
		return attachment.ErrConflict{UploadID: e.Value, Reason: e.Detail}
	case "ErrUnavailable":
		if e.Detail == "" {
			return attachment.ErrUnavailable{}
		}
		return attachment.ErrUnavailable{Err: errors.New(e.Detail)}
	}
	return errors.New(e.Message)
}

// FromPanic populates an error response based on a panic.  Typical use
// is:
//
//     defer func() {
//         if obj := recover(); obj != nil {
//             resp := restdata.ErrorResponse{}
//             resp.FromPanic(obj)
//             // write resp out as makes sense
//         }
//     }()
func (e *ErrorResponse) FromPanic(obj interface{}) {
	e.Error = "panic"
	if recoveredError, isError := obj.(error); isError {
		e.Message = recoveredError.Error()
	} else {
		e.Message = fmt.Sprintf("%+v", obj)
	}
	var stack [4096]byte
	len := runtime.Stack(stack[:], false)
	e.Stack = string(stack[:len])
}
