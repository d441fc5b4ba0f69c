// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

// resourceHandler adapts handler functions that take a context and a
// decoded body, and return a value or an error, to http.Handler.  It
// owns content negotiation, body decoding, error statuses and panics.

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/restdata"
)

// typeMap lists the media types a response can be sent as, each with
// the codec that encodes it.  Everything is JSON.
var typeMap = map[string]string{
	"text/json":              restdata.V1JSONMediaType,
	"application/json":       restdata.V1JSONMediaType,
	restdata.JSONMediaType:   restdata.V1JSONMediaType,
	restdata.V1JSONMediaType: restdata.V1JSONMediaType,
}

var errBadAccept = errors.New("Invalid Accept: header")

// errNotAcceptable means no media range in Accept: is one we serve.
type errNotAcceptable struct{}

func (e errNotAcceptable) Error() string {
	return "No acceptable representation for response"
}

func (e errNotAcceptable) HTTPStatus() int {
	return http.StatusNotAcceptable
}

// errMethodNotAllowed is returned for a method the resource has no
// handler function for.
type errMethodNotAllowed struct {
	Method string
}

func (e errMethodNotAllowed) Error() string {
	return fmt.Sprintf("Method %v not allowed", e.Method)
}

func (e errMethodNotAllowed) HTTPStatus() int {
	return http.StatusMethodNotAllowed
}

// responseRedirect, returned as a handler's value, sends 302 Found.
type responseRedirect struct {
	Location string
}

type resourceHandler struct {
	// Representation is the type of PUT and POST bodies.  Handler
	// functions receive a decoded value of exactly this type.
	Representation interface{}

	// Raw leaves the request body unread for the handler.
	Raw bool

	// Context builds the per-request context.
	Context func(req *http.Request) (*context, error)

	Get  func(*context) (interface{}, error)
	Put  func(*context, interface{}) (interface{}, error)
	Post func(*context, interface{}) (interface{}, error)

	// Logger receives server-side failures.
	Logger logrus.FieldLogger
}

func (h *resourceHandler) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	defer h.recoverPanic(resp, req)

	// The response type is settled first, since errors need it too
	responseType, err := negotiateResponse(req)
	if err != nil {
		responseType = restdata.V1JSONMediaType
		if _, hasStatus := err.(restdata.ErrorStatus); !hasStatus {
			err = restdata.ErrBadRequest{Err: err}
		}
	}

	var out interface{}
	if err == nil {
		out, err = h.dispatch(req)
	}

	status := http.StatusOK
	switch {
	case err != nil:
		status = restdata.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger().WithFields(logrus.Fields{
				"method": req.Method,
				"path":   req.URL.Path,
				"err":    err,
			}).Warn("Request failed")
		}
		errResp := restdata.ErrorResponse{}
		errResp.FromError(err)
		out = errResp
	case out == nil:
		status = http.StatusNoContent
	default:
		if redirect, isRedirect := out.(responseRedirect); isRedirect {
			resp.Header().Set("Location", redirect.Location)
			resp.WriteHeader(http.StatusFound)
			return
		}
		if req.Method == http.MethodHead {
			out = nil
		}
	}

	if _, understood := typeMap[responseType]; !understood {
		status = http.StatusInternalServerError
		out = restdata.ErrorResponse{Error: "error", Message: "Invalid response type " + responseType}
		responseType = restdata.V1JSONMediaType
	}

	// An encoding failure comes after the status line; nothing more
	// can be reported
	if out != nil {
		resp.Header().Set("Content-Type", responseType)
	}
	resp.WriteHeader(status)
	if out != nil {
		_ = restdata.Encode(resp, out)
	}
}

// dispatch builds the context, decodes the body, and calls the handler
// function for the request method.
func (h *resourceHandler) dispatch(req *http.Request) (interface{}, error) {
	ctx, err := h.Context(req)
	if err != nil {
		return nil, err
	}

	var in interface{}
	hasBody := req.Method == http.MethodPut || req.Method == http.MethodPost
	if hasBody && !h.Raw && h.Representation != nil {
		ptr := reflect.New(reflect.TypeOf(h.Representation))
		if err := restdata.Decode(req.Header.Get("Content-Type"), req.Body, ptr.Interface()); err != nil {
			return nil, err
		}
		in = ptr.Elem().Interface()
	}

	switch {
	case (req.Method == http.MethodGet || req.Method == http.MethodHead) && h.Get != nil:
		return h.Get(ctx)
	case req.Method == http.MethodPut && h.Put != nil:
		return h.Put(ctx, in)
	case req.Method == http.MethodPost && h.Post != nil:
		return h.Post(ctx, in)
	}
	return nil, errMethodNotAllowed{Method: req.Method}
}

// recoverPanic turns a handler panic into a 500 response.
func (h *resourceHandler) recoverPanic(resp http.ResponseWriter, req *http.Request) {
	recovered := recover()
	if recovered == nil {
		return
	}
	response := restdata.ErrorResponse{}
	response.FromPanic(recovered)
	h.logger().WithFields(logrus.Fields{
		"path":  req.URL.Path,
		"panic": response.Message,
	}).Error("Handler panicked")
	resp.Header().Set("Content-Type", restdata.V1JSONMediaType)
	resp.WriteHeader(http.StatusInternalServerError)
	_ = restdata.Encode(resp, response)
}

func (h *resourceHandler) logger() logrus.FieldLogger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

// mediaRank orders media ranges of equal quality: a concrete type we
// serve beats "text/*" or "application/*", which beat "*/*".  Zero
// means we cannot serve the range at all.
func mediaRank(mediaType string) int {
	switch mediaType {
	case "*/*":
		return 1
	case "text/*", "application/*":
		return 2
	}
	if _, known := typeMap[mediaType]; known {
		return 3
	}
	return 0
}

// negotiateResponse picks the response media type from the Accept:
// header, per RFC 7231 section 5.3.2.  The highest quality wins, then
// the most specific range, then the earliest.
func negotiateResponse(req *http.Request) (string, error) {
	accept := req.Header.Get("Accept")
	if accept == "" {
		accept = "*/*"
	}
	bestType, bestQ, bestRank := "", 0.0, 0
	for _, mediaRange := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(mediaRange))
		if err != nil {
			return "", err
		}
		q := 1.0
		if qStr, haveQ := params["q"]; haveQ {
			if q, err = strconv.ParseFloat(qStr, 64); err != nil {
				return "", err
			}
			if q < 0.0 || q > 1.0 {
				return "", errBadAccept
			}
		}
		rank := mediaRank(mediaType)
		if rank == 0 {
			continue
		}
		if q > bestQ || (q == bestQ && rank > bestRank) {
			bestType, bestQ, bestRank = mediaType, q, rank
		}
	}
	if bestQ == 0.0 {
		return "", errNotAcceptable{}
	}
	switch bestType {
	case "*/*", "application/*":
		return "application/json", nil
	case "text/*":
		return "text/json", nil
	}
	return bestType, nil
}
