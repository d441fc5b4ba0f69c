// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/restdata"
)

// context holds all of the information that can be extracted from
// the request headers and URL parameters.
type context struct {
	Workspace   string
	QueryParams url.Values
	Request     *http.Request
}

func (api *restAPI) Context(req *http.Request) (*context, error) {
	return &context{
		Workspace:   attachment.WorkspaceOf(req.Header.Get(restdata.WorkspaceHeader)),
		QueryParams: req.URL.Query(),
		Request:     req,
	}, nil
}

// IntParam looks at ctx.QueryParams for a parameter named name.  If
// it is absent, returns def; if it is not an integer, returns a
// validation error.
func (ctx *context) IntParam(name string, def int) (int, error) {
	s := ctx.QueryParams.Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, attachment.ErrValidation{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

// EntityTypeParam parses an optional entity type parameter.
func (ctx *context) EntityTypeParam(name string) (attachment.EntityType, error) {
	s := ctx.QueryParams.Get(name)
	if s == "" {
		return attachment.NoEntity, nil
	}
	return attachment.ParseEntityType(s)
}

// AttachmentQuery builds a registry query from query parameters.
// This can fail (if an invalid entity type is named, if a non-integer
// page is provided) so it should only be called if a specific route
// wants it.
func (ctx *context) AttachmentQuery() (q attachment.AttachmentQuery, err error) {
	q.ProjectID = ctx.QueryParams.Get("project_id")
	q.EntityID = ctx.QueryParams.Get("entity_id")
	q.Prefix = ctx.QueryParams.Get("path")
	if q.EntityType, err = ctx.EntityTypeParam("entity_type"); err != nil {
		return
	}
	if q.Page, err = ctx.IntParam("page", 1); err != nil {
		return
	}
	if q.Page < 1 {
		err = attachment.ErrValidation{Field: "page", Reason: "must be at least 1"}
		return
	}
	q.Size, err = ctx.IntParam("size", attachment.DefaultPageSize)
	if err == nil && q.Size < 1 {
		err = attachment.ErrValidation{Field: "size", Reason: "must be at least 1"}
	}
	return
}
