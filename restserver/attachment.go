// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"github.com/gorilla/mux"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/query"
	"github.com/comet-ml/opik-sub005/restdata"
)

// PopulateAttachment adds the attachment routes to a router.
func (api *restAPI) PopulateAttachment(r *mux.Router) {
	sr := r.PathPrefix("/attachment").Subrouter()
	sr.Path("/upload-start").Name("uploadStart").Handler(&resourceHandler{
		Representation: restdata.StartUploadRequest{},
		Context:        api.Context,
		Post:           api.StartUpload,
		Logger:         api.Logger,
	})
	sr.Path("/upload-complete").Name("uploadComplete").Handler(&resourceHandler{
		Representation: restdata.CompleteUploadRequest{},
		Context:        api.Context,
		Post:           api.CompleteUpload,
		Logger:         api.Logger,
	})
	sr.Path("/list").Name("list").Handler(&resourceHandler{
		Representation: restdata.AttachmentPage{},
		Context:        api.Context,
		Get:            api.List,
		Logger:         api.Logger,
	})
	sr.Path("/upload").Name("upload").Handler(&resourceHandler{
		Raw:     true,
		Context: api.Context,
		Put:     api.Upload,
		Logger:  api.Logger,
	})
	sr.Path("/download").Name("download").Handler(&resourceHandler{
		Context: api.Context,
		Get:     api.Download,
		Logger:  api.Logger,
	})
	sr.Path("/delete").Name("delete").Handler(&resourceHandler{
		Representation: restdata.DeleteRequest{},
		Context:        api.Context,
		Post:           api.Delete,
		Logger:         api.Logger,
	})
}

func (api *restAPI) StartUpload(ctx *context, in interface{}) (interface{}, error) {
	req, valid := in.(restdata.StartUploadRequest)
	if !valid {
		return nil, errUnmarshal
	}
	info, err := req.Info()
	if err != nil {
		return nil, err
	}
	session, err := api.Uploads.StartUpload(ctx.Request.Context(), ctx.Workspace, info, req.FileSize)
	if err != nil {
		return nil, err
	}
	return restdata.NewStartUploadResponse(session), nil
}

func (api *restAPI) CompleteUpload(ctx *context, in interface{}) (interface{}, error) {
	req, valid := in.(restdata.CompleteUploadRequest)
	if !valid {
		return nil, errUnmarshal
	}
	if req.UploadID == "" {
		return nil, attachment.ErrValidation{Field: "upload_id", Reason: "is required"}
	}
	_, err := api.Uploads.CompleteUpload(ctx.Request.Context(), ctx.Workspace, req.UploadID, req.AttachmentParts())
	return nil, err
}

func (api *restAPI) List(ctx *context) (interface{}, error) {
	q, err := ctx.AttachmentQuery()
	if err != nil {
		return nil, err
	}
	page, err := api.Queries.List(ctx.Request.Context(), ctx.Workspace, q)
	if err != nil {
		return nil, err
	}
	resp := restdata.AttachmentPage{
		Page:    page.Page,
		Size:    page.Size,
		Total:   page.Total,
		Content: make([]restdata.Attachment, len(page.Entries)),
	}
	for i, entry := range page.Entries {
		resp.Content[i] = restdata.NewAttachment(entry.Attachment, entry.Link)
	}
	return resp, nil
}

func (api *restAPI) Upload(ctx *context, in interface{}) (interface{}, error) {
	entityType, err := ctx.EntityTypeParam("entity_type")
	if err != nil {
		return nil, err
	}
	size := ctx.Request.ContentLength
	if size < 0 {
		return nil, attachment.ErrValidation{Field: "file_size", Reason: "Content-Length is required"}
	}
	info := attachment.AttachmentInfo{
		FileName:    ctx.QueryParams.Get("file_name"),
		ProjectName: ctx.QueryParams.Get("project_name"),
		MimeType:    ctx.QueryParams.Get("mime_type"),
		EntityType:  entityType,
		EntityID:    ctx.QueryParams.Get("entity_id"),
	}
	if info.MimeType == "" {
		info.MimeType = ctx.Request.Header.Get("Content-Type")
	}
	_, err = api.Uploads.UploadSingle(ctx.Request.Context(), ctx.Workspace, info, ctx.Request.Body, size)
	return nil, err
}

func (api *restAPI) Download(ctx *context) (interface{}, error) {
	entityType, err := ctx.EntityTypeParam("entity_type")
	if err != nil {
		return nil, err
	}
	url, err := api.Queries.Download(ctx.Request.Context(), ctx.Workspace, query.DownloadRequest{
		ProjectID:   ctx.QueryParams.Get("container_id"),
		ProjectName: ctx.QueryParams.Get("project_name"),
		EntityType:  entityType,
		EntityID:    ctx.QueryParams.Get("entity_id"),
		FileName:    ctx.QueryParams.Get("file_name"),
		MimeType:    ctx.QueryParams.Get("mime_type"),
	})
	if err != nil {
		return nil, err
	}
	return responseRedirect{Location: url}, nil
}

func (api *restAPI) Delete(ctx *context, in interface{}) (interface{}, error) {
	wire, valid := in.(restdata.DeleteRequest)
	if !valid {
		return nil, errUnmarshal
	}
	req, err := wire.DeletionRequest()
	if err != nil {
		return nil, err
	}
	_, err = api.Deletion.Delete(ctx.Request.Context(), ctx.Workspace, req)
	return nil, err
}

// errUnmarshal is returned if the put/post contract is violated and
// a handler function is passed the wrong type.
var errUnmarshal = restdata.ErrBadRequest{
	Err: attachment.ErrValidation{Field: "body", Reason: "invalid input format"},
}
