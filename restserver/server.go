// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	gocontext "context"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/query"
	"github.com/comet-ml/opik-sub005/restdata"
)

// Uploader runs the upload workflow.  *upload.Coordinator satisfies
// this.
type Uploader interface {
	StartUpload(ctx gocontext.Context, workspace string, info attachment.AttachmentInfo, size int64) (attachment.UploadSession, error)
	CompleteUpload(ctx gocontext.Context, workspace, uploadID string, parts []attachment.Part) (attachment.Attachment, error)
	UploadSingle(ctx gocontext.Context, workspace string, info attachment.AttachmentInfo, r io.Reader, size int64) (attachment.Attachment, error)
}

// Querier lists and downloads attachments.  *query.Service satisfies
// this.
type Querier interface {
	List(ctx gocontext.Context, workspace string, q attachment.AttachmentQuery) (query.Page, error)
	Download(ctx gocontext.Context, workspace string, req query.DownloadRequest) (string, error)
}

// Deleter removes attachments.  *deletion.Service satisfies this.
type Deleter interface {
	Delete(ctx gocontext.Context, workspace string, req attachment.DeletionRequest) (int, error)
}

// API holds the services the REST API publishes.
type API struct {
	Uploads  Uploader
	Queries  Querier
	Deletion Deleter

	// Logger receives handler failures.  If unset, uses the
	// logrus standard logger.
	Logger logrus.FieldLogger
}

// Prefix is the URL path under which all attachment routes live.
const Prefix = "/v1/private"

// NewRouter creates a new HTTP handler that processes all attachment
// requests under Prefix.  For more control over this setup, create a
// mux.Router and call PopulateRouter instead.
func NewRouter(api API) http.Handler {
	r := mux.NewRouter()
	PopulateRouter(r.PathPrefix(Prefix).Subrouter(), api)
	return r
}

// PopulateRouter adds attachment routes to an existing
// github.com/gorilla/mux router object.  The routes are relative to
// the router; NewRouter places them under Prefix.
func PopulateRouter(r *mux.Router, api API) {
	if api.Logger == nil {
		api.Logger = logrus.StandardLogger()
	}
	rest := &restAPI{API: api, Router: r}
	rest.PopulateRouter(r)
}

// restAPI holds the persistent state for the REST API.
type restAPI struct {
	API
	Router *mux.Router
}

// PopulateRouter adds all attachment URL paths to a router.
func (api *restAPI) PopulateRouter(r *mux.Router) {
	api.PopulateAttachment(r)
	r.Path(strings.TrimPrefix(restdata.RootPath, Prefix)).Name("root").Handler(&resourceHandler{
		Representation: restdata.RootData{},
		Context:        api.Context,
		Get:            api.RootDocument,
		Logger:         api.Logger,
	})
}

func (api *restAPI) RootDocument(ctx *context) (interface{}, error) {
	resp := restdata.RootData{}
	err := buildURLs(api.Router).
		URL(&resp.StartUploadURL, "uploadStart").
		URL(&resp.CompleteUploadURL, "uploadComplete").
		Template(&resp.ListURL, "list", "path", "project_id", "entity_type", "entity_id", "page", "size").
		Template(&resp.UploadURL, "upload", "file_name", "project_name", "mime_type", "entity_type", "entity_id").
		Template(&resp.DownloadURL, "download", "file_name", "container_id", "project_name", "mime_type", "entity_type", "entity_id").
		URL(&resp.DeleteURL, "delete").
		Error
	return resp, err
}
