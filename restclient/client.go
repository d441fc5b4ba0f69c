// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restclient provides a client for the attachment REST API.
// It follows the root document published by the restserver package,
// so it only needs the server's base URL.
//
// A typical multipart upload looks like
//
//     client, err := restclient.New(ctx, "http://localhost:5932", "my-workspace")
//     session, err := client.StartUpload(ctx, req)
//     etag, err := client.PutPart(ctx, session.PreSignURLs[0], data)
//     err = client.CompleteUpload(ctx, restdata.CompleteUploadRequest{...})
//
// UploadBytes performs all three steps for an in-memory file.
package restclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"

	"github.com/comet-ml/opik-sub005/restdata"
)

// Client talks to one attachment server on behalf of one workspace.
type Client struct {
	resource

	// Root holds the URI templates published by the server.
	Root restdata.RootData
}

// ErrNoLocation is returned from DownloadURL if the server answered
// without a redirect target.
var ErrNoLocation = errors.New("download response has no Location")

// New creates a new client for the server at baseURL, fetching its
// root document.  An empty workspace falls back to the server's
// default.
func New(ctx context.Context, baseURL, workspace string) (*Client, error) {
	return NewWithHTTPClient(ctx, baseURL, workspace, http.DefaultClient)
}

// NewWithHTTPClient is New with a caller-supplied HTTP client.
func NewWithHTTPClient(ctx context.Context, baseURL, workspace string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("empty URL")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	root, err := base.Parse(restdata.RootPath)
	if err != nil {
		return nil, err
	}
	client := &Client{
		resource: resource{URL: root, Workspace: workspace, HTTP: httpClient},
	}
	if err := client.Do(ctx, http.MethodGet, root, nil, &client.Root); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) route(template string) (*url.URL, error) {
	return c.Template(template, map[string]interface{}{})
}

// StartUpload begins a multipart upload.
func (c *Client) StartUpload(ctx context.Context, req restdata.StartUploadRequest) (restdata.StartUploadResponse, error) {
	var resp restdata.StartUploadResponse
	url, err := c.route(c.Root.StartUploadURL)
	if err == nil {
		err = c.Do(ctx, http.MethodPost, url, req, &resp)
	}
	return resp, err
}

// PutPart sends one part's bytes to its presigned URL and returns the
// ETag the store assigned it.  The request goes straight to the
// object store, so it carries no workspace header.
func (c *Client) PutPart(ctx context.Context, presigned string, data []byte) (string, error) {
	req, err := http.NewRequest(http.MethodPut, presigned, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(ioutil.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", ErrorHTTP{Response: resp}
	}
	return resp.Header.Get("ETag"), nil
}

// CompleteUpload finishes a multipart upload.
func (c *Client) CompleteUpload(ctx context.Context, req restdata.CompleteUploadRequest) error {
	url, err := c.route(c.Root.CompleteUploadURL)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, url, req, nil)
}

// UploadBytes runs a whole multipart upload of data.  info.FileSize
// is overwritten with the length of data.
func (c *Client) UploadBytes(ctx context.Context, info restdata.StartUploadRequest, data []byte) error {
	info.FileSize = int64(len(data))
	session, err := c.StartUpload(ctx, info)
	if err != nil {
		return err
	}
	partSize := session.PartSize
	if partSize <= 0 {
		partSize = int64(len(data))
	}
	complete := restdata.CompleteUploadRequest{UploadID: session.UploadID}
	for i, presigned := range session.PreSignURLs {
		start := int64(i) * partSize
		end := start + partSize
		if i == len(session.PreSignURLs)-1 || end > int64(len(data)) {
			end = int64(len(data))
		}
		etag, err := c.PutPart(ctx, presigned, data[start:end])
		if err != nil {
			return err
		}
		complete.Parts = append(complete.Parts, restdata.UploadedPart{PartNumber: i + 1, ETag: etag})
	}
	return c.CompleteUpload(ctx, complete)
}

// ListOptions selects a page of attachments.
type ListOptions struct {
	ProjectID  string
	EntityType string
	EntityID   string
	Path       string
	Page       int
	Size       int
}

// List returns one page of attachments.
func (c *Client) List(ctx context.Context, opts ListOptions) (restdata.AttachmentPage, error) {
	var page restdata.AttachmentPage
	vars := map[string]interface{}{
		"project_id":  opts.ProjectID,
		"entity_type": opts.EntityType,
		"entity_id":   opts.EntityID,
		"path":        opts.Path,
	}
	if opts.Page > 0 {
		vars["page"] = strconv.Itoa(opts.Page)
	}
	if opts.Size > 0 {
		vars["size"] = strconv.Itoa(opts.Size)
	}
	url, err := c.Template(c.Root.ListURL, vars)
	if err == nil {
		err = c.Do(ctx, http.MethodGet, url, nil, &page)
	}
	return page, err
}

// FileRef names one attachment for Upload and DownloadURL.  Upload
// uses ProjectName; DownloadURL uses ProjectID if set and ProjectName
// otherwise.
type FileRef struct {
	FileName    string
	ProjectID   string
	ProjectName string
	MimeType    string
	EntityType  string
	EntityID    string
}

// Upload stores a small file with a single request body.
func (c *Client) Upload(ctx context.Context, ref FileRef, data []byte) error {
	url, err := c.Template(c.Root.UploadURL, map[string]interface{}{
		"file_name":    ref.FileName,
		"project_name": ref.ProjectName,
		"mime_type":    ref.MimeType,
		"entity_type":  ref.EntityType,
		"entity_id":    ref.EntityID,
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if ref.MimeType != "" {
		req.Header.Set("Content-Type", ref.MimeType)
	}
	return c.send(req, nil)
}

// DownloadURL returns the presigned URL the download route redirects
// to, without following it.
func (c *Client) DownloadURL(ctx context.Context, ref FileRef) (string, error) {
	url, err := c.Template(c.Root.DownloadURL, map[string]interface{}{
		"file_name":    ref.FileName,
		"container_id": ref.ProjectID,
		"project_name": ref.ProjectName,
		"mime_type":    ref.MimeType,
		"entity_type":  ref.EntityType,
		"entity_id":    ref.EntityID,
	})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	noFollow := *c.HTTP
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noFollow.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkHTTPStatus(resp); err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", ErrNoLocation
	}
	return location, nil
}

// Delete removes the attachments of some entities.
func (c *Client) Delete(ctx context.Context, req restdata.DeleteRequest) error {
	url, err := c.route(c.Root.DeleteURL)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, url, req, nil)
}
