// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restclient

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/deletion"
	"github.com/comet-ml/opik-sub005/memory"
	"github.com/comet-ml/opik-sub005/query"
	"github.com/comet-ml/opik-sub005/restdata"
	"github.com/comet-ml/opik-sub005/restserver"
	"github.com/comet-ml/opik-sub005/upload"
)

type fixture struct {
	Server  *httptest.Server
	Project attachment.Project
	Client  *Client
}

func setup(t *testing.T, partSize int64) *fixture {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	logger := logrus.New()
	logger.Out = ioutil.Discard

	root := mux.NewRouter()
	server := httptest.NewServer(root)
	blobs := memory.NewBlobStoreWithClock(server.URL+"/blob", nil, mock)
	root.PathPrefix("/blob/").Handler(http.StripPrefix("/blob/", blobs))

	registry := memory.NewRegistry()
	projects := memory.NewProjects()
	project := projects.Add("ws", "proj")
	restserver.PopulateRouter(root.PathPrefix(restserver.Prefix).Subrouter(), restserver.API{
		Uploads: &upload.Coordinator{
			Registry: registry,
			Store:    blobs,
			Projects: projects,
			PartSize: partSize,
			Logger:   logger,
			Clock:    mock,
		},
		Queries: &query.Service{
			Registry: registry,
			Store:    blobs,
			Projects: projects,
			Logger:   logger,
			Clock:    mock,
		},
		Deletion: &deletion.Service{
			Registry: registry,
			Projects: projects,
			Logger:   logger,
		},
		Logger: logger,
	})

	client, err := New(context.Background(), server.URL, "ws")
	if err != nil {
		server.Close()
		t.Fatal(err)
	}
	return &fixture{Server: server, Project: project, Client: client}
}

func TestEmptyURL(t *testing.T) {
	_, err := New(context.Background(), "", "ws")
	assert.Error(t, err)
}

// TestLogFile uploads a small log file to a trace and reads it back.
func TestLogFile(t *testing.T) {
	f := setup(t, 0)
	defer f.Server.Close()
	ctx := context.Background()

	session, err := f.Client.StartUpload(ctx, restdata.StartUploadRequest{
		FileName:    "log.txt",
		ProjectName: "proj",
		MimeType:    "text/plain",
		EntityType:  "trace",
		EntityID:    "trace-1",
		FileSize:    11,
	})
	require.NoError(t, err)
	require.Len(t, session.PreSignURLs, 1)
	assert.NotEmpty(t, session.UploadID)

	etag, err := f.Client.PutPart(ctx, session.PreSignURLs[0], []byte("hello world"))
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	err = f.Client.CompleteUpload(ctx, restdata.CompleteUploadRequest{
		UploadID: session.UploadID,
		Parts:    []restdata.UploadedPart{{PartNumber: 1, ETag: etag}},
	})
	require.NoError(t, err)

	page, err := f.Client.List(ctx, ListOptions{
		ProjectID:  f.Project.ID,
		EntityType: "trace",
		EntityID:   "trace-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	if assert.Len(t, page.Content, 1) {
		entry := page.Content[0]
		assert.Equal(t, "log.txt", entry.FileName)
		assert.Equal(t, int64(11), entry.FileSize)
		assert.Equal(t, "trace", entry.EntityType)

		resp, err := http.Get(entry.Link)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := ioutil.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	}
}

// TestUploadBytes splits a file across several parts.
func TestUploadBytes(t *testing.T) {
	f := setup(t, 4)
	defer f.Server.Close()
	ctx := context.Background()

	err := f.Client.UploadBytes(ctx, restdata.StartUploadRequest{
		FileName:    "big.bin",
		ProjectName: "proj",
		EntityType:  "span",
		EntityID:    "span-1",
	}, []byte("0123456789"))
	require.NoError(t, err)

	location, err := f.Client.DownloadURL(ctx, FileRef{
		FileName:   "big.bin",
		ProjectID:  f.Project.ID,
		EntityType: "span",
		EntityID:   "span-1",
	})
	require.NoError(t, err)
	resp, err := http.Get(location)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

// TestUploadDelete covers the single-shot route and deletion.
func TestUploadDelete(t *testing.T) {
	f := setup(t, 0)
	defer f.Server.Close()
	ctx := context.Background()
	ref := FileRef{
		FileName:    "note.txt",
		ProjectName: "proj",
		MimeType:    "text/plain",
		EntityType:  "thread",
		EntityID:    "th-1",
	}

	require.NoError(t, f.Client.Upload(ctx, ref, []byte("note")))
	_, err := f.Client.DownloadURL(ctx, ref)
	require.NoError(t, err)

	err = f.Client.Delete(ctx, restdata.DeleteRequest{
		Entities: []restdata.EntityRef{{EntityType: "thread", EntityID: "th-1"}},
	})
	require.NoError(t, err)

	_, err = f.Client.DownloadURL(ctx, ref)
	assert.Equal(t, attachment.ErrNoSuchAttachment, err)
}

// TestErrors checks that server errors come back as typed errors.
func TestErrors(t *testing.T) {
	f := setup(t, 0)
	defer f.Server.Close()
	ctx := context.Background()

	_, err := f.Client.StartUpload(ctx, restdata.StartUploadRequest{
		FileName:    "a",
		ProjectName: "missing",
		EntityType:  "trace",
		EntityID:    "t",
		FileSize:    1,
	})
	assert.Equal(t, attachment.ErrNoSuchProject{Name: "missing"}, err)

	err = f.Client.CompleteUpload(ctx, restdata.CompleteUploadRequest{UploadID: "bogus"})
	assert.Equal(t, attachment.ErrNoSuchUpload{UploadID: "bogus"}, err)

	_, err = f.Client.List(ctx, ListOptions{})
	assert.IsType(t, attachment.ErrValidation{}, err)
}
