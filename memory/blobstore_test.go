// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package memory_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/memory"
)

// BlobSuite exercises the in-memory blob store through its own HTTP
// handler.
type BlobSuite struct {
	suite.Suite
	Clock  *clock.Mock
	Server *httptest.Server
	Store  *memory.BlobStore
}

func (s *BlobSuite) SetupTest() {
	s.Clock = clock.NewMock()
	s.Clock.Set(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))
	mux := http.NewServeMux()
	s.Server = httptest.NewServer(mux)
	s.Store = memory.NewBlobStoreWithClock(s.Server.URL+"/blob", []byte("secret"), s.Clock)
	mux.Handle("/blob/", http.StripPrefix("/blob/", s.Store))
}

func (s *BlobSuite) TearDownTest() {
	s.Server.Close()
}

// put does an HTTP PUT and returns the response.
func (s *BlobSuite) put(url string, body string) *http.Response {
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	_ = resp.Body.Close()
	return resp
}

// get does an HTTP GET and returns the response and body.
func (s *BlobSuite) get(url string) (*http.Response, string) {
	resp, err := http.Get(url)
	s.Require().NoError(err)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, string(data)
}

// TestMultipartRoundTrip uploads two parts and downloads the result.
func (s *BlobSuite) TestMultipartRoundTrip() {
	ctx := context.Background()
	key := "attachments/p/trace/t/u/log.txt"

	id, err := s.Store.InitiateMultipart(ctx, key, "text/plain")
	s.Require().NoError(err)

	var parts []attachment.Part
	for i, body := range []string{"hello, ", "world"} {
		url, err := s.Store.PresignPart(ctx, key, id, i+1, time.Hour)
		s.Require().NoError(err)
		resp := s.put(url, body)
		s.Equal(http.StatusOK, resp.StatusCode)
		etag := resp.Header.Get("ETag")
		s.NotEmpty(etag)
		parts = append(parts, attachment.Part{PartNumber: i + 1, ETag: etag})
	}
	s.Equal(1, s.Store.PendingUploads())

	size, err := s.Store.CompleteMultipart(ctx, key, id, parts)
	s.Require().NoError(err)
	s.Equal(int64(12), size)
	s.Equal(0, s.Store.PendingUploads())

	data, mimeType, present := s.Store.Object(key)
	s.True(present)
	s.Equal("hello, world", string(data))
	s.Equal("text/plain", mimeType)

	url, err := s.Store.PresignGet(ctx, key, "text/plain", "log.txt", time.Minute)
	s.Require().NoError(err)
	resp, body := s.get(url)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("hello, world", body)
	s.Equal("text/plain", resp.Header.Get("Content-Type"))
	s.Contains(resp.Header.Get("Content-Disposition"), "log.txt")
	s.True(strings.HasSuffix(strings.Trim(resp.Header.Get("ETag"), "\""), "-2"))
}

// TestBadETag checks that a wrong ETag is rejected.
func (s *BlobSuite) TestBadETag() {
	ctx := context.Background()
	key := "k"
	id, err := s.Store.InitiateMultipart(ctx, key, "")
	s.Require().NoError(err)
	url, err := s.Store.PresignPart(ctx, key, id, 1, time.Hour)
	s.Require().NoError(err)
	s.put(url, "data")

	_, err = s.Store.CompleteMultipart(ctx, key, id, []attachment.Part{{PartNumber: 1, ETag: "\"nope\""}})
	s.Equal(attachment.ErrPartsRejected, err)

	// Missing part two
	_, err = s.Store.CompleteMultipart(ctx, key, id, []attachment.Part{
		{PartNumber: 1, ETag: "nope"},
		{PartNumber: 2, ETag: "nope"},
	})
	s.Equal(attachment.ErrPartsRejected, err)

	_, _, present := s.Store.Object(key)
	s.False(present)
	s.Equal(1, s.Store.PendingUploads())
}

// TestStat reports the size of stored objects only.
func (s *BlobSuite) TestStat() {
	ctx := context.Background()
	_, err := s.Store.Stat(ctx, "k")
	s.Equal(attachment.ErrNoSuchObject, err)

	s.Require().NoError(s.Store.Put(ctx, "k", "text/plain", strings.NewReader("four"), 4))
	size, err := s.Store.Stat(ctx, "k")
	s.NoError(err)
	s.Equal(int64(4), size)

	s.Require().NoError(s.Store.Delete(ctx, "k"))
	_, err = s.Store.Stat(ctx, "k")
	s.Equal(attachment.ErrNoSuchObject, err)
}

// TestPartTooLarge refuses a part body over MaxPartSize.
func (s *BlobSuite) TestPartTooLarge() {
	ctx := context.Background()
	s.Equal(int64(memory.DefaultMaxPartSize), s.Store.MaxPartSize)
	s.Store.MaxPartSize = 8

	key := "k"
	id, err := s.Store.InitiateMultipart(ctx, key, "")
	s.Require().NoError(err)
	url, err := s.Store.PresignPart(ctx, key, id, 1, time.Hour)
	s.Require().NoError(err)

	resp := s.put(url, "123456789")
	s.Equal(http.StatusRequestEntityTooLarge, resp.StatusCode)
	s.Empty(resp.Header.Get("ETag"))

	resp = s.put(url, "12345678")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("ETag"))
}

// TestUnknownUpload checks operations on a bogus upload ID.
func (s *BlobSuite) TestUnknownUpload() {
	ctx := context.Background()
	_, err := s.Store.PresignPart(ctx, "k", "bogus", 1, time.Hour)
	s.Equal(attachment.ErrNoSuchStoreUpload, err)
	_, err = s.Store.CompleteMultipart(ctx, "k", "bogus", []attachment.Part{{PartNumber: 1, ETag: "x"}})
	s.Equal(attachment.ErrNoSuchStoreUpload, err)
	s.Equal(attachment.ErrNoSuchStoreUpload, s.Store.AbortMultipart(ctx, "k", "bogus"))
}

// TestAbort discards an upload so later part PUTs fail.
func (s *BlobSuite) TestAbort() {
	ctx := context.Background()
	id, err := s.Store.InitiateMultipart(ctx, "k", "")
	s.Require().NoError(err)
	url, err := s.Store.PresignPart(ctx, "k", id, 1, time.Hour)
	s.Require().NoError(err)

	s.NoError(s.Store.AbortMultipart(ctx, "k", id))
	s.Equal(0, s.Store.PendingUploads())
	resp := s.put(url, "late")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

// TestExpiredURL checks that presigned URLs stop working.
func (s *BlobSuite) TestExpiredURL() {
	ctx := context.Background()
	s.Require().NoError(s.Store.Put(ctx, "k", "text/plain", strings.NewReader("abc"), 3))
	url, err := s.Store.PresignGet(ctx, "k", "", "", time.Minute)
	s.Require().NoError(err)

	resp, _ := s.get(url)
	s.Equal(http.StatusOK, resp.StatusCode)

	s.Clock.Add(2 * time.Minute)
	resp, _ = s.get(url)
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

// TestTamperedURL checks that the signature covers the key.
func (s *BlobSuite) TestTamperedURL() {
	ctx := context.Background()
	s.Require().NoError(s.Store.Put(ctx, "a", "", strings.NewReader("a"), 1))
	s.Require().NoError(s.Store.Put(ctx, "b", "", strings.NewReader("b"), 1))
	url, err := s.Store.PresignGet(ctx, "a", "", "", time.Minute)
	s.Require().NoError(err)

	resp, _ := s.get(strings.Replace(url, "/blob/a?", "/blob/b?", 1))
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

// TestPutDelete covers single-shot objects.
func (s *BlobSuite) TestPutDelete() {
	ctx := context.Background()
	err := s.Store.Put(ctx, "k", "", bytes.NewReader([]byte("toolong")), 3)
	s.Error(err)

	s.Require().NoError(s.Store.Put(ctx, "k", "", strings.NewReader("abc"), 3))
	s.Equal([]string{"k"}, s.Store.Keys())
	s.NoError(s.Store.Delete(ctx, "k"))
	s.NoError(s.Store.Delete(ctx, "k"))
	s.Empty(s.Store.Keys())
}

func TestBlobStore(t *testing.T) {
	suite.Run(t, &BlobSuite{})
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjects()
	p := projects.Add("ws", "proj")
	assert.Equal(t, p, projects.Add("ws", "proj"))

	actual, err := projects.ResolveProject(ctx, "ws", "proj")
	if assert.NoError(t, err) {
		assert.Equal(t, p, actual)
	}
	_, err = projects.ResolveProject(ctx, "ws", "other")
	assert.Equal(t, attachment.ErrNoSuchProject{Name: "other"}, err)
	_, err = projects.ResolveProject(ctx, "elsewhere", "proj")
	assert.Equal(t, attachment.ErrNoSuchProject{Name: "proj"}, err)

	actual, err = projects.Project(ctx, "ws", p.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, p, actual)
	}
	_, err = projects.Project(ctx, "elsewhere", p.ID)
	assert.Equal(t, attachment.ErrForbidden, err)

	projects.AutoCreate = true
	created, err := projects.ResolveProject(ctx, "ws", "other")
	require.NoError(t, err)
	assert.Equal(t, "other", created.Name)

	list, err := projects.Projects(ctx, "ws")
	if assert.NoError(t, err) {
		assert.Equal(t, []attachment.Project{created, p}, list)
	}
}

// TestProjectIDsStable checks that independent resolvers, as in two
// daemon processes or one restarted, agree on project IDs.
func TestProjectIDsStable(t *testing.T) {
	ctx := context.Background()
	first := memory.NewProjects()
	first.AutoCreate = true
	second := memory.NewProjects()
	second.AutoCreate = true

	a, err := first.ResolveProject(ctx, "ws", "proj")
	require.NoError(t, err)
	b, err := second.ResolveProject(ctx, "ws", "proj")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, memory.ProjectID("ws", "proj"), a.ID)
	assert.Equal(t, a, second.Add("ws", "proj"))

	other, err := first.ResolveProject(ctx, "team", "proj")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)
	assert.NotEqual(t, memory.ProjectID("w", "sproj"), memory.ProjectID("ws", "proj"))
}

func TestAddWithID(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjects()
	p, err := projects.AddWithID("ws", "proj", "0190b5a4-0000-7000-8000-000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0190b5a4-0000-7000-8000-000000000001", p.ID)

	again, err := projects.AddWithID("ws", "proj", p.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, p, again)
	}
	assert.Equal(t, p, projects.Add("ws", "proj"))

	_, err = projects.AddWithID("ws", "proj", "another")
	assert.Error(t, err)
	_, err = projects.AddWithID("ws", "renamed", p.ID)
	assert.Error(t, err)

	found, err := projects.Project(ctx, "ws", p.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, p, found)
	}
}
