// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package query_test

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/memory"
	"github.com/comet-ml/opik-sub005/query"
)

// countingStore counts presign calls and can fail them.
type countingStore struct {
	attachment.BlobStore
	presigned int
	err       error
}

func (c *countingStore) PresignGet(ctx context.Context, key, mimeType, fileName string, ttl time.Duration) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.presigned++
	return c.BlobStore.PresignGet(ctx, key, mimeType, fileName, ttl)
}

type Suite struct {
	suite.Suite
	Clock    *clock.Mock
	Store    *countingStore
	Registry attachment.Registry
	Projects *memory.Projects
	Project  attachment.Project
	Service  *query.Service
}

func (s *Suite) SetupTest() {
	s.Clock = clock.NewMock()
	s.Clock.Set(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))
	s.Store = &countingStore{BlobStore: memory.NewBlobStoreWithClock("http://blob", nil, s.Clock)}
	s.Registry = memory.NewRegistry()
	s.Projects = memory.NewProjects()
	s.Project = s.Projects.Add("ws", "proj")
	s.Projects.Add("other", "theirs")

	logger := logrus.New()
	logger.Out = ioutil.Discard
	s.Service = &query.Service{
		Registry: s.Registry,
		Store:    s.Store,
		Projects: s.Projects,
		URLTTL:   10 * time.Minute,
		Logger:   logger,
		Clock:    s.Clock,
	}
}

func (s *Suite) add(entityID, fileName string) attachment.Attachment {
	att := attachment.Attachment{
		ID:         uuid.NewV4().String(),
		FileName:   fileName,
		ProjectID:  s.Project.ID,
		EntityType: attachment.TraceEntity,
		EntityID:   entityID,
		MimeType:   "text/plain",
		SizeBytes:  3,
		StorageKey: "attachments/" + uuid.NewV4().String(),
		UploadedAt: s.Clock.Now().UTC(),
	}
	_, err := s.Registry.Upsert(context.Background(), att)
	s.Require().NoError(err)
	s.Clock.Add(time.Second)
	return att
}

// TestList returns linked entries newest first.
func (s *Suite) TestList() {
	ctx := context.Background()
	older := s.add("t1", "a.txt")
	newer := s.add("t1", "b.txt")
	s.add("t2", "c.txt")

	page, err := s.Service.List(ctx, "ws", attachment.AttachmentQuery{
		ProjectID:  s.Project.ID,
		EntityType: attachment.TraceEntity,
		EntityID:   "t1",
	})
	s.Require().NoError(err)
	s.Equal(1, page.Page)
	s.Equal(attachment.DefaultPageSize, page.Size)
	s.Equal(2, page.Total)
	if s.Len(page.Entries, 2) {
		s.Equal(newer, page.Entries[0].Attachment)
		s.Equal(older, page.Entries[1].Attachment)
		s.Contains(page.Entries[0].Link, "http://blob/")
		s.NotEqual(page.Entries[0].Link, page.Entries[1].Link)
	}
}

// TestListAccess rejects other workspaces and unknown projects.
func (s *Suite) TestListAccess() {
	ctx := context.Background()
	_, err := s.Service.List(ctx, "other", attachment.AttachmentQuery{ProjectID: s.Project.ID})
	s.Equal(attachment.ErrForbidden, err)

	_, err = s.Service.List(ctx, "ws", attachment.AttachmentQuery{})
	s.IsType(attachment.ErrValidation{}, err)

	_, err = s.Service.List(ctx, "ws", attachment.AttachmentQuery{ProjectID: "missing"})
	s.IsType(attachment.ErrNoSuchProject{}, err)
}

// TestListEmpty returns an empty, non-nil page.
func (s *Suite) TestListEmpty() {
	page, err := s.Service.List(context.Background(), "ws", attachment.AttachmentQuery{ProjectID: s.Project.ID})
	s.Require().NoError(err)
	s.Equal(0, page.Total)
	s.NotNil(page.Entries)
	s.Empty(page.Entries)
}

// TestCache reuses signed URLs for part of their TTL.
func (s *Suite) TestCache() {
	ctx := context.Background()
	s.add("t1", "a.txt")
	q := attachment.AttachmentQuery{ProjectID: s.Project.ID}

	first, err := s.Service.List(ctx, "ws", q)
	s.Require().NoError(err)
	s.Equal(1, s.Store.presigned)

	s.Clock.Add(4 * time.Minute)
	second, err := s.Service.List(ctx, "ws", q)
	s.Require().NoError(err)
	s.Equal(1, s.Store.presigned)
	s.Equal(first.Entries[0].Link, second.Entries[0].Link)

	s.Clock.Add(2 * time.Minute)
	_, err = s.Service.List(ctx, "ws", q)
	s.Require().NoError(err)
	s.Equal(2, s.Store.presigned)
}

// TestDownload resolves a single attachment by ID or by name.
func (s *Suite) TestDownload() {
	ctx := context.Background()
	s.add("t1", "a.txt")

	byID, err := s.Service.Download(ctx, "ws", query.DownloadRequest{
		ProjectID:  s.Project.ID,
		EntityType: attachment.TraceEntity,
		EntityID:   "t1",
		FileName:   "a.txt",
	})
	s.Require().NoError(err)
	s.Contains(byID, "http://blob/")

	byName, err := s.Service.Download(ctx, "ws", query.DownloadRequest{
		ProjectName: "proj",
		EntityType:  attachment.TraceEntity,
		EntityID:    "t1",
		FileName:    "a.txt",
	})
	s.Require().NoError(err)
	s.Equal(byID, byName)

	_, err = s.Service.Download(ctx, "ws", query.DownloadRequest{
		ProjectID:  s.Project.ID,
		EntityType: attachment.TraceEntity,
		EntityID:   "t1",
		FileName:   "missing.txt",
	})
	s.Equal(attachment.ErrNoSuchAttachment, err)

	_, err = s.Service.Download(ctx, "ws", query.DownloadRequest{FileName: "a.txt"})
	s.IsType(attachment.ErrValidation{}, err)
}

// TestUnavailable maps transient signing failures.
func (s *Suite) TestUnavailable() {
	s.add("t1", "a.txt")
	s.Store.err = attachment.TransientError{Err: errors.New("down")}
	_, err := s.Service.List(context.Background(), "ws", attachment.AttachmentQuery{ProjectID: s.Project.ID})
	s.IsType(attachment.ErrUnavailable{}, err)
}

func TestService(t *testing.T) {
	suite.Run(t, &Suite{})
}
