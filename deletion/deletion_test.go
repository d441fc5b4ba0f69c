// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package deletion

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/memory"
	"github.com/comet-ml/opik-sub005/reclaim"
)

// failingStore never manages to delete anything.
type failingStore struct {
	attachment.BlobStore
}

func (failingStore) Delete(ctx context.Context, key string) error {
	return attachment.TransientError{Err: errors.New("store down")}
}

type Suite struct {
	suite.Suite
	Clock     *clock.Mock
	Registry  attachment.Registry
	Projects  *memory.Projects
	Reclaimer *reclaim.Reclaimer
	Service   *Service
	Alpha     attachment.Project
	Beta      attachment.Project
}

func (s *Suite) SetupTest() {
	s.Clock = clock.NewMock()
	s.Registry = memory.NewRegistry()
	s.Projects = memory.NewProjects()
	s.Alpha = s.Projects.Add("ws", "alpha")
	s.Beta = s.Projects.Add("ws", "beta")

	logger := logrus.New()
	logger.Out = ioutil.Discard
	s.Reclaimer = &reclaim.Reclaimer{
		Store:  failingStore{memory.NewBlobStore("http://blob", nil)},
		Logger: logger,
		Clock:  s.Clock,
	}
	s.Service = &Service{
		Registry:  s.Registry,
		Projects:  s.Projects,
		Reclaimer: s.Reclaimer,
		Logger:    logger,
	}
}

func (s *Suite) add(project attachment.Project, entityID, fileName string) {
	_, err := s.Registry.Upsert(context.Background(), attachment.Attachment{
		ID:         uuid.NewV4().String(),
		FileName:   fileName,
		ProjectID:  project.ID,
		EntityType: attachment.TraceEntity,
		EntityID:   entityID,
		StorageKey: uuid.NewV4().String(),
		UploadedAt: s.Clock.Now().Add(time.Duration(len(fileName)) * time.Second),
	})
	s.Require().NoError(err)
}

func (s *Suite) count(project attachment.Project) int {
	page, err := s.Registry.Find(context.Background(), attachment.AttachmentQuery{ProjectID: project.ID})
	s.Require().NoError(err)
	return page.Total
}

func trace(id string) attachment.EntityRef {
	return attachment.EntityRef{EntityType: attachment.TraceEntity, EntityID: id}
}

// TestDeleteProject removes one entity's attachments even though blob
// deletion keeps failing.
func (s *Suite) TestDeleteProject() {
	ctx := context.Background()
	s.add(s.Alpha, "t1", "a.txt")
	s.add(s.Alpha, "t1", "b.txt")
	s.add(s.Alpha, "t2", "c.txt")
	before := testutil.ToFloat64(deletedAttachments)

	n, err := s.Service.Delete(ctx, "ws", attachment.DeletionRequest{
		ProjectID: s.Alpha.ID,
		Entities:  []attachment.EntityRef{trace("t1")},
	})
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(1, s.count(s.Alpha))
	s.Equal(2, s.Reclaimer.Pending())
	s.Equal(before+2, testutil.ToFloat64(deletedAttachments))

	s.Reclaimer.Pass(ctx)
	s.Equal(1, s.count(s.Alpha))
}

// TestDeleteWorkspace applies a request without a project to every
// project in the workspace.
func (s *Suite) TestDeleteWorkspace() {
	ctx := context.Background()
	s.add(s.Alpha, "t1", "a.txt")
	s.add(s.Beta, "t1", "a.txt")
	s.add(s.Beta, "t1", "skip.log")

	n, err := s.Service.Delete(ctx, "", attachment.DeletionRequest{
		Entities: []attachment.EntityRef{trace("t1")},
		Prefix:   "a",
	})
	s.Require().NoError(err)
	s.Equal(0, n, "default workspace has no projects")

	n, err = s.Service.Delete(ctx, "ws", attachment.DeletionRequest{
		Entities: []attachment.EntityRef{trace("t1")},
		Prefix:   "a",
	})
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(0, s.count(s.Alpha))
	s.Equal(1, s.count(s.Beta))
}

// TestDeleteNothing treats an empty entity list as a no-op.
func (s *Suite) TestDeleteNothing() {
	s.add(s.Alpha, "t1", "a.txt")
	n, err := s.Service.Delete(context.Background(), "ws", attachment.DeletionRequest{ProjectID: s.Alpha.ID})
	s.NoError(err)
	s.Equal(0, n)
	s.Equal(1, s.count(s.Alpha))
}

// TestDeleteErrors covers access and validation failures.
func (s *Suite) TestDeleteErrors() {
	ctx := context.Background()
	_, err := s.Service.Delete(ctx, "elsewhere", attachment.DeletionRequest{
		ProjectID: s.Alpha.ID,
		Entities:  []attachment.EntityRef{trace("t1")},
	})
	s.Equal(attachment.ErrForbidden, err)

	_, err = s.Service.Delete(ctx, "ws", attachment.DeletionRequest{
		ProjectID: s.Alpha.ID,
		Entities:  []attachment.EntityRef{{EntityID: "t1"}},
	})
	s.Equal(attachment.ErrValidation{Field: "entity_type", Reason: "is required"}, err)

	_, err = s.Service.Delete(ctx, "ws", attachment.DeletionRequest{
		ProjectID: s.Alpha.ID,
		Entities:  []attachment.EntityRef{{EntityType: attachment.SpanEntity}},
	})
	s.Equal(attachment.ErrValidation{Field: "entity_id", Reason: "is required"}, err)
}

func TestDeletion(t *testing.T) {
	suite.Run(t, &Suite{})
}

func TestCollectors(t *testing.T) {
	assert.Len(t, Collectors(), 1)
}
