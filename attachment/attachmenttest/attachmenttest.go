// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package attachmenttest provides generic functional tests for the
// Registry interface.  A typical backend test module needs to wrap
// Suite to create its backend:
//
//     package mybackend
//
//     import (
//             "testing"
//             "github.com/comet-ml/opik-sub005/attachment/attachmenttest"
//             "github.com/stretchr/testify/suite"
//     )
//
//     // Suite is the per-backend generic test suite.
//     type Suite struct{
//             attachmenttest.Suite
//     }
//
//     // SetupSuite does global setup for the test suite.
//     func (s *Suite) SetupSuite() {
//             s.Suite.SetupSuite()
//             s.Registry = NewWithClock(s.Clock)
//     }
//
//     // TestRegistry runs the Registry generic tests.
//     func TestRegistry(t *testing.T) {
//             suite.Run(t, &Suite{})
//     }
package attachmenttest

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/satori/go.uuid"
	"github.com/stretchr/testify/suite"

	"github.com/comet-ml/opik-sub005/attachment"
)

// Suite is the generic Registry backend test suite.
type Suite struct {
	suite.Suite

	// Clock contains the alternate time source to be used in tests.  It
	// is pre-initialized to a mock clock.
	Clock *clock.Mock

	// Registry contains the interface to the backend under test.  It
	// is set by importing packages.
	Registry attachment.Registry
}

// SetupSuite does one-time initialization for the test suite.
func (s *Suite) SetupSuite() {
	s.Clock = clock.NewMock()
	s.Clock.Set(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))
}

// ctx returns the context used for registry calls.
func (s *Suite) ctx() context.Context {
	return context.Background()
}

// projectID returns a project ID unique to the running test, so
// persistent backends do not see each other's records.
func (s *Suite) projectID() string {
	name := s.T().Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name + "-" + uuid.NewV4().String()
}

// makeAttachment builds a fresh attachment record stamped with the
// current mock time.
func (s *Suite) makeAttachment(projectID string, et attachment.EntityType, entityID, fileName string) attachment.Attachment {
	id := uuid.NewV4().String()
	return attachment.Attachment{
		ID:         id,
		FileName:   fileName,
		ProjectID:  projectID,
		EntityType: et,
		EntityID:   entityID,
		MimeType:   "text/plain",
		SizeBytes:  42,
		StorageKey: "attachments/" + projectID + "/" + id + "/" + fileName,
		UploadedAt: s.Clock.Now().UTC(),
	}
}

// upsert stores an attachment, failing the test on error, and returns
// the replaced record if any.
func (s *Suite) upsert(att attachment.Attachment) *attachment.Attachment {
	replaced, err := s.Registry.Upsert(s.ctx(), att)
	s.Require().NoError(err)
	return replaced
}
