// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/comet-ml/opik-sub005/attachment/attachmenttest"
	"github.com/comet-ml/opik-sub005/postgres"
)

// Suite is the PostgreSQL backend's generic Registry test suite.
//
// This creates a PostgreSQL Registry using $ATTACHMENT_TEST_DSN as
// the connection string, or an empty string if only the standard
// libpq environment variables are set, as described in
// http://www.postgresql.org/docs/current/static/libpq-envars.html.
// Without either the tests are skipped.
type Suite struct {
	attachmenttest.Suite
}

// SetupSuite connects to the database.
func (s *Suite) SetupSuite() {
	s.Suite.SetupSuite()
	dsn := os.Getenv("ATTACHMENT_TEST_DSN")
	if dsn == "" && os.Getenv("PGHOST") == "" {
		s.T().Skip("set ATTACHMENT_TEST_DSN or PGHOST to run PostgreSQL tests")
	}
	registry, err := postgres.New(dsn)
	if err != nil {
		s.T().Fatal(err)
	}
	s.Registry = registry
}

// TestRegistry runs the generic Registry tests.
func TestRegistry(t *testing.T) {
	suite.Run(t, &Suite{})
}
