// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package reclaim

import (
	"context"
	"errors"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/memory"
)

// flakyStore fails Delete for keys in its failing set.
type flakyStore struct {
	attachment.BlobStore
	sem     sync.Mutex
	failing map[string]int
	deleted []string
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	f.sem.Lock()
	defer f.sem.Unlock()
	if f.failing[key] > 0 {
		f.failing[key]--
		return attachment.TransientError{Err: errors.New("store down")}
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *flakyStore) Deleted() []string {
	f.sem.Lock()
	defer f.sem.Unlock()
	return append([]string(nil), f.deleted...)
}

type Suite struct {
	suite.Suite
	Clock     *clock.Mock
	Store     *flakyStore
	Reclaimer *Reclaimer
}

func (s *Suite) SetupTest() {
	s.Clock = clock.NewMock()
	s.Store = &flakyStore{
		BlobStore: memory.NewBlobStore("http://blob", nil),
		failing:   make(map[string]int),
	}
	logger := logrus.New()
	logger.Out = ioutil.Discard
	s.Reclaimer = &Reclaimer{
		Store:          s.Store,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		Logger:         logger,
		Clock:          s.Clock,
	}
}

// TestImmediate deletes keys on the first pass.
func (s *Suite) TestImmediate() {
	before := testutil.ToFloat64(reclaimEvents.WithLabelValues("reclaimed"))
	s.Reclaimer.Reclaim("a", "b", "")
	s.Equal(2, s.Reclaimer.Pending())
	s.Equal(2, s.Reclaimer.Pass(context.Background()))
	s.Equal(0, s.Reclaimer.Pending())
	s.Equal([]string{"a", "b"}, s.Store.Deleted())
	s.Equal(before+2, testutil.ToFloat64(reclaimEvents.WithLabelValues("reclaimed")))
}

// TestRetry fails once, then succeeds after the backoff delay.
func (s *Suite) TestRetry() {
	s.Store.failing["a"] = 1
	s.Reclaimer.Reclaim("a")

	s.Equal(0, s.Reclaimer.Pass(context.Background()))
	s.Equal(1, s.Reclaimer.Pending())

	// Not due yet
	s.Equal(0, s.Reclaimer.Pass(context.Background()))
	s.Empty(s.Store.Deleted())

	s.Clock.Add(2 * time.Second)
	s.Equal(1, s.Reclaimer.Pass(context.Background()))
	s.Equal(0, s.Reclaimer.Pending())
	s.Equal([]string{"a"}, s.Store.Deleted())
}

// TestGiveUp drops a key after MaxAttempts failures.
func (s *Suite) TestGiveUp() {
	before := testutil.ToFloat64(reclaimEvents.WithLabelValues("dropped"))
	s.Store.failing["a"] = 100
	s.Reclaimer.Reclaim("a")
	for i := 0; i < 3; i++ {
		s.Reclaimer.Pass(context.Background())
		s.Clock.Add(time.Minute + time.Second)
	}
	s.Equal(0, s.Reclaimer.Pending())
	s.Empty(s.Store.Deleted())
	s.Equal(before+1, testutil.ToFloat64(reclaimEvents.WithLabelValues("dropped")))
}

// TestRun checks that the background loop picks up queued keys.
func (s *Suite) TestRun() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Reclaimer.Run(ctx) }()

	s.Reclaimer.Reclaim("a")
	s.Eventually(func() bool { return len(s.Store.Deleted()) == 1 },
		time.Second, time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func TestReclaimer(t *testing.T) {
	suite.Run(t, &Suite{})
}

func TestCollectors(t *testing.T) {
	assert.Len(t, Collectors(), 1)
}
