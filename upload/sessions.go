// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package upload

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/comet-ml/opik-sub005/attachment"
)

// session is the coordinator's private record of an in-flight
// upload.  The embedded UploadSession is the part clients see.
type session struct {
	attachment.UploadSession

	Workspace     string
	ProjectID     string
	Info          attachment.AttachmentInfo
	SizeBytes     int64
	StoreUploadID string
}

// shardCount is the number of independently locked arena partitions.
// It must be a power of two.
const shardCount = 64

type arenaShard struct {
	sem      sync.Mutex
	sessions map[string]*session
}

// arena holds every started session keyed by upload ID.  There is no
// global lock; each upload ID hashes to one shard.
//
// Removing a session from the arena is the only way to act on it.
// Both completion and expiry go through claim(), so whichever gets
// there first owns the session and the other sees nothing.
type arena struct {
	shards [shardCount]arenaShard
}

func newArena() *arena {
	a := new(arena)
	for i := range a.shards {
		a.shards[i].sessions = make(map[string]*session)
	}
	return a
}

func (a *arena) shard(uploadID string) *arenaShard {
	return &a.shards[xxhash.Sum64String(uploadID)&(shardCount-1)]
}

// put adds or returns a session to the arena.
func (a *arena) put(s *session) {
	shard := a.shard(s.UploadID)
	shard.sem.Lock()
	defer shard.sem.Unlock()
	shard.sessions[s.UploadID] = s
}

// claim atomically removes a session.  It returns false if there is
// no such session, including if someone else already claimed it.
func (a *arena) claim(uploadID string) (*session, bool) {
	shard := a.shard(uploadID)
	shard.sem.Lock()
	defer shard.sem.Unlock()
	s, present := shard.sessions[uploadID]
	if present {
		delete(shard.sessions, uploadID)
	}
	return s, present
}

// claimExpired atomically removes and returns every session whose
// expiry time is before now.
func (a *arena) claimExpired(now time.Time) []*session {
	var expired []*session
	for i := range a.shards {
		shard := &a.shards[i]
		shard.sem.Lock()
		for id, s := range shard.sessions {
			if s.ExpiresAt.Before(now) {
				expired = append(expired, s)
				delete(shard.sessions, id)
			}
		}
		shard.sem.Unlock()
	}
	return expired
}

// count returns the number of sessions in the arena, and how many of
// those are past their expiry time.
func (a *arena) count(now time.Time) (total, overdue int) {
	for i := range a.shards {
		shard := &a.shards[i]
		shard.sem.Lock()
		total += len(shard.sessions)
		for _, s := range shard.sessions {
			if s.ExpiresAt.Before(now) {
				overdue++
			}
		}
		shard.sem.Unlock()
	}
	return
}
