// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package memory

import (
	"context"
	"sync"

	"github.com/comet-ml/opik-sub005/attachment"
)

// registryShard is one lock domain of the registry.  Every key hashes
// to exactly one shard, so operations on one key are serialized by
// that shard's lock.
type registryShard struct {
	sem         sync.Mutex
	attachments map[attachment.Key]attachment.Attachment
}

type memRegistry struct {
	shards [shardCount]registryShard
}

// NewRegistry creates a new attachment Registry that operates purely
// in memory.
func NewRegistry() attachment.Registry {
	r := new(memRegistry)
	for i := range r.shards {
		r.shards[i].attachments = make(map[attachment.Key]attachment.Attachment)
	}
	return r
}

// shard finds the shard holding a key.  Lock it before use, as
//
//     shard := r.shard(key)
//     shard.sem.Lock()
//     defer shard.sem.Unlock()
func (r *memRegistry) shard(key attachment.Key) *registryShard {
	hashKey := key.ProjectID + "\x00" + key.EntityType.String() + "\x00" + key.EntityID + "\x00" + key.FileName
	return &r.shards[shardOf(hashKey)]
}

// forEachShard calls f on every shard while holding every shard's
// lock, so f sees a single consistent state of the registry.  Locks
// are taken in index order; single-key operations hold only one lock
// and cannot deadlock against this.
func (r *memRegistry) forEachShard(f func(*registryShard)) {
	for i := range r.shards {
		r.shards[i].sem.Lock()
	}
	defer func() {
		for i := range r.shards {
			r.shards[i].sem.Unlock()
		}
	}()
	for i := range r.shards {
		f(&r.shards[i])
	}
}

func (r *memRegistry) Upsert(ctx context.Context, att attachment.Attachment) (*attachment.Attachment, error) {
	key := att.Key()
	shard := r.shard(key)
	shard.sem.Lock()
	defer shard.sem.Unlock()

	var replaced *attachment.Attachment
	if old, present := shard.attachments[key]; present {
		replaced = &old
	}
	shard.attachments[key] = att
	return replaced, nil
}

func (r *memRegistry) Get(ctx context.Context, key attachment.Key) (attachment.Attachment, error) {
	shard := r.shard(key)
	shard.sem.Lock()
	defer shard.sem.Unlock()

	att, present := shard.attachments[key]
	if !present {
		return attachment.Attachment{}, attachment.ErrNoSuchAttachment
	}
	return att, nil
}

func (r *memRegistry) Find(ctx context.Context, query attachment.AttachmentQuery) (attachment.AttachmentPage, error) {
	var matches []attachment.Attachment
	r.forEachShard(func(shard *registryShard) {
		for _, att := range shard.attachments {
			if query.Matches(att) {
				matches = append(matches, att)
			}
		}
	})
	return attachment.Paginate(query, matches), nil
}

func (r *memRegistry) DeleteBatch(ctx context.Context, req attachment.DeletionRequest) ([]attachment.Attachment, error) {
	removed := []attachment.Attachment{}
	if len(req.Entities) == 0 {
		return removed, nil
	}
	// NB: deleting map entries while ranging over the map is
	// well-defined in Go
	r.forEachShard(func(shard *registryShard) {
		for key, att := range shard.attachments {
			if req.Matches(att) {
				removed = append(removed, att)
				delete(shard.attachments, key)
			}
		}
	})
	return removed, nil
}
