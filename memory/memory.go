// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package memory provides in-process, in-memory implementations of
// the attachment Registry, BlobStore and ProjectResolver interfaces.
// There is no persistence and no sharing between processes.
//
// This is mostly intended as a simple reference implementation that
// can be used for testing, including in-process testing of
// higher-level components, and for running the service in a
// self-contained development mode.  It is generally tuned for
// correctness, not performance or scalability.
package memory

import (
	"github.com/cespare/xxhash/v2"
)

// shardCount is the number of independently locked partitions in
// sharded maps.  It must be a power of two.
const shardCount = 32

// shardOf picks the shard index for a string key.
func shardOf(key string) int {
	return int(xxhash.Sum64String(key) & (shardCount - 1))
}
