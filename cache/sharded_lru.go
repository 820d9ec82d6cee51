package cache

import (
	"context"
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/chunkcache/resource"
)

const numShards = 64

// ShardedLRUBlockCache spreads blocks over 64 independently locked LRUs.
// All blocks of one blob live in the same shard, so invalidating a chunk
// locks a single shard. Blobs larger than a shard's capacity are only
// partially cached.
type ShardedLRUBlockCache struct {
	shards [numShards]*LRUBlockCache
}

// NewShardedLRUBlockCache creates a new sharded LRU cache.
// The capacity is divided evenly across all shards.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *ShardedLRUBlockCache {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRUBlockCache{}
	for i := range numShards {
		s.shards[i] = NewLRUBlockCache(shardCapacity, rc)
	}
	return s
}

func (s *ShardedLRUBlockCache) shard(kind CacheKind, path string) *LRUBlockCache {
	return s.shards[(xxhash.Sum64String(path)+uint64(kind))%numShards]
}

// Get returns a cached block.
func (s *ShardedLRUBlockCache) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	return s.shard(key.Kind, key.Path).Get(ctx, key)
}

// Set caches a block.
func (s *ShardedLRUBlockCache) Set(ctx context.Context, key CacheKey, b []byte) {
	s.shard(key.Kind, key.Path).Set(ctx, key, b)
}

// Invalidate removes entries matching the predicate. Shards are visited one
// at a time, so reads on other shards proceed meanwhile.
func (s *ShardedLRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	for _, shard := range s.shards {
		shard.Invalidate(predicate)
	}
}

// InvalidatePath removes the blocks of kind cached for path.
func (s *ShardedLRUBlockCache) InvalidatePath(kind CacheKind, path string) {
	s.shard(kind, path).InvalidatePath(kind, path)
}

// Close drops the entries of every shard.
func (s *ShardedLRUBlockCache) Close() error {
	errs := make([]error, 0, numShards)
	for _, shard := range s.shards {
		errs = append(errs, shard.Close())
	}
	return errors.Join(errs...)
}

// Stats returns hits and misses summed over all shards.
func (s *ShardedLRUBlockCache) Stats() (hits, misses int64) {
	for _, st := range s.ShardStats() {
		hits += st.Hits
		misses += st.Misses
	}
	return hits, misses
}

// Size returns the cached bytes summed over all shards.
func (s *ShardedLRUBlockCache) Size() int64 {
	var n int64
	for _, shard := range s.shards {
		n += shard.Size()
	}
	return n
}

// Evictions returns the blocks evicted across all shards.
func (s *ShardedLRUBlockCache) Evictions() int64 {
	var n int64
	for _, shard := range s.shards {
		n += shard.Evictions()
	}
	return n
}

// ShardStat describes one shard. Its index in ShardStats is the shard number.
type ShardStat struct {
	Size   int64
	Blocks int
	Hits   int64
	Misses int64
}

// ShardStats returns per-shard statistics.
func (s *ShardedLRUBlockCache) ShardStats() []ShardStat {
	stats := make([]ShardStat, len(s.shards))
	for i, shard := range s.shards {
		hits, misses := shard.Stats()
		stats[i] = ShardStat{Size: shard.Size(), Blocks: shard.Len(), Hits: hits, Misses: misses}
	}
	return stats
}
