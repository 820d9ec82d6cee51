package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedLRUBlockCache_BasicOperations(t *testing.T) {
	c := NewShardedLRUBlockCache(1<<20, nil)
	ctx := context.Background()

	key := blobKey("ns/item/0.chk", 0)
	c.Set(ctx, key, []byte("test data"))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "test data", string(got))

	_, ok = c.Get(ctx, blobKey("ns/item/1.chk", 0))
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestShardedLRUBlockCache_ShardDistribution(t *testing.T) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()
	data := make([]byte, 1024)

	for i := range 1000 {
		c.Set(ctx, blobKey(fmt.Sprintf("ns/%d/0.chk", i%100), uint64(i*4096)), data)
	}
	assert.Equal(t, int64(1000*1024), c.Size())

	nonEmpty := 0
	for _, s := range c.ShardStats() {
		if s.Size > 0 {
			nonEmpty++
		}
	}
	assert.GreaterOrEqual(t, nonEmpty, 30, "poor shard distribution")
}

func TestShardedLRUBlockCache_Concurrent(t *testing.T) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()
	data := make([]byte, 128)

	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				key := blobKey(fmt.Sprintf("ns/%d/%d.chk", g, i%10), uint64(i))
				c.Set(ctx, key, data)
				_, _ = c.Get(ctx, key)
			}
		}()
	}
	wg.Wait()

	c.Invalidate(func(CacheKey) bool { return true })
	assert.Zero(t, c.Size())
	require.NoError(t, c.Close())
}

func TestShardedLRUBlockCache_InvalidatePath(t *testing.T) {
	c := NewShardedLRUBlockCache(64<<20, nil)
	ctx := context.Background()

	for off := range uint64(8) {
		c.Set(ctx, blobKey("ns/a/0.chk", off*4096), []byte("a"))
	}
	c.Set(ctx, blobKey("ns/b/0.chk", 0), []byte("b"))

	blocks := 0
	for _, s := range c.ShardStats() {
		blocks = max(blocks, s.Blocks)
	}
	assert.GreaterOrEqual(t, blocks, 8, "blocks of one blob share a shard")

	InvalidatePath(c, CacheKindBlob, "ns/a/0.chk")
	assert.Equal(t, int64(1), c.Size())
	_, ok := c.Get(ctx, blobKey("ns/b/0.chk", 0))
	assert.True(t, ok)
	assert.Zero(t, c.Evictions())
}
