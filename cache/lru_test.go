package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache/resource"
)

func blobKey(path string, off uint64) CacheKey {
	return CacheKey{Kind: CacheKindBlob, Path: path, Offset: off}
}

func TestLRUBlockCache(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRUBlockCache(50, rc)
	ctx := context.Background()

	k1, k2, k3 := blobKey("a", 0), blobKey("a", 20), blobKey("a", 40)

	c.Set(ctx, k1, make([]byte, 20))
	c.Set(ctx, k2, make([]byte, 20))
	assert.Equal(t, int64(40), c.Size())
	assert.Equal(t, int64(40), rc.MemoryUsage())

	// 60 > 50 evicts k1.
	c.Set(ctx, k3, make([]byte, 20))
	assert.Equal(t, int64(40), c.Size())
	assert.Equal(t, int64(40), rc.MemoryUsage())

	_, ok := c.Get(ctx, k1)
	assert.False(t, ok, "k1 should be evicted")
	_, ok = c.Get(ctx, k2)
	assert.True(t, ok)
	_, ok = c.Get(ctx, k3)
	assert.True(t, ok)

	require.NoError(t, c.Close())
	assert.Zero(t, rc.MemoryUsage(), "close returns memory")
}

func TestLRUBlockCache_GlobalLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 30})
	c := NewLRUBlockCache(100, rc)
	ctx := context.Background()

	c.Set(ctx, blobKey("a", 0), make([]byte, 20))
	c.Set(ctx, blobKey("a", 1), make([]byte, 20))

	_, ok := c.Get(ctx, blobKey("a", 1))
	assert.False(t, ok, "denied by the memory budget")
	assert.Equal(t, int64(20), c.Size())
}

func TestLRUBlockCache_Update(t *testing.T) {
	ctx := context.Background()
	k := blobKey("a", 0)

	c := NewLRUBlockCache(50, nil)
	c.Set(ctx, k, make([]byte, 60))
	_, ok := c.Get(ctx, k)
	assert.False(t, ok, "item larger than capacity is not cached")

	c.Set(ctx, k, make([]byte, 10))
	c.Set(ctx, k, make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())
	c.Set(ctx, k, make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())
	assert.Equal(t, 1, c.Len())

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	c2 := NewLRUBlockCache(50, rc)
	c2.Set(ctx, k, make([]byte, 8))
	c2.Set(ctx, k, make([]byte, 12))

	val, ok := c2.Get(ctx, k)
	require.True(t, ok)
	assert.Len(t, val, 8, "growth rejected by the memory budget")
	assert.Equal(t, int64(8), rc.MemoryUsage())
	assert.Equal(t, int64(8), c2.Size())

	c2.Set(ctx, k, make([]byte, 10))
	val, ok = c2.Get(ctx, k)
	require.True(t, ok)
	assert.Len(t, val, 10, "growth within the budget")
	assert.Equal(t, int64(10), rc.MemoryUsage())

	c2.Set(ctx, k, make([]byte, 5))
	assert.Equal(t, int64(5), rc.MemoryUsage())
	assert.Equal(t, int64(5), c2.Size())
	assert.Equal(t, 1, c2.Len())
}

func TestLRUBlockCache_UpdateKeepsOtherBlocksWhenRoomExists(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(30, nil)

	c.Set(ctx, blobKey("a", 0), make([]byte, 10))
	c.Set(ctx, blobKey("b", 0), make([]byte, 10))
	c.Set(ctx, blobKey("a", 0), make([]byte, 20))

	assert.Equal(t, int64(30), c.Size())
	assert.Zero(t, c.Evictions())

	// Growing a again evicts b, never a itself.
	c.Set(ctx, blobKey("a", 0), make([]byte, 25))
	val, ok := c.Get(ctx, blobKey("a", 0))
	require.True(t, ok)
	assert.Len(t, val, 25)
	_, ok = c.Get(ctx, blobKey("b", 0))
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Evictions())
}

func TestLRUBlockCache_InvalidatePath(t *testing.T) {
	c := NewLRUBlockCache(100, nil)
	ctx := context.Background()
	c.Set(ctx, blobKey("ns/a/0.chk", 0), []byte("a"))
	c.Set(ctx, blobKey("ns/a/0.chk", 4096), []byte("b"))
	c.Set(ctx, blobKey("ns/b/0.chk", 0), []byte("c"))

	InvalidatePath(c, CacheKindBlob, "ns/a/0.chk")

	_, ok := c.Get(ctx, blobKey("ns/a/0.chk", 0))
	assert.False(t, ok)
	_, ok = c.Get(ctx, blobKey("ns/a/0.chk", 4096))
	assert.False(t, ok)
	_, ok = c.Get(ctx, blobKey("ns/b/0.chk", 0))
	assert.True(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestLRUBlockCache_InvalidateKinds(t *testing.T) {
	c := NewLRUBlockCache(100, nil)
	ctx := context.Background()
	header := CacheKey{Kind: CacheKindHeader, Path: "ns/a/0.chk"}
	c.Set(ctx, header, []byte("h"))
	c.Set(ctx, blobKey("ns/a/0.chk", 0), []byte("b"))
	c.Set(ctx, CacheKey{Kind: CacheKindHeader, Path: "other/a/0.chk"}, []byte("o"))

	InvalidatePath(c, CacheKindBlob, "ns/a/0.chk")
	_, ok := c.Get(ctx, header)
	assert.True(t, ok, "headers survive blob invalidation")

	InvalidatePrefix(c, CacheKindHeader, "ns/")
	_, ok = c.Get(ctx, header)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Size())
}

func TestLRUBlockCache_Evictions(t *testing.T) {
	c := NewLRUBlockCache(10, nil)
	ctx := context.Background()
	for i := range 5 {
		c.Set(ctx, blobKey("a", uint64(i)), make([]byte, 4))
	}
	assert.Equal(t, int64(3), c.Evictions())
	assert.Equal(t, 2, c.Len())

	InvalidatePath(c, CacheKindBlob, "a")
	assert.Zero(t, c.Len())
	assert.Equal(t, int64(3), c.Evictions(), "invalidation is not eviction")
}
