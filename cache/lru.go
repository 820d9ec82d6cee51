package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/chunkcache/resource"
)

// LRUBlockCache is a byte-bounded LRU BlockCache. Blocks are additionally
// indexed by blob path, so invalidating the blocks of one chunk does not scan
// the whole cache.
type LRUBlockCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[CacheKey]*list.Element
	byPath   map[pathKey]map[CacheKey]*list.Element
	order    *list.List // front is most recently used
	rc       *resource.Controller

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type pathKey struct {
	kind CacheKind
	path string
}

type entry struct {
	key   CacheKey
	value []byte
}

// NewLRUBlockCache creates a new LRU cache with the given capacity in bytes.
// If rc is provided, cached bytes are accounted against its memory budget and
// blocks are dropped instead of cached when the budget is exhausted.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity: capacity,
		items:    make(map[CacheKey]*list.Element),
		byPath:   make(map[pathKey]map[CacheKey]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

// Get returns a cached block.
func (c *LRUBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Set caches a block, replacing a block cached under the same key.
func (c *LRUBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	n := int64(len(b))
	if n > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var prev int64
	cur, ok := c.items[key]
	if ok {
		prev = int64(len(cur.Value.(*entry).value))
		c.order.MoveToFront(cur)
	}

	// Make room locally first so the released memory can be reacquired. The
	// block being replaced sits at the front and is never evicted here.
	for c.size-prev+n > c.capacity {
		if back := c.order.Back(); back == nil || back == cur {
			break
		}
		c.evictOldest()
	}

	// Only the difference is reserved, so a rejected update keeps the old block.
	if !c.rc.TryAcquireMemory(n - prev) {
		return
	}
	c.rc.ReleaseMemory(prev - n)

	if ok {
		cur.Value.(*entry).value = b
		c.size += n - prev
		return
	}

	el := c.order.PushFront(&entry{key: key, value: b})
	c.items[key] = el
	pk := pathKey{key.Kind, key.Path}
	blocks := c.byPath[pk]
	if blocks == nil {
		blocks = make(map[CacheKey]*list.Element)
		c.byPath[pk] = blocks
	}
	blocks[key] = el
	c.size += n
}

// Invalidate removes entries matching the predicate.
func (c *LRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if predicate(key) {
			c.remove(el)
		}
	}
}

// InvalidatePath removes the blocks of kind cached for path.
func (c *LRUBlockCache) InvalidatePath(kind CacheKind, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, el := range c.byPath[pathKey{kind, path}] {
		c.remove(el)
	}
}

// Close drops all entries and returns their memory to the controller.
func (c *LRUBlockCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, el := range c.items {
		c.remove(el)
	}
	return nil
}

func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Evictions returns how many blocks were dropped to make room.
func (c *LRUBlockCache) Evictions() int64 {
	return c.evictions.Load()
}

// Size returns the current size of the cache in bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached blocks.
func (c *LRUBlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest must be called with c.mu held.
func (c *LRUBlockCache) evictOldest() bool {
	el := c.order.Back()
	if el == nil {
		return false
	}
	c.remove(el)
	c.evictions.Add(1)
	return true
}

// remove must be called with c.mu held.
func (c *LRUBlockCache) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.items, e.key)

	pk := pathKey{e.key.Kind, e.key.Path}
	if blocks := c.byPath[pk]; blocks != nil {
		delete(blocks, e.key)
		if len(blocks) == 0 {
			delete(c.byPath, pk)
		}
	}

	n := int64(len(e.value))
	c.size -= n
	c.rc.ReleaseMemory(n)
}
