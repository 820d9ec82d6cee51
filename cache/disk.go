package cache

import (
	"container/list"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	ifs "github.com/hupe1980/chunkcache/internal/fs"
)

// DiskCacheConfig holds configuration for the disk cache.
type DiskCacheConfig struct {
	// RootDir is the directory where cache files are stored.
	RootDir string
	// MaxSizeBytes is the maximum size of the cache in bytes.
	MaxSizeBytes int64
	// MaxConcurrentWrites limits background disk writes.
	// Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
	// FileSystem used for writes. Defaults to the local file system.
	FileSystem ifs.FileSystem
}

// DiskBlockCache implements BlockCache backed by the local filesystem.
//
// Blocks are written asynchronously and indexed in memory in LRU order and
// by blob path. Invalidating a path also cancels its in-flight writes, so a
// block written before a chunk was overwritten never becomes visible.
type DiskBlockCache struct {
	rootDir  string
	maxSize  int64
	fsys     ifs.FileSystem
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	mu      sync.Mutex
	size    int64
	items   map[CacheKey]*list.Element
	byPath  map[pathKey]map[CacheKey]struct{}
	order   *list.List // front is most recently used
	pending map[CacheKey]*pendingWrite

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type diskEntry struct {
	key  CacheKey
	file string
	size int64
}

type pendingWrite struct {
	cancelled bool
}

// NewDiskBlockCache creates a new disk-backed block cache and indexes the
// blocks already present under RootDir.
func NewDiskBlockCache(config DiskCacheConfig) (*DiskBlockCache, error) {
	if config.RootDir == "" {
		return nil, fmt.Errorf("cache: disk cache root dir is required")
	}

	fsys := config.FileSystem
	if fsys == nil {
		fsys = ifs.Default
	}
	if err := fsys.MkdirAll(config.RootDir, 0o755); err != nil {
		return nil, err
	}

	maxWrites := config.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &DiskBlockCache{
		rootDir:  config.RootDir,
		maxSize:  config.MaxSizeBytes,
		fsys:     fsys,
		writeSem: semaphore.NewWeighted(maxWrites),
		items:    make(map[CacheKey]*list.Element),
		byPath:   make(map[pathKey]map[CacheKey]struct{}),
		order:    list.New(),
		pending:  make(map[CacheKey]*pendingWrite),
	}

	c.load()

	return c, nil
}

// load indexes existing block files and removes leftovers of interrupted writes.
func (c *DiskBlockCache) load() {
	_ = filepath.WalkDir(c.rootDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if strings.HasSuffix(file, ifs.TempSuffix) {
			_ = ifs.RemoveIfExists(c.fsys, file)
			return nil
		}

		key, ok := c.keyForFile(file)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // vanished while scanning
		}

		c.insert(key, file, info.Size())
		return nil
	})

	c.shrink()
}

// fileForKey maps a key to <root>/<Path>/<Kind>-<Offset>.blk.
func (c *DiskBlockCache) fileForKey(key CacheKey) string {
	dir := "_misc"
	if key.Path != "" {
		dir = filepath.FromSlash(key.Path)
	}
	return filepath.Join(c.rootDir, dir, fmt.Sprintf("%d-%d.blk", key.Kind, key.Offset))
}

func (c *DiskBlockCache) keyForFile(file string) (CacheKey, bool) {
	rel, err := filepath.Rel(c.rootDir, file)
	if err != nil {
		return CacheKey{}, false
	}

	dir, base := filepath.Split(rel)

	var (
		kind int
		off  uint64
	)
	if n, err := fmt.Sscanf(base, "%d-%d.blk", &kind, &off); err != nil || n != 2 {
		return CacheKey{}, false
	}

	key := CacheKey{Kind: CacheKind(kind), Offset: off}
	switch dir = filepath.ToSlash(filepath.Clean(dir)); dir {
	case ".":
		return CacheKey{}, false
	case "_misc":
	default:
		key.Path = dir
	}
	return key, true
}

// Get returns a cached block.
func (c *DiskBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		c.order.MoveToFront(el)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	ent := el.Value.(*diskEntry)
	data, err := os.ReadFile(ent.file)
	if err != nil {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur == el {
			c.remove(el)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return data, true
}

// Set writes the block in the background. Blocks are skipped when all write
// slots are busy or the key is already cached or being written.
func (c *DiskBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	size := int64(len(b))
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return
	}
	if _, ok := c.pending[key]; ok || !c.writeSem.TryAcquire(1) {
		c.mu.Unlock()
		return
	}
	pw := &pendingWrite{}
	c.pending[key] = pw
	c.wg.Add(1)
	c.mu.Unlock()

	file := c.fileForKey(key)

	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)

		err := ifs.WriteFileAtomic(c.fsys, file, b, 0o644)

		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.pending, key)
		if err != nil {
			return
		}
		if pw.cancelled {
			_ = ifs.RemoveIfExists(c.fsys, file)
			return
		}

		c.insert(key, file, size)
		c.shrink()
	}()
}

// Invalidate removes entries matching the predicate and cancels matching
// writes that are still in flight.
func (c *DiskBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if predicate(key) {
			c.evict(el)
		}
	}
	for key, pw := range c.pending {
		if predicate(key) {
			pw.cancelled = true
		}
	}
}

// InvalidatePath removes the blocks of kind cached for path.
func (c *DiskBlockCache) InvalidatePath(kind CacheKind, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byPath[pathKey{kind, path}] {
		c.evict(c.items[key])
	}
	for key, pw := range c.pending {
		if key.Kind == kind && key.Path == path {
			pw.cancelled = true
		}
	}
}

// Close waits for all background writes to complete.
func (c *DiskBlockCache) Close() error {
	c.wg.Wait()
	return nil
}

func (c *DiskBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Evictions returns how many blocks were dropped to stay within MaxSizeBytes.
func (c *DiskBlockCache) Evictions() int64 {
	return c.evictions.Load()
}

// Size returns the bytes currently indexed.
func (c *DiskBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// The helpers below must be called with c.mu held.

func (c *DiskBlockCache) insert(key CacheKey, file string, size int64) {
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}

	c.items[key] = c.order.PushFront(&diskEntry{key: key, file: file, size: size})
	pk := pathKey{key.Kind, key.Path}
	keys := c.byPath[pk]
	if keys == nil {
		keys = make(map[CacheKey]struct{})
		c.byPath[pk] = keys
	}
	keys[key] = struct{}{}
	c.size += size
}

// shrink evicts least recently used blocks until the cache fits.
func (c *DiskBlockCache) shrink() {
	for c.size > c.maxSize {
		el := c.order.Back()
		if el == nil {
			return
		}
		c.evict(el)
		c.evictions.Add(1)
	}
}

// evict removes the entry and its file.
func (c *DiskBlockCache) evict(el *list.Element) {
	_ = ifs.RemoveIfExists(c.fsys, el.Value.(*diskEntry).file)
	c.remove(el)
}

// remove drops the entry from the index only.
func (c *DiskBlockCache) remove(el *list.Element) {
	ent := c.order.Remove(el).(*diskEntry)
	delete(c.items, ent.key)

	pk := pathKey{ent.key.Kind, ent.key.Path}
	if keys := c.byPath[pk]; keys != nil {
		delete(keys, ent.key)
		if len(keys) == 0 {
			delete(c.byPath, pk)
		}
	}
	c.size -= ent.size
}
