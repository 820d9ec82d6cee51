package chunkcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/chunkcache/blobstore"
	"github.com/hupe1980/chunkcache/cache"
	"github.com/hupe1980/chunkcache/internal/conv"
	"github.com/hupe1980/chunkcache/internal/hash"
)

const numStripes = 64

// errStaleChunk marks a chunk that no longer belongs to the indexed version.
var errStaleChunk = errors.New("stale chunk")

// Cache is an encrypted, chunked key/value cache over a blob store.
//
// All methods are safe for concurrent use. Operations on the same key are
// serialized; operations on different keys run in parallel.
type Cache struct {
	cfg       Config
	store     blobstore.BlobStore
	opts      options
	logger    *Logger
	ns        string
	keys      *keyring
	busterTag uint32

	mu     sync.RWMutex // guards idx and closed
	idx    *chunkIndex
	closed bool

	// ops counts in-flight operations and the cleanup worker.
	ops        sync.WaitGroup
	stopWorker context.CancelFunc

	stripes [numStripes]sync.RWMutex
	reads   singleflight.Group
}

// Stats is a point-in-time view of a Cache.
type Stats struct {
	Items   int
	Chunks  int
	Orphans int
	Seq     uint64
}

// Open derives the encryption key for cfg, rebuilds the chunk index from the
// chunks already in store and returns a ready Cache.
//
// Key derivation is deliberately expensive; see WithKDFIterations.
func Open(ctx context.Context, store blobstore.BlobStore, cfg Config, optFns ...Option) (c *Cache, err error) {
	if store == nil {
		return nil, errors.New("chunkcache: nil blob store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(optFns)
	ns := Namespace(cfg.CacheKey)
	logger := o.logger.WithNamespace(ns[:12])

	start := time.Now()
	var idx *chunkIndex
	defer func() {
		chunks, items, orphans := 0, 0, 0
		if idx != nil {
			chunks, items, orphans = idx.count(), len(idx.items), len(idx.orphans)
		}
		o.metricsCollector.RecordOpen(chunks, time.Since(start), err)
		logger.LogOpen(ctx, items, chunks, orphans, err)
	}()

	keys, err := deriveKeys(cfg.CacheKey, ns, o.kdfIterations)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c = &Cache{
		cfg:       cfg,
		store:     store,
		opts:      o,
		logger:    logger,
		ns:        ns,
		keys:      keys,
		busterTag: busterTag(cfg.CacheBuster),
	}

	idx, err = c.rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("chunkcache: rebuild index: %w", err)
	}
	c.idx = idx

	if o.cleanupInterval > 0 {
		wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.stopWorker = cancel
		c.ops.Add(1)
		go c.cleanupLoop(wctx, o.cleanupInterval)
	}

	return c, nil
}

// Config returns the configuration the cache was opened with.
func (c *Cache) Config() Config { return c.cfg }

// Namespace returns the blob name prefix of the cache.
func (c *Cache) Namespace() string { return c.ns }

// SetItem stores value under key, replacing any previous value.
//
// The value is split into chunks of at most Config.ChunkSize bytes that are
// written in parallel. A concurrent GetItem for key waits until all chunks
// are written.
func (c *Cache) SetItem(ctx context.Context, key, value string) (err error) {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.ops.Done()

	start := time.Now()
	id := c.keys.itemID(key)
	total := c.cfg.ChunksFor(len(value))
	defer func() {
		c.opts.metricsCollector.RecordSet(total, len(value), time.Since(start), err)
		c.logger.LogSet(ctx, id, total, err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	total32, err := conv.IntToUint32(total)
	if err != nil {
		return fmt.Errorf("chunkcache: set: %w", err)
	}

	rc := c.opts.resources
	if err := rc.AcquireMemory(ctx, int64(len(value))); err != nil {
		return fmt.Errorf("chunkcache: set: %w", err)
	}
	defer rc.ReleaseMemory(int64(len(value)))

	lock := c.stripe(id)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	seq := c.idx.nextSeq()
	c.mu.Unlock()

	tmpl := chunkHeader{
		Seq:       seq,
		Timestamp: c.opts.clock().UnixNano(),
		Total:     total32,
		ItemSize:  uint64(len(value)),
		BusterTag: c.busterTag,
	}

	written := make([]bool, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.MaxWorkers())
	for i := range total {
		g.Go(func() error {
			lo := i * c.cfg.ChunkSize
			hi := min(lo+c.cfg.ChunkSize, len(value))

			h := tmpl
			h.Index = uint32(i)
			blob, err := c.sealChunk(&h, []byte(value[lo:hi]))
			if err != nil {
				return err
			}

			name := chunkName(c.ns, id, h.Index)
			return c.withWorker(gctx, func() error {
				if err := rc.AcquireIO(gctx, len(blob)); err != nil {
					return err
				}
				if err := c.store.Put(gctx, name, blob); err != nil {
					c.uncacheHeader(name)
					return fmt.Errorf("chunkcache: put %s: %w", name, err)
				}
				c.cacheHeader(name, blob[:headerSize])
				written[i] = true
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		var done []uint32
		for i, ok := range written {
			if ok {
				done = append(done, uint32(i))
			}
		}
		c.mu.Lock()
		c.idx.drop(id, done)
		c.mu.Unlock()
		return err
	}

	entry := &itemEntry{
		seq:       seq,
		written:   time.Unix(0, tmpl.Timestamp),
		total:     tmpl.Total,
		size:      tmpl.ItemSize,
		busterTag: tmpl.BusterTag,
		present:   rangeBitmap(tmpl.Total),
	}

	c.mu.Lock()
	stale := c.idx.stale(id, entry.total)
	c.idx.install(id, entry)
	for _, i := range stale {
		c.idx.addOrphan(id, i)
	}
	c.mu.Unlock()

	// Leftovers of a longer previous version. Failures stay orphans for the
	// next cleanup.
	for _, i := range stale {
		if err := c.deleteChunk(ctx, id, i); err != nil {
			c.logger.WarnContext(ctx, "delete stale chunk failed", "item", id, "index", i, "error", err)
			continue
		}
		c.mu.Lock()
		c.idx.removeOrphan(id, i)
		c.mu.Unlock()
	}

	return nil
}

type readResult struct {
	value string
	found bool
}

// GetItem returns the value stored under key.
//
// found is false when the item is unknown, expired, written under a different
// cache buster or incomplete because chunks were evicted. Concurrent reads of
// the same key share one read. A chunk failing authentication yields a
// *CorruptChunkError.
func (c *Cache) GetItem(ctx context.Context, key string) (value string, found bool, err error) {
	if err := c.begin(); err != nil {
		return "", false, err
	}
	defer c.ops.Done()

	start := time.Now()
	id := c.keys.itemID(key)
	defer func() {
		c.opts.metricsCollector.RecordGet(found, time.Since(start), err)
		c.logger.LogGet(ctx, id, found, err)
	}()

	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	v, err, _ := c.reads.Do(id, func() (any, error) {
		return c.readItem(ctx, id)
	})
	if err != nil {
		return "", false, err
	}
	r := v.(readResult)
	return r.value, r.found, nil
}

func (c *Cache) readItem(ctx context.Context, id string) (readResult, error) {
	lock := c.stripe(id)
	lock.RLock()
	defer lock.RUnlock()

	c.mu.RLock()
	e, ok := c.idx.items[id]
	var entry itemEntry
	if ok {
		entry = *e
		ok = e.complete()
	}
	c.mu.RUnlock()

	switch {
	case !ok:
		return readResult{}, nil
	case entry.busterTag != c.busterTag:
		return readResult{}, nil
	case c.expired(entry.written, c.opts.clock()):
		return readResult{}, nil
	}

	rc := c.opts.resources
	if err := rc.AcquireMemory(ctx, int64(entry.size)); err != nil {
		return readResult{}, fmt.Errorf("chunkcache: get: %w", err)
	}
	defer rc.ReleaseMemory(int64(entry.size))

	parts := make([][]byte, entry.total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.MaxWorkers())
	for i := range entry.total {
		g.Go(func() error {
			name := chunkName(c.ns, id, i)
			return c.withWorker(gctx, func() error {
				data, err := blobstore.ReadAll(gctx, c.store, name)
				if err != nil {
					return err
				}
				if err := rc.AcquireIO(gctx, len(data)); err != nil {
					return err
				}
				part, err := c.openChunk(name, data, entry.seq, i, entry.total)
				if err != nil {
					return err
				}
				parts[i] = part
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrChanged) || errors.Is(err, errStaleChunk) {
			c.logger.DebugContext(ctx, "item incomplete in store", "item", id, "error", err)
			return readResult{}, nil
		}
		return readResult{}, err
	}

	size, err := conv.Uint64ToInt(entry.size)
	if err != nil {
		return readResult{}, corrupt(chunkName(c.ns, id, 0), err)
	}

	var sb strings.Builder
	sb.Grow(size)
	for _, p := range parts {
		sb.Write(p)
	}
	if sb.Len() != size {
		return readResult{}, corrupt(chunkName(c.ns, id, 0), errSizeMismatch)
	}
	return readResult{value: sb.String(), found: true}, nil
}

// Count returns the number of stored chunks.
func (c *Cache) Count(ctx context.Context) (int, error) {
	if err := c.begin(); err != nil {
		return 0, err
	}
	defer c.ops.Done()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.count(), nil
}

// Stats returns item and chunk counts.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	if err := c.begin(); err != nil {
		return Stats{}, err
	}
	defer c.ops.Done()

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	orphans := 0
	for _, bm := range c.idx.orphans {
		orphans += int(bm.GetCardinality())
	}
	return Stats{
		Items:   len(c.idx.items),
		Chunks:  c.idx.count(),
		Orphans: orphans,
		Seq:     c.idx.seq,
	}, nil
}

// Cleanup removes orphaned chunks, expired items and items written under a
// different cache buster, then evicts chunks oldest first until at most
// Config.MaxTotalChunks remain. It returns the number of removed chunks.
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	if err := c.begin(); err != nil {
		return 0, err
	}
	defer c.ops.Done()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.runCleanup(ctx)
}

// cleanupPlan lists the chunks of one item chosen for removal.
type cleanupPlan struct {
	seq     uint64
	chunks  []uint32
	orphans []uint32
}

func (c *Cache) runCleanup(ctx context.Context) (removed int, err error) {
	start := time.Now()
	defer func() {
		c.opts.metricsCollector.RecordCleanup(removed, time.Since(start), err)
		c.mu.RLock()
		remaining := c.idx.count()
		c.mu.RUnlock()
		c.logger.LogCleanup(ctx, removed, remaining, err)
	}()

	plans := c.planCleanup(c.opts.clock())
	if len(plans) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(plans))
	for id := range plans {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(c.opts.resources.MaxWorkers())
	for _, id := range ids {
		g.Go(func() error {
			n, err := c.applyCleanup(ctx, id, plans[id])
			mu.Lock()
			removed += n
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return removed, errors.Join(errs...)
}

func (c *Cache) planCleanup(now time.Time) map[string]*cleanupPlan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plans := make(map[string]*cleanupPlan)
	plan := func(id string) *cleanupPlan {
		p, ok := plans[id]
		if !ok {
			p = &cleanupPlan{}
			plans[id] = p
		}
		return p
	}

	for id, bm := range c.idx.orphans {
		plan(id).orphans = bm.ToArray()
	}

	live := 0
	dead := make(map[string]bool)
	for id, e := range c.idx.items {
		if e.busterTag != c.busterTag || c.expired(e.written, now) {
			p := plan(id)
			p.seq = e.seq
			p.chunks = e.present.ToArray()
			dead[id] = true
			continue
		}
		live += int(e.present.GetCardinality())
	}

	excess := live - c.cfg.MaxTotalChunks
	if excess > 0 {
		for _, ref := range c.idx.evictable() {
			if excess == 0 {
				break
			}
			if dead[ref.item] {
				continue
			}
			p := plan(ref.item)
			p.seq = ref.seq
			p.chunks = append(p.chunks, ref.index)
			excess--
		}
	}

	return plans
}

// applyCleanup deletes the planned chunks of one item. Chunks of an item that
// was rewritten since planning are left alone.
func (c *Cache) applyCleanup(ctx context.Context, id string, p *cleanupPlan) (int, error) {
	lock := c.stripe(id)
	lock.Lock()
	defer lock.Unlock()

	removed := 0
	var errs []error

	for _, i := range p.orphans {
		c.mu.RLock()
		bm, ok := c.idx.orphans[id]
		still := ok && bm.Contains(i)
		c.mu.RUnlock()
		if !still {
			continue
		}
		if err := c.deleteChunk(ctx, id, i); err != nil {
			errs = append(errs, err)
			continue
		}
		c.mu.Lock()
		c.idx.removeOrphan(id, i)
		c.mu.Unlock()
		removed++
	}

	for _, i := range p.chunks {
		c.mu.RLock()
		e, ok := c.idx.items[id]
		still := ok && e.seq == p.seq && e.present.Contains(i)
		c.mu.RUnlock()
		if !still {
			continue
		}
		if err := c.deleteChunk(ctx, id, i); err != nil {
			errs = append(errs, err)
			continue
		}
		c.mu.Lock()
		e.present.Remove(i)
		if e.present.IsEmpty() {
			delete(c.idx.items, id)
		}
		c.mu.Unlock()
		removed++
	}

	return removed, errors.Join(errs...)
}

// Clear removes every chunk of the namespace and resets the index and the
// write sequence.
func (c *Cache) Clear(ctx context.Context) (err error) {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.ops.Done()

	start := time.Now()
	removed := 0
	defer func() {
		c.opts.metricsCollector.RecordClear(time.Since(start), err)
		c.logger.LogClear(ctx, removed, err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i := range c.stripes {
		c.stripes[i].Lock()
	}
	defer func() {
		for i := range c.stripes {
			c.stripes[i].Unlock()
		}
	}()

	prefix := c.ns + "/"
	removed, err = blobstore.DeletePrefix(ctx, c.store, prefix)
	if bc := c.opts.blockCache; bc != nil {
		cache.InvalidatePrefix(bc, cache.CacheKindHeader, prefix)
	}

	if err != nil {
		// Partially cleared; resynchronize with what is left.
		idx, rerr := c.rebuild(context.WithoutCancel(ctx))
		if rerr == nil {
			c.mu.Lock()
			c.idx = idx
			c.mu.Unlock()
		}
		return errors.Join(fmt.Errorf("chunkcache: clear: %w", err), rerr)
	}

	c.mu.Lock()
	c.idx.reset()
	c.mu.Unlock()
	return nil
}

// Destroy stops the cleanup worker, rejects new operations with ErrClosed and
// waits for in-flight operations. Calling Destroy again is a no-op.
func (c *Cache) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.stopWorker != nil {
		c.stopWorker()
	}

	done := make(chan struct{})
	go func() {
		c.ops.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("chunkcache: destroy: %w", ctx.Err())
	}

	c.logger.Debug("cache destroyed")
	return nil
}

func (c *Cache) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer c.ops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.runCleanup(ctx); err != nil && ctx.Err() != nil {
				return
			}
		}
	}
}

// rebuild lists the namespace and reads every chunk header.
func (c *Cache) rebuild(ctx context.Context) (*chunkIndex, error) {
	names, err := c.store.List(ctx, c.ns+"/")
	if err != nil {
		return nil, err
	}

	b := newIndexBuilder()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.resources.MaxWorkers())
	for _, name := range names {
		item, index, ok := parseChunkName(c.ns, name)
		if !ok {
			c.logger.WarnContext(ctx, "ignoring unknown blob", "name", name)
			continue
		}
		g.Go(func() error {
			h, err := c.readHeader(gctx, name)
			switch {
			case errors.Is(err, blobstore.ErrNotFound):
				return nil
			case errors.Is(err, ErrCorruptChunk):
				c.logger.WarnContext(gctx, "unreadable chunk", "name", name, "error", err)
				h = nil
			case err != nil:
				return err
			}
			mu.Lock()
			b.add(item, index, h)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return b.build(), nil
}

func (c *Cache) readHeader(ctx context.Context, name string) (*chunkHeader, error) {
	if bc := c.opts.blockCache; bc != nil {
		if b, ok := bc.Get(ctx, headerKey(name)); ok {
			if h, err := parseHeader(b); err == nil {
				return h, nil
			}
		}
	}

	var h *chunkHeader
	err := c.withWorker(ctx, func() error {
		if err := c.opts.resources.AcquireIO(ctx, headerSize); err != nil {
			return err
		}
		b, err := blobstore.ReadPrefix(ctx, c.store, name, headerSize)
		if err != nil {
			return err
		}
		h, err = parseHeader(b)
		if err != nil {
			return corrupt(name, err)
		}
		c.cacheHeader(name, b)
		return nil
	})
	return h, err
}

func (c *Cache) sealChunk(h *chunkHeader, plain []byte) ([]byte, error) {
	payload, comp, err := compress(c.opts.compression, plain)
	if err != nil {
		return nil, fmt.Errorf("chunkcache: compress: %w", err)
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	h.Compression = comp
	h.Size = uint32(len(plain))
	h.Nonce = nonce
	return c.keys.seal(h, payload), nil
}

func (c *Cache) openChunk(name string, data []byte, seq uint64, index, total uint32) ([]byte, error) {
	h, plain, err := c.keys.open(data)
	if err != nil {
		return nil, corrupt(name, err)
	}
	if h.Seq != seq || h.Index != index || h.Total != total {
		return nil, fmt.Errorf("%s: %w", name, errStaleChunk)
	}
	size, err := conv.Uint32ToInt(h.Size)
	if err != nil {
		return nil, corrupt(name, err)
	}
	out, err := decompress(h.Compression, plain, size)
	if err != nil {
		return nil, corrupt(name, err)
	}
	return out, nil
}

func (c *Cache) deleteChunk(ctx context.Context, id string, index uint32) error {
	name := chunkName(c.ns, id, index)
	err := c.withWorker(ctx, func() error {
		return c.store.Delete(ctx, name)
	})
	c.uncacheHeader(name)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("chunkcache: delete %s: %w", name, err)
	}
	return nil
}

func (c *Cache) withWorker(ctx context.Context, fn func() error) error {
	rc := c.opts.resources
	if err := rc.AcquireWorker(ctx); err != nil {
		return err
	}
	defer rc.ReleaseWorker()
	return fn()
}

func (c *Cache) begin() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	c.ops.Add(1)
	return nil
}

func (c *Cache) stripe(id string) *sync.RWMutex {
	return &c.stripes[hash.Fold32(id)%numStripes]
}

func (c *Cache) expired(written, now time.Time) bool {
	return c.opts.gcTime > 0 && now.Sub(written) > c.opts.gcTime
}

func (c *Cache) cacheHeader(name string, hdr []byte) {
	if bc := c.opts.blockCache; bc != nil {
		bc.Set(context.Background(), headerKey(name), slices.Clone(hdr))
	}
}

func (c *Cache) uncacheHeader(name string) {
	if bc := c.opts.blockCache; bc != nil {
		cache.InvalidatePath(bc, cache.CacheKindHeader, name)
	}
}

func headerKey(name string) cache.CacheKey {
	return cache.CacheKey{Kind: cache.CacheKindHeader, Path: name}
}
