package bench

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/chunkcache"
	"github.com/hupe1980/chunkcache/lifecycle"
)

// OpenFunc builds a cache for a configuration, typically by calling
// chunkcache.Open with a fixed store and options.
type OpenFunc func(ctx context.Context, cfg chunkcache.Config) (*chunkcache.Cache, error)

// Session is the persisted identity a Harness runs under.
type Session interface {
	CacheKey() string
	CacheBuster() string
	Counter() int
	NextCounter() (int, error)
	ResetCounter() error
	ResetCacheBuster() (string, error)
	MaxTotalChunks() (int, bool)
	SetMaxTotalChunks(n int) error
}

// StoreResult describes one Store run.
type StoreResult struct {
	Key          string
	Items        int
	ItemSize     int
	Chunks       int
	GenerateTime time.Duration
	SetTime      time.Duration
	Hash         string
}

// FetchResult describes one Fetch run. Hash is empty when no item was found.
type FetchResult struct {
	Key     string
	Found   int
	Bytes   int
	GetTime time.Duration
	Hash    string
}

// CountResult describes one Count run.
type CountResult struct {
	Count int
	Time  time.Duration
}

// CleanupResult describes one Cleanup run.
type CleanupResult struct {
	Removed int
	Time    time.Duration
}

// ClearResult describes one Clear run.
type ClearResult struct {
	Time time.Duration
}

// Harness owns the benchmark form and the current cache.
type Harness struct {
	ctrl    *lifecycle.Controller[chunkcache.Config, *chunkcache.Cache]
	session Session
	logger  *chunkcache.Logger

	mu   sync.Mutex
	form Form
}

// New creates a harness and starts building the first cache.
func New(open OpenFunc, session Session, optFns ...Option) (*Harness, error) {
	if open == nil || session == nil {
		return nil, fmt.Errorf("bench: open function and session are required")
	}

	o := applyOptions(optFns)
	form := o.form
	if n, ok := session.MaxTotalChunks(); ok {
		form.MaxTotalChunks = n
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}

	build := func(ctx context.Context, cfg chunkcache.Config) (*chunkcache.Cache, error) {
		return open(ctx, cfg)
	}
	destroy := func(ctx context.Context, c *chunkcache.Cache) error {
		return c.Destroy(ctx)
	}

	h := &Harness{
		ctrl: lifecycle.New(build, destroy,
			lifecycle.WithLogger(o.logger.Logger),
			lifecycle.WithObserver(o.observer),
			lifecycle.WithDestroyTimeout(o.destroyTimeout),
		),
		session: session,
		logger:  o.logger,
		form:    form,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.applyLocked(); err != nil {
		return nil, err
	}
	return h, nil
}

// Form returns the current form values.
func (h *Harness) Form() Form {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.form
}

// Config returns the configuration of the most recent reconfiguration.
func (h *Harness) Config() chunkcache.Config {
	cfg, _ := h.ctrl.Config()
	return cfg
}

// Snapshot returns the controller's state.
func (h *Harness) Snapshot() lifecycle.Snapshot {
	return h.ctrl.Snapshot()
}

// Wait blocks until the current cache is ready or its construction failed.
func (h *Harness) Wait(ctx context.Context) error {
	_, err := h.ctrl.Wait(ctx)
	return err
}

// ChunksPerItem returns ceil(item size / chunk size).
func (h *Harness) ChunksPerItem() int {
	return h.Form().ChunksPerItem()
}

// SetItemSize changes the size of generated items. It never rebuilds the cache.
func (h *Harness) SetItemSize(n int) error {
	if n < MinItemSize {
		return fmt.Errorf("bench: item size %d is below %d bytes", n, MinItemSize)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.form.ItemSize = n
	return nil
}

// SetNumItems changes how many items Store writes.
func (h *Harness) SetNumItems(n int) error {
	if n < 1 {
		return fmt.Errorf("bench: number of items must be at least 1, got %d", n)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.form.NumItems = n
	return nil
}

// SetChunkSize changes the chunk size and rebuilds the cache if the
// configuration changed. It reports whether a rebuild was started.
func (h *Harness) SetChunkSize(n int) (bool, error) {
	if n < MinChunkSize {
		return false, fmt.Errorf("bench: chunk size %d is below %d bytes", n, MinChunkSize)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.form.ChunkSize = n
	return h.applyLocked()
}

// SetMaxTotalChunks changes and persists the chunk limit and rebuilds the
// cache if the configuration changed.
func (h *Harness) SetMaxTotalChunks(n int) (bool, error) {
	if n < 1 {
		return false, fmt.Errorf("bench: max total chunks must be at least 1, got %d", n)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.session.SetMaxTotalChunks(n); err != nil {
		return false, err
	}
	h.form.MaxTotalChunks = n
	return h.applyLocked()
}

// ResetCacheBuster mints a new cache buster, which hides every item written
// so far, and rebuilds the cache.
func (h *Harness) ResetCacheBuster() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.session.ResetCacheBuster(); err != nil {
		return false, err
	}
	return h.applyLocked()
}

// applyLocked reconfigures the controller when the derived configuration
// differs from the active one.
func (h *Harness) applyLocked() (bool, error) {
	cfg := chunkcache.Config{
		CacheKey:       h.session.CacheKey(),
		CacheBuster:    h.session.CacheBuster(),
		ChunkSize:      h.form.ChunkSize,
		MaxTotalChunks: h.form.MaxTotalChunks,
	}

	if prev, ok := h.ctrl.Config(); ok && prev == cfg {
		return false, nil
	}

	epoch, err := h.ctrl.Reconfigure(cfg)
	if err != nil {
		return false, err
	}
	h.logger.Info("reconfiguring cache",
		"epoch", epoch,
		"chunk_size", cfg.ChunkSize,
		"max_total_chunks", cfg.MaxTotalChunks,
	)
	return true, nil
}

// Store generates the next batch of items and writes them.
func (h *Harness) Store(ctx context.Context) (StoreResult, error) {
	form := h.Form()

	return lifecycle.Call(ctx, h.ctrl, func(ctx context.Context, c *chunkcache.Cache) (StoreResult, error) {
		counter, err := h.session.NextCounter()
		if err != nil {
			return StoreResult{}, err
		}
		key := contentKey(counter)

		start := time.Now()
		texts := make([]string, form.NumItems)
		for i := range texts {
			texts[i] = GenerateText(itemKey(key, i), form.ItemSize)
		}
		genTime := time.Since(start)

		start = time.Now()
		for i, text := range texts {
			if err := c.SetItem(ctx, itemKey(key, i), text); err != nil {
				return StoreResult{}, fmt.Errorf("bench: store %s: %w", itemKey(key, i), err)
			}
		}

		return StoreResult{
			Key:          key,
			Items:        form.NumItems,
			ItemSize:     form.ItemSize,
			Chunks:       form.NumItems * c.Config().ChunksFor(form.ItemSize),
			GenerateTime: genTime,
			SetTime:      time.Since(start),
			Hash:         DeterministicHash(strings.Join(texts, "")),
		}, nil
	})
}

// Fetch reads the items written by the most recent Store.
func (h *Harness) Fetch(ctx context.Context) (FetchResult, error) {
	form := h.Form()

	return lifecycle.Call(ctx, h.ctrl, func(ctx context.Context, c *chunkcache.Cache) (FetchResult, error) {
		key := contentKey(h.session.Counter())

		start := time.Now()
		var found []string
		for i := range form.NumItems {
			v, ok, err := c.GetItem(ctx, itemKey(key, i))
			if err != nil {
				return FetchResult{}, fmt.Errorf("bench: fetch %s: %w", itemKey(key, i), err)
			}
			if ok {
				found = append(found, v)
			}
		}

		res := FetchResult{Key: key, Found: len(found), GetTime: time.Since(start)}
		if len(found) > 0 {
			joined := strings.Join(found, "")
			res.Bytes = len(joined)
			res.Hash = DeterministicHash(joined)
		}
		return res, nil
	})
}

// Count returns the number of stored chunks.
func (h *Harness) Count(ctx context.Context) (CountResult, error) {
	return lifecycle.Call(ctx, h.ctrl, func(ctx context.Context, c *chunkcache.Cache) (CountResult, error) {
		start := time.Now()
		n, err := c.Count(ctx)
		if err != nil {
			return CountResult{}, err
		}
		return CountResult{Count: n, Time: time.Since(start)}, nil
	})
}

// Stats returns the item and chunk counts of the current cache.
func (h *Harness) Stats(ctx context.Context) (chunkcache.Stats, error) {
	return lifecycle.Call(ctx, h.ctrl, func(ctx context.Context, c *chunkcache.Cache) (chunkcache.Stats, error) {
		return c.Stats(ctx)
	})
}

// Cleanup runs a cleanup pass.
func (h *Harness) Cleanup(ctx context.Context) (CleanupResult, error) {
	return lifecycle.Call(ctx, h.ctrl, func(ctx context.Context, c *chunkcache.Cache) (CleanupResult, error) {
		start := time.Now()
		n, err := c.Cleanup(ctx)
		if err != nil {
			return CleanupResult{Removed: n}, err
		}
		return CleanupResult{Removed: n, Time: time.Since(start)}, nil
	})
}

// Clear removes every item and resets the item counter.
func (h *Harness) Clear(ctx context.Context) (ClearResult, error) {
	return lifecycle.Call(ctx, h.ctrl, func(ctx context.Context, c *chunkcache.Cache) (ClearResult, error) {
		start := time.Now()
		if err := c.Clear(ctx); err != nil {
			return ClearResult{}, err
		}
		if err := h.session.ResetCounter(); err != nil {
			return ClearResult{}, err
		}
		return ClearResult{Time: time.Since(start)}, nil
	})
}

// Close tears down the controller and waits for the cache to be destroyed.
func (h *Harness) Close(ctx context.Context) error {
	return h.ctrl.Teardown(ctx)
}

func contentKey(counter int) string {
	return DeterministicHash(fmt.Sprintf("seed-%d", counter))
}

func itemKey(key string, i int) string {
	return fmt.Sprintf("item-%s-%d", key, i)
}
