package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache"
	"github.com/hupe1980/chunkcache/blobstore"
	"github.com/hupe1980/chunkcache/internal/session"
	"github.com/hupe1980/chunkcache/lifecycle"
)

func memoryOpener(store blobstore.BlobStore) OpenFunc {
	return func(ctx context.Context, cfg chunkcache.Config) (*chunkcache.Cache, error) {
		return chunkcache.Open(ctx, store, cfg, chunkcache.WithKDFIterations(1))
	}
}

func newSession(t *testing.T) *session.Store {
	t.Helper()
	s, err := session.Open("")
	require.NoError(t, err)
	return s
}

func newHarness(t *testing.T, open OpenFunc, s Session, opts ...Option) *Harness {
	t.Helper()

	h, err := New(open, s, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, h.Close(ctx))
	})
	return h
}

func readyHarness(t *testing.T, opts ...Option) (*Harness, *session.Store) {
	t.Helper()

	s := newSession(t)
	h := newHarness(t, memoryOpener(blobstore.NewMemoryStore()), s, opts...)
	require.NoError(t, h.Wait(context.Background()))
	return h, s
}

func TestHarness_StoreFetch(t *testing.T) {
	ctx := context.Background()
	h, s := readyHarness(t)

	stored, err := h.Store(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items)
	assert.Equal(t, DefaultItemSize, stored.ItemSize)
	assert.Equal(t, 2, stored.Chunks)
	assert.Equal(t, contentKey(1), stored.Key)
	assert.NotEmpty(t, stored.Hash)
	assert.Equal(t, 1, s.Counter())

	fetched, err := h.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored.Key, fetched.Key)
	assert.Equal(t, 1, fetched.Found)
	assert.Equal(t, DefaultItemSize, fetched.Bytes)
	assert.Equal(t, stored.Hash, fetched.Hash)

	count, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count.Count)

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, 2, stats.Chunks)
	assert.Zero(t, stats.Orphans)
}

func TestHarness_FetchBeforeStore(t *testing.T) {
	h, _ := readyHarness(t)

	fetched, err := h.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fetched.Found)
	assert.Empty(t, fetched.Hash)
}

func TestHarness_StoreMultipleItems(t *testing.T) {
	ctx := context.Background()
	h, _ := readyHarness(t)

	require.NoError(t, h.SetNumItems(3))
	require.NoError(t, h.SetItemSize(4096))

	stored, err := h.Store(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Items)
	assert.Equal(t, 3, stored.Chunks)

	fetched, err := h.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fetched.Found)
	assert.Equal(t, stored.Hash, fetched.Hash)
}

func TestHarness_ReconfigureOnlyOnChange(t *testing.T) {
	h, s := readyHarness(t)
	epoch := h.Snapshot().Epoch

	require.NoError(t, h.SetItemSize(64*1024))
	assert.Equal(t, epoch, h.Snapshot().Epoch)
	assert.Equal(t, 3, h.ChunksPerItem())

	changed, err := h.SetChunkSize(DefaultChunkSize)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = h.SetMaxTotalChunks(DefaultMaxTotalChunks)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, epoch, h.Snapshot().Epoch)

	changed, err = h.SetChunkSize(16 * 1024)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, epoch+1, h.Snapshot().Epoch)
	assert.Equal(t, 4, h.ChunksPerItem())

	changed, err = h.SetMaxTotalChunks(10)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 10, h.Config().MaxTotalChunks)

	limit, ok := s.MaxTotalChunks()
	assert.True(t, ok)
	assert.Equal(t, 10, limit)

	require.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, chunkcache.Config{
		CacheKey:       s.CacheKey(),
		CacheBuster:    s.CacheBuster(),
		ChunkSize:      16 * 1024,
		MaxTotalChunks: 10,
	}, h.Config())
}

func TestHarness_ItemsSurviveRebuild(t *testing.T) {
	ctx := context.Background()
	h, _ := readyHarness(t)

	stored, err := h.Store(ctx)
	require.NoError(t, err)

	_, err = h.SetChunkSize(8 * 1024)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	fetched, err := h.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored.Hash, fetched.Hash)

	count, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count.Count, "chunks keep the size they were written with")
}

func TestHarness_ResetCacheBusterHidesItems(t *testing.T) {
	ctx := context.Background()
	h, s := readyHarness(t)

	_, err := h.Store(ctx)
	require.NoError(t, err)
	buster := s.CacheBuster()

	changed, err := h.ResetCacheBuster()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotEqual(t, buster, s.CacheBuster())
	require.NoError(t, h.Wait(ctx))

	fetched, err := h.Fetch(ctx)
	require.NoError(t, err)
	assert.Zero(t, fetched.Found)
	assert.Empty(t, fetched.Hash)

	cleaned, err := h.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleaned.Removed)
}

func TestHarness_CleanupEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	h, _ := readyHarness(t)

	for range 3 {
		_, err := h.Store(ctx)
		require.NoError(t, err)
	}

	_, err := h.SetMaxTotalChunks(2)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	cleaned, err := h.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, cleaned.Removed)

	// The newest item survives.
	fetched, err := h.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.Found)
}

func TestHarness_ClearResetsCounter(t *testing.T) {
	ctx := context.Background()
	h, s := readyHarness(t)

	for range 2 {
		_, err := h.Store(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.Counter())

	_, err := h.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Counter())

	count, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count.Count)

	stored, err := h.Store(ctx)
	require.NoError(t, err)
	assert.Equal(t, contentKey(1), stored.Key)
}

func TestHarness_RejectsWhileConstructing(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	store := blobstore.NewMemoryStore()
	open := func(ctx context.Context, cfg chunkcache.Config) (*chunkcache.Cache, error) {
		<-gate
		return memoryOpener(store)(ctx, cfg)
	}

	h := newHarness(t, open, newSession(t))
	t.Cleanup(func() { close(gate) }) // runs before Close

	assert.Equal(t, lifecycle.StateConstructing, h.Snapshot().State)

	done := make(chan error, 1)
	go func() {
		_, err := h.Store(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, lifecycle.ErrNotReady)
	case <-time.After(2 * time.Second):
		t.Fatal("store blocked while the cache was constructing")
	}

	_, err := h.Fetch(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
	_, err = h.Count(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
	_, err = h.Cleanup(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
	_, err = h.Clear(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
	_, err = h.Stats(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
}

func TestHarness_ConstructionFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	open := func(context.Context, chunkcache.Config) (*chunkcache.Cache, error) {
		return nil, boom
	}

	h := newHarness(t, open, newSession(t))

	err := h.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, lifecycle.StateFailed, h.Snapshot().State)

	_, err = h.Store(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
}

func TestHarness_Close(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	h, err := New(memoryOpener(blobstore.NewMemoryStore()), s)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	require.NoError(t, h.Close(ctx))
	require.NoError(t, h.Close(ctx))

	_, err = h.Count(ctx)
	assert.ErrorIs(t, err, lifecycle.ErrClosed)

	_, err = h.SetChunkSize(4096)
	assert.ErrorIs(t, err, lifecycle.ErrClosed)
}

func TestHarness_Validation(t *testing.T) {
	h, _ := readyHarness(t)

	assert.Error(t, h.SetItemSize(MinItemSize-1))
	assert.Error(t, h.SetNumItems(0))
	_, err := h.SetChunkSize(MinChunkSize - 1)
	assert.Error(t, err)
	_, err = h.SetMaxTotalChunks(0)
	assert.Error(t, err)

	_, err = New(nil, newSession(t))
	assert.Error(t, err)

	_, err = New(memoryOpener(blobstore.NewMemoryStore()), newSession(t), WithForm(Form{}))
	assert.Error(t, err)
}

func TestHarness_SessionLimitWins(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetMaxTotalChunks(77))

	h := newHarness(t, memoryOpener(blobstore.NewMemoryStore()), s)
	assert.Equal(t, 77, h.Form().MaxTotalChunks)
	assert.Equal(t, 77, h.Config().MaxTotalChunks)
}
