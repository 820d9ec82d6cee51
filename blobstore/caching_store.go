package blobstore

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/chunkcache/cache"
)

// DefaultCacheBlockSize is the block size used when none is given.
const DefaultCacheBlockSize = 4096

const versionStripes = 256

// CachingStore wraps a BlobStore and adds block-level read caching.
//
// Chunk blobs are rewritten in place, so every Put and Delete bumps a write
// version for the name before dropping its cached blocks. A blob opened under
// an older version does not leave its blocks in the cache.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
	versions  [versionStripes]atomic.Uint64
}

// NewCachingStore creates a new CachingStore.
// blockSize defaults to DefaultCacheBlockSize if <= 0.
func NewCachingStore(inner BlobStore, c cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultCacheBlockSize
	}
	return &CachingStore{
		inner:     inner,
		cache:     c,
		blockSize: blockSize,
	}
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner:     b,
		store:     s,
		name:      name,
		version:   s.version(name).Load(),
		blockSize: s.blockSize,
	}, nil
}

// Put writes through and drops the cached blocks of name.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	err := s.inner.Put(ctx, name, data)
	s.invalidate(name)
	return err
}

// Delete removes the blob and its cached blocks.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	err := s.inner.Delete(ctx, name)
	s.invalidate(name)
	return err
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Cache returns the underlying block cache.
func (s *CachingStore) Cache() cache.BlockCache {
	return s.cache
}

func (s *CachingStore) version(name string) *atomic.Uint64 {
	return &s.versions[xxhash.Sum64String(name)%versionStripes]
}

// invalidate must run after the backend write completed.
func (s *CachingStore) invalidate(name string) {
	s.version(name).Add(1)
	cache.InvalidatePath(s.cache, cache.CacheKindBlob, name)
}

// CachingBlob wraps a Blob and uses the block cache for reads.
type CachingBlob struct {
	inner     Blob
	store     *CachingStore
	name      string
	version   uint64
	blockSize int64
}

// cacheBlock caches a block read from b. If the blob was written since b was
// opened the block may be stale and is dropped again.
func (b *CachingBlob) cacheBlock(ctx context.Context, blk int64, data []byte) {
	b.store.cache.Set(ctx, b.key(blk), data)
	if b.store.version(b.name).Load() != b.version {
		cache.InvalidatePath(b.store.cache, cache.CacheKindBlob, b.name)
	}
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) key(blk int64) cache.CacheKey {
	return cache.CacheKey{
		Kind:   cache.CacheKindBlob,
		Path:   b.name,
		Offset: uint64(blk * b.blockSize),
	}
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), size)
	startBlock := off / b.blockSize
	endBlock := (end - 1) / b.blockSize

	blocks, err := b.fillCache(ctx, startBlock, endBlock)
	if err != nil {
		return 0, err
	}

	totalRead := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		blkStart := blk * b.blockSize
		intersectStart := max(blkStart, off)
		intersectEnd := min(blkStart+b.blockSize, end)

		data := blocks[blk-startBlock]
		srcOffset := intersectStart - blkStart
		if srcOffset >= int64(len(data)) {
			break
		}
		srcEnd := min(intersectEnd-blkStart, int64(len(data)))
		totalRead += copy(p[intersectStart-off:], data[srcOffset:srcEnd])
	}

	if totalRead < len(p) {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// fillCache returns the blocks startBlock..endBlock, fetching contiguous runs
// of missing blocks with one backend read each.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) ([][]byte, error) {
	blocks := make([][]byte, endBlock-startBlock+1)

	type run struct{ start, count int64 }
	var missing []run

	for blk := startBlock; blk <= endBlock; blk++ {
		if data, ok := b.store.cache.Get(ctx, b.key(blk)); ok {
			blocks[blk-startBlock] = data
			continue
		}
		if n := len(missing); n > 0 && missing[n-1].start+missing[n-1].count == blk {
			missing[n-1].count++
		} else {
			missing = append(missing, run{blk, 1})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for _, r := range missing {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteSize := min(r.count*b.blockSize, b.Size()-byteStart)
			if byteSize <= 0 {
				return nil
			}

			buf := make([]byte, byteSize)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			valid := buf[:n]

			for i := range r.count {
				lo := i * b.blockSize
				if lo >= int64(len(valid)) {
					break
				}
				hi := min(lo+b.blockSize, int64(len(valid)))

				// Copy so cached blocks do not pin the run buffer.
				block := make([]byte, hi-lo)
				copy(block, valid[lo:hi])

				blocks[r.start+i-startBlock] = block
				b.cacheBlock(gctx, r.start+i, block)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}
