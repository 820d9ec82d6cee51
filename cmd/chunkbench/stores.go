package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/chunkcache/blobstore"
	"github.com/hupe1980/chunkcache/blobstore/minio"
	"github.com/hupe1980/chunkcache/blobstore/s3"
	"github.com/hupe1980/chunkcache/cache"
	"github.com/hupe1980/chunkcache/internal/config"
	"github.com/hupe1980/chunkcache/resource"
)

// stores is the backend plus the block caches layered over it.
type stores struct {
	store   blobstore.BlobStore
	headers cache.BlockCache
	caches  []cache.BlockCache
}

// openStores builds the configured backend. A disk tier is stacked below the
// memory tier so memory misses are served from local disk before the backend.
func openStores(ctx context.Context, cfg config.Config, rc *resource.Controller) (*stores, error) {
	base, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, err
	}

	s := &stores{store: base}
	bc := cfg.BlockCache
	blockSize := int64(bc.BlockSize)

	if bc.DiskSize > 0 {
		disk, err := cache.NewDiskBlockCache(cache.DiskCacheConfig{
			RootDir:      bc.DiskDir,
			MaxSizeBytes: int64(bc.DiskSize),
		})
		if err != nil {
			return nil, fmt.Errorf("disk block cache: %w", err)
		}
		s.caches = append(s.caches, disk)
		s.store = blobstore.NewCachingStore(s.store, disk, blockSize)
	}

	if bc.MemorySize > 0 {
		var mem cache.BlockCache
		if bc.Sharded {
			mem = cache.NewShardedLRUBlockCache(int64(bc.MemorySize), rc)
		} else {
			mem = cache.NewLRUBlockCache(int64(bc.MemorySize), rc)
		}
		s.caches = append(s.caches, mem)
		s.store = blobstore.NewCachingStore(s.store, mem, blockSize)
	}

	if bc.HeaderCache > 0 {
		s.headers = cache.NewLRUBlockCache(int64(bc.HeaderCache), rc)
		s.caches = append(s.caches, s.headers)
	}

	return s, nil
}

func openBackend(ctx context.Context, b config.BackendConfig) (blobstore.BlobStore, error) {
	switch b.Type {
	case config.BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BackendLocal:
		return blobstore.NewLocalStore(b.Local.Root), nil
	case config.BackendS3:
		opts := []s3.Option{s3.WithPrefix(b.S3.Prefix), s3.WithPathStyle(b.S3.PathStyle)}
		if b.S3.Region != "" {
			opts = append(opts, s3.WithRegion(b.S3.Region))
		}
		if b.S3.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(b.S3.Endpoint))
		}
		return s3.New(ctx, b.S3.Bucket, opts...)
	case config.BackendMinIO:
		client, err := minio.NewClient(minio.Config{
			Endpoint:  b.MinIO.Endpoint,
			AccessKey: b.MinIO.AccessKey,
			SecretKey: b.MinIO.SecretKey,
			Secure:    b.MinIO.Secure,
			Region:    b.MinIO.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		store := minio.NewStore(client, b.MinIO.Bucket, b.MinIO.Prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket %s: %w", b.MinIO.Bucket, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", b.Type)
	}
}

// blockCacheStats sums hits and misses over every block cache tier.
func (s *stores) blockCacheStats() (hits, misses int64, ok bool) {
	for _, c := range s.caches {
		h, m := c.Stats()
		hits += h
		misses += m
	}
	return hits, misses, len(s.caches) > 0
}

// evictions sums the evicted blocks of the tiers that track them.
func (s *stores) evictions() int64 {
	var n int64
	for _, c := range s.caches {
		if e, ok := c.(interface{ Evictions() int64 }); ok {
			n += e.Evictions()
		}
	}
	return n
}

func (s *stores) close() error {
	var errs []error
	for _, c := range s.caches {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
