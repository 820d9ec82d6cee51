// Package chunkcache provides an encrypted key/value cache that stores values
// as fixed-size chunks in a blob store.
//
// Values are split into chunks of at most Config.ChunkSize bytes. Each chunk
// is optionally compressed, sealed with AES-256-GCM and written as its own
// blob. The encryption key is derived from Config.CacheKey with PBKDF2, so
// neither keys nor values appear in storage.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewMemoryStore()
//	c, _ := chunkcache.Open(ctx, store, chunkcache.Config{
//	    CacheKey:       "session-key",
//	    CacheBuster:    "v1",
//	    ChunkSize:      25 * 1024,
//	    MaxTotalChunks: 5000,
//	})
//	defer c.Destroy(ctx)
//
//	_ = c.SetItem(ctx, "greeting", "hello")
//	v, ok, _ := c.GetItem(ctx, "greeting")
//
// # Storage Layout
//
// Chunks are stored as
//
//	<namespace>/<item>/<index>.chk
//
// where namespace is derived from the cache key and item from the item key.
// Open rebuilds its index by reading the chunk headers found under the
// namespace, so a cache reopened with a different ChunkSize or MaxTotalChunks
// still sees every item written before.
//
// # Eviction
//
// Items expire after the GC time (see WithGCTime). Items written under a
// different CacheBuster are never returned. Cleanup removes both and then
// evicts the oldest chunks until at most MaxTotalChunks remain. An item that
// lost any chunk is absent.
//
// # Backends
//
// Any blobstore.BlobStore works: blobstore.MemoryStore, blobstore.LocalStore,
// the S3 store in blobstore/s3 and the MinIO store in blobstore/minio.
// Wrap a remote store in blobstore.CachingStore to serve repeated reads from
// memory.
package chunkcache
