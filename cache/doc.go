// Package cache provides block caches for chunk blobs and decoded chunk
// headers.
//
// # Block Cache (RAM)
//
// LRUBlockCache is a byte-bounded LRU. ShardedLRUBlockCache spreads blobs
// over 64 LRU shards to reduce lock contention under parallel chunk reads;
// every block of a blob lives in the same shard. Both account their entries
// against an optional resource.Controller and drop entries rather than block
// when the memory budget is exhausted.
//
// # Disk Cache (L2)
//
// DiskBlockCache keeps blocks of remote stores (S3, MinIO) on local disk.
// Writes are asynchronous and bounded by a semaphore, eviction is LRU with a
// size limit, and the index is rebuilt from disk on startup.
//
// # Invalidation
//
// Keys identify a block by kind, blob path and block offset. A chunk blob is
// rewritten in place when its item is overwritten, so every writer calls
// InvalidatePath after a put or delete. Caches implementing PathInvalidator
// answer that from a path index instead of scanning all keys.
package cache
