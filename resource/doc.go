// Package resource governs the memory, parallelism and IO bandwidth used by a
// chunk cache.
//
//	┌──────────────────────────────────────────────────────────┐
//	│                       Controller                         │
//	├──────────────────┬──────────────────┬────────────────────┤
//	│  Memory Limit    │  Chunk Workers   │  IO Rate Limiter   │
//	│  (semaphore)     │  (semaphore)     │  (token bucket)    │
//	├──────────────────┼──────────────────┼────────────────────┤
//	│  AcquireMemory   │  AcquireWorker   │  AcquireIO         │
//	│  TryAcquireMemory│                  │                    │
//	│  ReleaseMemory   │  ReleaseWorker   │                    │
//	└──────────────────┴──────────────────┴────────────────────┘
//
// The block cache accounts its entries against the memory limit and drops
// entries instead of blocking. Chunk reads and writes hold a worker slot for
// the duration of one blob operation and pay for their payload bytes in IO
// tokens first:
//
//	rc := resource.NewController(resource.Config{
//	    MaxWorkers:         8,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
//	if err := rc.AcquireIO(ctx, len(payload)); err != nil {
//	    return err
//	}
//
// Usage reports what is currently held. All methods are safe for concurrent
// use and handle a nil Controller as "unlimited".
package resource
