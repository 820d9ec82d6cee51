package resource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// DefaultMaxWorkers is used when Config.MaxWorkers is not positive.
const DefaultMaxWorkers = 8

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxWorkers is the maximum number of concurrent chunk operations.
	// If 0, defaults to DefaultMaxWorkers.
	MaxWorkers int64

	// IOLimitBytesPerSec is the maximum chunk IO throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages shared resources (memory, concurrency, IO).
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	workerSem   *semaphore.Weighted
	workersBusy atomic.Int64

	ioLimiter *rate.Limiter
	ioBurst   int
}

// Usage is a point-in-time view of a Controller.
type Usage struct {
	MemoryBytes int64
	MemoryLimit int64 // 0 if unlimited
	BusyWorkers int
	MaxWorkers  int
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxWorkers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioBurst = int(min(cfg.IOLimitBytesPerSec, math.MaxInt32))
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), c.ioBurst)
	}
	return c
}

// Usage reports current consumption against the configured limits.
func (c *Controller) Usage() Usage {
	if c == nil {
		return Usage{MaxWorkers: DefaultMaxWorkers}
	}
	return Usage{
		MemoryBytes: c.memUsed.Load(),
		MemoryLimit: c.cfg.MemoryLimitBytes,
		BusyWorkers: int(c.workersBusy.Load()),
		MaxWorkers:  int(c.cfg.MaxWorkers),
	}
}

// AcquireMemory reserves memory, blocking until it is available or ctx is
// done. A request above the limit fails immediately.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return fmt.Errorf("%w: %d bytes requested, limit is %d", ErrMemoryLimitExceeded, bytes, c.cfg.MemoryLimitBytes)
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves memory without blocking.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory returns memory reserved by AcquireMemory or TryAcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	return c.Usage().MemoryBytes
}

// AcquireWorker reserves a slot for one blob operation, blocking while all
// slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.workerSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.workersBusy.Add(1)
	return nil
}

// ReleaseWorker releases a slot reserved by AcquireWorker.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workersBusy.Add(-1)
	c.workerSem.Release(1)
}

// MaxWorkers returns the number of worker slots. Chunk fan-out is limited to
// the same number.
func (c *Controller) MaxWorkers() int {
	return c.Usage().MaxWorkers
}

// AcquireIO waits until the IO limit allows the given number of payload
// bytes. Requests larger than one second of budget are paid in burst-sized
// steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	for bytes > 0 {
		n := min(bytes, c.ioBurst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
