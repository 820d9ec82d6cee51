package chunkcache

import (
	"log/slog"
	"time"

	"github.com/hupe1980/chunkcache/cache"
	"github.com/hupe1980/chunkcache/resource"
)

// DefaultGCTime is how long an item stays readable after it was written.
const DefaultGCTime = 7 * 24 * time.Hour

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	compression      Compression
	gcTime           time.Duration
	cleanupInterval  time.Duration
	kdfIterations    int
	resources        *resource.Controller
	clock            func() time.Time
	blockCache       cache.BlockCache
}

// Option configures Open.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &chunkcache.BasicMetricsCollector{}
//	c, _ := chunkcache.Open(ctx, store, cfg, chunkcache.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("Sets: %d, Avg latency: %dns\n", stats.SetCount, stats.SetAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := chunkcache.NewJSONLogger(slog.LevelInfo)
//	c, _ := chunkcache.Open(ctx, store, cfg, chunkcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithCompression compresses chunk payloads before encryption.
// Chunks that do not shrink are stored uncompressed.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithGCTime sets how long items stay readable. Items older than d are
// absent for GetItem and removed by Cleanup. Zero disables expiry.
func WithGCTime(d time.Duration) Option {
	return func(o *options) {
		o.gcTime = d
	}
}

// WithCleanupInterval runs Cleanup periodically in the background.
// Zero (the default) disables the worker.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = d
	}
}

// WithKDFIterations sets the PBKDF2 iteration count.
// Lower values make Open cheaper and the key easier to brute force.
func WithKDFIterations(n int) Option {
	return func(o *options) {
		o.kdfIterations = n
	}
}

// WithResourceController bounds chunk IO parallelism, throughput and the
// memory held by in-flight items. A nil controller imposes no limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithClock overrides the time source used for write times and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now == nil {
			now = time.Now
		}
		o.clock = now
	}
}

// WithBlockCache caches chunk headers across Open calls on the same store,
// which makes rebuilding the index after a reconfiguration cheap.
//
// The cache is owned by the caller and is not closed by Destroy.
func WithBlockCache(c cache.BlockCache) Option {
	return func(o *options) {
		o.blockCache = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      CompressionNone,
		gcTime:           DefaultGCTime,
		kdfIterations:    DefaultKDFIterations,
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
