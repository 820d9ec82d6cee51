// Package telemetry exports cache and lifecycle metrics to Prometheus.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/chunkcache"
	"github.com/hupe1980/chunkcache/lifecycle"
	"github.com/hupe1980/chunkcache/resource"
)

const namespace = "chunkcache"

var (
	_ chunkcache.MetricsCollector = (*Collector)(nil)
	_ lifecycle.Observer          = (*Collector)(nil)
)

// Collector implements chunkcache.MetricsCollector and lifecycle.Observer.
type Collector struct {
	opLatency      *prometheus.HistogramVec
	getResults     *prometheus.CounterVec
	chunksWritten  prometheus.Counter
	bytesWritten   prometheus.Counter
	cleanupRemoved prometheus.Counter
	indexedChunks  prometheus.Gauge
	transitions    *prometheus.CounterVec
	state          prometheus.Gauge
	epoch          prometheus.Gauge
	superseded     prometheus.Counter
	destroyErrors  prometheus.Counter

	mu        sync.Mutex
	lastEpoch lifecycle.Epoch
}

// New creates a Collector and registers it with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of cache operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		getResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "get_results_total",
			Help:      "GetItem results by outcome",
		}, []string{"result"}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Chunks written by SetItem",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_bytes_written_total",
			Help:      "Plaintext item bytes written by SetItem",
		}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_chunks_total",
			Help:      "Chunks removed by cleanup passes",
		}),
		indexedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_indexed_chunks",
			Help:      "Chunks found by the most recent Open",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle state transitions by target state",
		}, []string{"to"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_state",
			Help:      "Current lifecycle state (0 uninitialized, 1 constructing, 2 ready, 3 failed, 4 destroyed)",
		}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_epoch",
			Help:      "Most recent lifecycle epoch",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_superseded_total",
			Help:      "Constructions abandoned because a newer epoch was active",
		}),
		destroyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_destroy_errors_total",
			Help:      "Failed cache destructions",
		}),
	}

	reg.MustRegister(
		c.opLatency,
		c.getResults,
		c.chunksWritten,
		c.bytesWritten,
		c.cleanupRemoved,
		c.indexedChunks,
		c.transitions,
		c.state,
		c.epoch,
		c.superseded,
		c.destroyErrors,
	)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

// RecordOpen implements chunkcache.MetricsCollector.
func (c *Collector) RecordOpen(chunks int, d time.Duration, err error) {
	c.observe("open", d, err)
	if err == nil {
		c.indexedChunks.Set(float64(chunks))
	}
}

// RecordSet implements chunkcache.MetricsCollector.
func (c *Collector) RecordSet(chunks, bytes int, d time.Duration, err error) {
	c.observe("set", d, err)
	if err == nil {
		c.chunksWritten.Add(float64(chunks))
		c.bytesWritten.Add(float64(bytes))
	}
}

// RecordGet implements chunkcache.MetricsCollector.
func (c *Collector) RecordGet(hit bool, d time.Duration, err error) {
	c.observe("get", d, err)
	switch {
	case err != nil:
		c.getResults.WithLabelValues("error").Inc()
	case hit:
		c.getResults.WithLabelValues("hit").Inc()
	default:
		c.getResults.WithLabelValues("miss").Inc()
	}
}

// RecordCleanup implements chunkcache.MetricsCollector.
func (c *Collector) RecordCleanup(removed int, d time.Duration, err error) {
	c.observe("cleanup", d, err)
	c.cleanupRemoved.Add(float64(removed))
}

// RecordClear implements chunkcache.MetricsCollector.
func (c *Collector) RecordClear(d time.Duration, err error) {
	c.observe("clear", d, err)
}

// OnTransition implements lifecycle.Observer. Transitions of epochs older
// than the newest one seen only count; they do not move the state gauge.
func (c *Collector) OnTransition(e lifecycle.Epoch, _, to lifecycle.State) {
	c.transitions.WithLabelValues(to.String()).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e < c.lastEpoch {
		return
	}
	c.lastEpoch = e
	c.epoch.Set(float64(e))
	c.state.Set(float64(to))
}

// OnSuperseded implements lifecycle.Observer.
func (c *Collector) OnSuperseded(lifecycle.Epoch) {
	c.superseded.Inc()
}

// OnDestroyError implements lifecycle.Observer.
func (c *Collector) OnDestroyError(lifecycle.Epoch, error) {
	c.destroyErrors.Inc()
}

// RegisterUsage exports the memory and worker usage of rc as gauges that are
// sampled on every scrape.
func RegisterUsage(reg prometheus.Registerer, rc *resource.Controller) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_reserved_bytes",
			Help:      "Memory reserved by chunk operations and block caches",
		}, func() float64 { return float64(rc.Usage().MemoryBytes) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy_workers",
			Help:      "Blob operations currently holding a worker slot",
		}, func() float64 { return float64(rc.Usage().BusyWorkers) }),
	)
}
