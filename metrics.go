package chunkcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    setCounter   prometheus.Counter
//	    getHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSet(chunks, bytes int, d time.Duration, err error) {
//	    p.setCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordOpen is called after the index was rebuilt.
	// chunks is the number of chunks found in the store.
	RecordOpen(chunks int, duration time.Duration, err error)

	// RecordSet is called after each SetItem.
	// chunks and bytes describe the written item.
	RecordSet(chunks, bytes int, duration time.Duration, err error)

	// RecordGet is called after each GetItem. hit is false for absent items.
	RecordGet(hit bool, duration time.Duration, err error)

	// RecordCleanup is called after each cleanup pass with the number of
	// removed chunks.
	RecordCleanup(removed int, duration time.Duration, err error)

	// RecordClear is called after each Clear.
	RecordClear(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordSet(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordGet(bool, time.Duration, error)     {}
func (NoopMetricsCollector) RecordCleanup(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordClear(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	OpenCount      atomic.Int64
	OpenErrors     atomic.Int64
	SetCount       atomic.Int64
	SetErrors      atomic.Int64
	SetChunks      atomic.Int64
	SetBytes       atomic.Int64
	SetTotalNanos  atomic.Int64
	GetCount       atomic.Int64
	GetHits        atomic.Int64
	GetErrors      atomic.Int64
	GetTotalNanos  atomic.Int64
	CleanupCount   atomic.Int64
	CleanupRemoved atomic.Int64
	CleanupErrors  atomic.Int64
	ClearCount     atomic.Int64
	ClearErrors    atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(chunks int, duration time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordSet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSet(chunks, bytes int, duration time.Duration, err error) {
	b.SetCount.Add(1)
	b.SetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SetErrors.Add(1)
		return
	}
	b.SetChunks.Add(int64(chunks))
	b.SetBytes.Add(int64(bytes))
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit bool, duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetErrors.Add(1)
	}
	if hit {
		b.GetHits.Add(1)
	}
}

// RecordCleanup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCleanup(removed int, duration time.Duration, err error) {
	b.CleanupCount.Add(1)
	b.CleanupRemoved.Add(int64(removed))
	if err != nil {
		b.CleanupErrors.Add(1)
	}
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear(duration time.Duration, err error) {
	b.ClearCount.Add(1)
	if err != nil {
		b.ClearErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:      b.OpenCount.Load(),
		OpenErrors:     b.OpenErrors.Load(),
		SetCount:       b.SetCount.Load(),
		SetErrors:      b.SetErrors.Load(),
		SetChunks:      b.SetChunks.Load(),
		SetBytes:       b.SetBytes.Load(),
		SetAvgNanos:    avg(b.SetTotalNanos.Load(), b.SetCount.Load()),
		GetCount:       b.GetCount.Load(),
		GetHits:        b.GetHits.Load(),
		GetErrors:      b.GetErrors.Load(),
		GetAvgNanos:    avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		CleanupCount:   b.CleanupCount.Load(),
		CleanupRemoved: b.CleanupRemoved.Load(),
		CleanupErrors:  b.CleanupErrors.Load(),
		ClearCount:     b.ClearCount.Load(),
		ClearErrors:    b.ClearErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount      int64
	OpenErrors     int64
	SetCount       int64
	SetErrors      int64
	SetChunks      int64
	SetBytes       int64
	SetAvgNanos    int64
	GetCount       int64
	GetHits        int64
	GetErrors      int64
	GetAvgNanos    int64
	CleanupCount   int64
	CleanupRemoved int64
	CleanupErrors  int64
	ClearCount     int64
	ClearErrors    int64
}
