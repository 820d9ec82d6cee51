package telemetry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache/lifecycle"
	"github.com/hupe1980/chunkcache/resource"
)

func TestCollector_CacheMetrics(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordOpen(12, time.Millisecond, nil)
	c.RecordSet(2, 2048, time.Millisecond, nil)
	c.RecordSet(3, 3000, time.Millisecond, errors.New("x"))
	c.RecordGet(true, time.Millisecond, nil)
	c.RecordGet(false, time.Millisecond, nil)
	c.RecordGet(false, time.Millisecond, errors.New("x"))
	c.RecordCleanup(5, time.Millisecond, nil)
	c.RecordClear(time.Millisecond, nil)

	assert.Equal(t, 12.0, testutil.ToFloat64(c.indexedChunks))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.chunksWritten))
	assert.Equal(t, 2048.0, testutil.ToFloat64(c.bytesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.getResults.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.getResults.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.getResults.WithLabelValues("error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.cleanupRemoved))
	// open, set/success, set/error, get/success, get/error, cleanup, clear
	assert.Equal(t, 7, testutil.CollectAndCount(c.opLatency))
}

func TestCollector_LifecycleObserver(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.OnTransition(1, lifecycle.StateUninitialized, lifecycle.StateConstructing)
	c.OnTransition(2, lifecycle.StateConstructing, lifecycle.StateConstructing)
	c.OnTransition(2, lifecycle.StateConstructing, lifecycle.StateReady)
	// A late notification of an older epoch does not move the gauges.
	c.OnTransition(1, lifecycle.StateConstructing, lifecycle.StateFailed)
	c.OnSuperseded(1)
	c.OnDestroyError(1, errors.New("x"))

	assert.Equal(t, float64(lifecycle.StateReady), testutil.ToFloat64(c.state))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.epoch))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("constructing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.superseded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.destroyErrors))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestRegisterUsage(t *testing.T) {
	reg := prometheus.NewRegistry()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1024, MaxWorkers: 2})
	RegisterUsage(reg, rc)

	require.NoError(t, rc.AcquireMemory(t.Context(), 100))
	require.NoError(t, rc.AcquireWorker(t.Context()))

	expected := `
# HELP chunkcache_busy_workers Blob operations currently holding a worker slot
# TYPE chunkcache_busy_workers gauge
chunkcache_busy_workers 1
# HELP chunkcache_memory_reserved_bytes Memory reserved by chunk operations and block caches
# TYPE chunkcache_memory_reserved_bytes gauge
chunkcache_memory_reserved_bytes 100
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"chunkcache_busy_workers", "chunkcache_memory_reserved_bytes"))

	rc.ReleaseWorker()
	rc.ReleaseMemory(100)
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
