// Package metrics provides Prometheus collectors for parquetry writers.
//
// # Overview
//
// A Collector groups the writer metrics of one registry:
//   - rows, bytes and row groups written
//   - encode batches and device memory high-water mark
//   - dictionary and page compression decisions
//   - write and close latency
//
// # Basic Usage
//
//	c := metrics.Default()
//	c.RowsWritten.WithLabelValues("snappy").Add(float64(rows))
//
//	timer := metrics.NewTimer("write")
//	w.Write(ctx, tbl)
//	c.WriteLatency.WithLabelValues("write").Observe(timer.Stop().Seconds())
//
// Tests should build collectors on their own registry with NewCollector so
// repeated registration does not panic.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parquetry"

// Collector holds the writer metrics.
type Collector struct {
	// RowsWritten counts committed rows. Labels: codec
	RowsWritten *prometheus.CounterVec
	// BytesWritten counts bytes handed to sinks. Labels: path (host/device/footer)
	BytesWritten *prometheus.CounterVec
	// RowGroups counts committed row groups.
	RowGroups prometheus.Counter
	// Batches counts encode batches.
	Batches prometheus.Counter
	// DictionaryDecisions counts per-chunk encodings. Labels: decision (dictionary/plain/overflow)
	DictionaryDecisions *prometheus.CounterVec
	// ChunkCompression counts chunk storage forms. Labels: outcome (compressed/raw)
	ChunkCompression *prometheus.CounterVec
	// WriteLatency observes call durations in seconds. Labels: op (write/close)
	WriteLatency *prometheus.HistogramVec
	// DevicePeakBytes is the device memory high-water mark of the last write.
	DevicePeakBytes prometheus.Gauge
	// Throughput is the last measured rows per second. Labels: source
	Throughput *prometheus.GaugeVec
}

// NewCollector creates a collector whose metrics are registered on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Total number of rows committed to row groups",
		}, []string{"codec"}),
		BytesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total number of bytes handed to sinks",
		}, []string{"path"}),
		RowGroups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_groups_total",
			Help:      "Total number of row groups written",
		}),
		Batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_batches_total",
			Help:      "Total number of encode batches",
		}),
		DictionaryDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dictionary_decisions_total",
			Help:      "Column chunk encoding decisions",
		}, []string{"decision"}),
		ChunkCompression: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_compression_total",
			Help:      "Column chunks stored compressed or raw",
		}, []string{"outcome"}),
		WriteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_seconds",
			Help:      "Latency of writer calls in seconds",
			Buckets: []float64{
				0.001, // 1ms - tiny tables
				0.01,  // 10ms
				0.1,   // 100ms
				1,     // 1s - typical row group batches
				10,    // 10s
				60,    // 1m - multi-GiB writes
			},
		}, []string{"op"}),
		DevicePeakBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_peak_bytes",
			Help:      "Device memory high-water mark of the last write",
		}),
		Throughput: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_rows_per_second",
			Help:      "Current throughput in rows per second",
		}, []string{"source"}),
	}
}

var (
	defaultOnce      sync.Once
	defaultCollector *Collector
)

// Default returns the collector registered on the default Prometheus
// registry, creating it on first use.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = NewCollector(prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Rows since last reset
	lastReset time.Time // Time of last reset
	source    string
	gauge     *prometheus.GaugeVec
}

// NewThroughputTracker creates a tracker reporting into c's throughput gauge.
//
// Example:
//
//	tracker := metrics.NewThroughputTracker(c, "kafka")
//	for batch := range batches {
//	    w.Write(ctx, batch)
//	    tracker.Increment(batch.NumRows())
//	}
//	logger.Info("throughput", zap.Float64("rows_per_sec", tracker.GetAndReset()))
func NewThroughputTracker(c *Collector, source string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		source:    source,
		gauge:     c.Throughput,
	}
}

// Increment adds n to the row count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the rows per second since the last reset, updates the
// gauge, and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	t.gauge.WithLabelValues(t.source).Set(throughput)
	return throughput
}
