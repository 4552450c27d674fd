package directory

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates directory-wide counters and a compaction-latency
// histogram, updated directly by every shard's Logger (not through the
// EventListener hooks). Counters
// use prometheus/client_golang so they can be registered into a
// caller's registry; the latency distribution uses
// HdrHistogram/hdrhistogram-go, since a prometheus Histogram's
// fixed-bucket layout can't answer arbitrary-percentile questions about
// compaction latency the way an HDR histogram can.
type Metrics struct {
	FlushRequested prometheus.Counter
	FlushCompleted prometheus.Counter
	TryAgain       prometheus.Counter

	mu                 sync.Mutex
	compactionLatency  *hdrhistogram.Histogram
}

// NewMetrics returns a Metrics with fresh counters and a latency
// histogram covering 1us-10s at 3 significant figures.
func NewMetrics() *Metrics {
	return &Metrics{
		FlushRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plfsio_directory_flush_requested_total",
			Help: "Number of mem_buf/imm_buf swaps requested across all shards.",
		}),
		FlushCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plfsio_directory_flush_completed_total",
			Help: "Number of background compactions completed across all shards.",
		}),
		TryAgain: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plfsio_directory_try_again_total",
			Help: "Number of Add/Flush calls that returned TryAgain in non-blocking mode.",
		}),
		compactionLatency: hdrhistogram.New(1, 10_000_000, 3),
	}
}

// RecordCompactionLatencyMicros records one compaction's wall-clock
// duration, in microseconds.
func (m *Metrics) RecordCompactionLatencyMicros(micros int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.compactionLatency.RecordValue(micros)
}

// CompactionLatencyPercentileMicros returns the given percentile
// (0-100) of recorded compaction latencies, in microseconds.
func (m *Metrics) CompactionLatencyPercentileMicros(percentile float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compactionLatency.ValueAtQuantile(percentile)
}

// Collectors returns the prometheus Collectors owned by m, for
// registration into a caller's prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.FlushRequested, m.FlushCompleted, m.TryAgain}
}
