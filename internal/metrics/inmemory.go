package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	PingsPublished       map[string]uint64
	PingsProcessed       map[string]uint64
	PingBatchCount       uint64
	PingBatchSizeTotal   uint64
	PingBatchDurationNs  int64
	PingQueueDepth       int64
	PingIngestLagTotalNs int64
	GeoCacheHits         uint64
	GeoCacheMisses       uint64
	ReportCycles         map[string]uint64
	AlertsSent           uint64
}

// InMemoryRecorder stores metrics in memory for tests and the debug endpoint.
type InMemoryRecorder struct {
	mu             sync.Mutex
	pingsPublished map[string]uint64
	pingsProcessed map[string]uint64
	reportCycles   map[string]uint64

	pingBatchCount       uint64
	pingBatchSizeTotal   uint64
	pingBatchDurationNs  int64
	pingQueueDepth       int64
	pingIngestLagTotalNs int64
	geoCacheHits         uint64
	geoCacheMisses       uint64
	alertsSent           uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		pingsPublished: make(map[string]uint64),
		pingsProcessed: make(map[string]uint64),
		reportCycles:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		PingsPublished:       copyCounts(m.pingsPublished),
		PingsProcessed:       copyCounts(m.pingsProcessed),
		PingBatchCount:       atomic.LoadUint64(&m.pingBatchCount),
		PingBatchSizeTotal:   atomic.LoadUint64(&m.pingBatchSizeTotal),
		PingBatchDurationNs:  atomic.LoadInt64(&m.pingBatchDurationNs),
		PingQueueDepth:       atomic.LoadInt64(&m.pingQueueDepth),
		PingIngestLagTotalNs: atomic.LoadInt64(&m.pingIngestLagTotalNs),
		GeoCacheHits:         atomic.LoadUint64(&m.geoCacheHits),
		GeoCacheMisses:       atomic.LoadUint64(&m.geoCacheMisses),
		ReportCycles:         copyCounts(m.reportCycles),
		AlertsSent:           atomic.LoadUint64(&m.alertsSent),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// IncPingPublished increments the published counter for a status.
func (m *InMemoryRecorder) IncPingPublished(status string) {
	m.mu.Lock()
	m.pingsPublished[status]++
	m.mu.Unlock()
}

// IncPingProcessed increments the processed counter for a status.
func (m *InMemoryRecorder) IncPingProcessed(status string) {
	m.mu.Lock()
	m.pingsProcessed[status]++
	m.mu.Unlock()
}

// ObservePingBatchSize records a processed batch size.
func (m *InMemoryRecorder) ObservePingBatchSize(size int) {
	atomic.AddUint64(&m.pingBatchCount, 1)
	atomic.AddUint64(&m.pingBatchSizeTotal, uint64(size))
}

// ObservePingBatchDuration records batch processing duration.
func (m *InMemoryRecorder) ObservePingBatchDuration(duration time.Duration) {
	atomic.AddInt64(&m.pingBatchDurationNs, duration.Nanoseconds())
}

// SetPingQueueDepth sets the current stream backlog depth.
func (m *InMemoryRecorder) SetPingQueueDepth(depth int64) {
	atomic.StoreInt64(&m.pingQueueDepth, depth)
}

// ObservePingIngestLag records end-to-end ingest lag for one ping.
func (m *InMemoryRecorder) ObservePingIngestLag(lag time.Duration) {
	atomic.AddInt64(&m.pingIngestLagTotalNs, lag.Nanoseconds())
}

// IncGeoCacheHit increments the geo cache hit counter.
func (m *InMemoryRecorder) IncGeoCacheHit() {
	atomic.AddUint64(&m.geoCacheHits, 1)
}

// IncGeoCacheMiss increments the geo cache miss counter.
func (m *InMemoryRecorder) IncGeoCacheMiss() {
	atomic.AddUint64(&m.geoCacheMisses, 1)
}

// IncReportCycle increments the report cycle counter for a status.
func (m *InMemoryRecorder) IncReportCycle(status string) {
	m.mu.Lock()
	m.reportCycles[status]++
	m.mu.Unlock()
}

// IncAlertSent increments the alerts sent counter.
func (m *InMemoryRecorder) IncAlertSent() {
	atomic.AddUint64(&m.alertsSent, 1)
}
