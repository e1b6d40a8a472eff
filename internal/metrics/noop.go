package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncPingPublished is a no-op.
func (n *NoopRecorder) IncPingPublished(status string) {}

// IncPingProcessed is a no-op.
func (n *NoopRecorder) IncPingProcessed(status string) {}

// ObservePingBatchSize is a no-op.
func (n *NoopRecorder) ObservePingBatchSize(size int) {}

// ObservePingBatchDuration is a no-op.
func (n *NoopRecorder) ObservePingBatchDuration(duration time.Duration) {}

// SetPingQueueDepth is a no-op.
func (n *NoopRecorder) SetPingQueueDepth(depth int64) {}

// ObservePingIngestLag is a no-op.
func (n *NoopRecorder) ObservePingIngestLag(lag time.Duration) {}

// IncGeoCacheHit is a no-op.
func (n *NoopRecorder) IncGeoCacheHit() {}

// IncGeoCacheMiss is a no-op.
func (n *NoopRecorder) IncGeoCacheMiss() {}

// IncReportCycle is a no-op.
func (n *NoopRecorder) IncReportCycle(status string) {}

// IncAlertSent is a no-op.
func (n *NoopRecorder) IncAlertSent() {}
