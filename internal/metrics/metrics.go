// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Ingestion pipeline metrics
	IncPingPublished(status string) // status: "success" or "dropped"
	IncPingProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObservePingBatchSize(size int)
	ObservePingBatchDuration(duration time.Duration)
	SetPingQueueDepth(depth int64)
	ObservePingIngestLag(lag time.Duration)

	// Geolocation metrics
	IncGeoCacheHit()
	IncGeoCacheMiss()

	// Reporting metrics
	IncReportCycle(status string) // status: "sent", "failed", "skipped"
	IncAlertSent()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
