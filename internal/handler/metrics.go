package handler

import (
	"fmt"
	"net/http"

	"github.com/pagepulse/pagepulse/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	for _, status := range []string{"success", "dropped"} {
		writeMetric(w, "pagepulse_pings_published_total{status=%q} %d\n", status, snap.PingsPublished[status])
	}
	for _, status := range []string{"success", "failed", "dead_lettered"} {
		writeMetric(w, "pagepulse_pings_processed_total{status=%q} %d\n", status, snap.PingsProcessed[status])
	}

	writeMetric(w, "pagepulse_ping_batches_total %d\n", snap.PingBatchCount)
	writeMetric(w, "pagepulse_ping_batch_size_sum %d\n", snap.PingBatchSizeTotal)
	writeMetric(w, "pagepulse_ping_batch_duration_seconds_sum %.6f\n", float64(snap.PingBatchDurationNs)/1e9)
	writeMetric(w, "pagepulse_ping_queue_depth %d\n", snap.PingQueueDepth)
	writeMetric(w, "pagepulse_ping_ingest_lag_seconds_sum %.6f\n", float64(snap.PingIngestLagTotalNs)/1e9)

	writeMetric(w, "pagepulse_geo_cache_hits_total %d\n", snap.GeoCacheHits)
	writeMetric(w, "pagepulse_geo_cache_misses_total %d\n", snap.GeoCacheMisses)

	for _, status := range []string{"sent", "failed", "skipped"} {
		writeMetric(w, "pagepulse_report_cycles_total{status=%q} %d\n", status, snap.ReportCycles[status])
	}
	writeMetric(w, "pagepulse_alerts_sent_total %d\n", snap.AlertsSent)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
