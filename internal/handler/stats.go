package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/repository"
)

// DefaultStatsLookback is the window used when no "from" query is given.
const DefaultStatsLookback = 24 * time.Hour

// StatsCalculator computes a KPI snapshot for a window.
type StatsCalculator interface {
	Calculate(ctx context.Context, w repository.Window) (model.KPISnapshot, error)
}

// StatsHandler serves the live statistics endpoint.
type StatsHandler struct {
	calc   StatsCalculator
	logger *slog.Logger
	now    func() time.Time
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(calc StatsCalculator, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		calc:   calc,
		logger: logger.With("component", "handler.stats"),
		now:    time.Now,
	}
}

// Stats handles GET /api/stats.
//
// An optional "from" query (RFC 3339) sets the window start; the window
// always ends now. Without it the window is the trailing 24 hours. The
// returned snapshot is computed on the fly and never touches the ledger.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	window := repository.Window{Start: now.Add(-DefaultStatsLookback), End: now}

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_REQUEST", "from must be an RFC 3339 timestamp")
			return
		}
		if !from.Before(now) {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_REQUEST", "from must be in the past")
			return
		}
		window.Start = from.UTC()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	snap, err := h.calc.Calculate(ctx, window)
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
