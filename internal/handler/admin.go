package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DataResetter wipes the collected analytics data.
type DataResetter interface {
	ResetAll(ctx context.Context) error
}

// LedgerResetter wipes the snapshot ledger.
type LedgerResetter interface {
	Reset(ctx context.Context) error
}

// AdminHandler provides admin-only operational endpoints.
type AdminHandler struct {
	visitors  DataResetter
	snapshots LedgerResetter
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(visitors DataResetter, snapshots LedgerResetter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		visitors:  visitors,
		snapshots: snapshots,
		logger:    logger.With("component", "handler.admin"),
	}
}

// Reset handles DELETE /api/admin/reset.
//
// Truncates visitors, events and the snapshot ledger. The report config
// survives a reset so delivery settings do not need re-entering.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.visitors.ResetAll(ctx); err != nil {
		h.logger.Error("failed to reset visitor data", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to reset data")
		return
	}
	if err := h.snapshots.Reset(ctx); err != nil {
		h.logger.Error("failed to reset snapshot ledger", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to reset data")
		return
	}

	h.logger.Warn("all analytics data reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
