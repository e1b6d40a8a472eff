package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagepulse/pagepulse/internal/handler/dto"
	"github.com/pagepulse/pagepulse/internal/model"
)

const passwordMask = "********"

// ConfigStore loads and persists the reporting configuration.
type ConfigStore interface {
	Get(ctx context.Context) (model.ReportConfig, error)
	Save(ctx context.Context, cfg model.ReportConfig) error
}

// SchedulerReloader wakes the scheduler after a config change.
type SchedulerReloader interface {
	Reconfigure()
}

// ReportRunner runs report cycles on demand.
type ReportRunner interface {
	Run(ctx context.Context) error
	RunTest(ctx context.Context) error
}

// ReportHandler serves the admin reporting endpoints.
type ReportHandler struct {
	configs   ConfigStore
	scheduler SchedulerReloader
	service   ReportRunner
	logger    *slog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(configs ConfigStore, scheduler SchedulerReloader, service ReportRunner, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		configs:   configs,
		scheduler: scheduler,
		service:   service,
		logger:    logger.With("component", "handler.report"),
	}
}

// GetConfig handles GET /api/admin/report-config.
// The SMTP password is masked in the response.
func (h *ReportHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load report config", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load report config")
		return
	}
	writeJSON(w, http.StatusOK, dto.ReportConfigFromModel(cfg.Redacted()))
}

// SaveConfig handles PUT /api/admin/report-config.
//
// A masked or empty SMTP password keeps the stored one, so clients can
// round-trip the GET response without re-entering credentials. On success
// the scheduler is woken to pick up new fire times.
func (h *ReportHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req dto.ReportConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}

	cfg := req.ToModel()
	if err := cfg.Validate(); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	if cfg.SMTPPassword == "" || cfg.SMTPPassword == passwordMask {
		current, err := h.configs.Get(r.Context())
		if err != nil {
			h.logger.Error("failed to load report config", "error", err)
			writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load report config")
			return
		}
		cfg.SMTPPassword = current.SMTPPassword
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := h.configs.Save(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save report config", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save report config")
		return
	}

	h.scheduler.Reconfigure()
	h.logger.Info("report config updated",
		"fire_times", len(cfg.FireTimes),
		"recipients", len(cfg.Recipients),
	)

	writeJSON(w, http.StatusOK, dto.ReportConfigFromModel(cfg.Redacted()))
}

// Trigger handles POST /api/admin/report/trigger.
// Runs a full report cycle now: compute, deliver, append to the ledger.
func (h *ReportHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := h.service.Run(ctx); err != nil {
		h.logger.Error("manual report cycle failed", "error", err)
		writeErrorJSON(w, http.StatusBadGateway, "REPORT_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Test handles POST /api/admin/report/test.
// Sends a test report without touching the snapshot ledger.
func (h *ReportHandler) Test(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := h.service.RunTest(ctx); err != nil {
		h.logger.Error("test report failed", "error", err)
		writeErrorJSON(w, http.StatusBadGateway, "REPORT_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "test_sent"})
}
