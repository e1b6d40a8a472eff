package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagepulse/pagepulse/internal/analytics"
	"github.com/pagepulse/pagepulse/internal/auth"
	"github.com/pagepulse/pagepulse/internal/handler/dto"
	"github.com/pagepulse/pagepulse/internal/middleware"
)

// PingPublisher enqueues pings without blocking the request path.
type PingPublisher interface {
	PublishAsync(ping analytics.PingPayload)
}

// TrackHandler accepts event pings from the tracking snippet.
type TrackHandler struct {
	publisher PingPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewTrackHandler creates a new TrackHandler.
func NewTrackHandler(publisher PingPublisher, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{
		publisher: publisher,
		logger:    logger.With("component", "handler.track"),
		now:       time.Now,
	}
}

// Track handles POST /api/track.
//
// The ping is validated, normalized and published asynchronously; the
// response never waits for Redis. Admin-authenticated callers may backfill
// synthetic data with mock_ip, mock_location and custom_created_at.
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req dto.TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}

	if err := validateTrackRequest(req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_PING", err.Error())
		return
	}

	isAdmin := auth.IsAdmin(r.Context())

	ip := analytics.NormalizeIP(middleware.ClientIP(r))
	if isAdmin && req.MockIP != "" {
		if err := middleware.ValidateBackfillIP(req.MockIP); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_PING", err.Error())
			return
		}
		ip = req.MockIP
	}
	if ip == "" {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_PING", "client IP could not be determined")
		return
	}

	createdAt := h.now().UTC()
	if isAdmin && !req.CustomCreatedAt.IsZero() {
		createdAt = req.CustomCreatedAt.Time
	}

	ping := analytics.PingPayload{
		IP:         ip,
		Type:       analytics.TruncateMeta(req.Type),
		Target:     analytics.TruncateMeta(req.Target),
		Page:       analytics.TruncateMeta(req.Page),
		StayTimeMs: req.StayTimeMs,
		ClientTS:   req.Timestamp,
		CreatedAt:  createdAt.UnixMilli(),
	}
	if isAdmin && req.MockLocation != nil {
		ping.Country = req.MockLocation.Country
		ping.Region = req.MockLocation.Region
		ping.City = req.MockLocation.City
	}

	h.publisher.PublishAsync(ping)

	writeJSON(w, http.StatusAccepted, dto.AcceptedResponse{Status: "accepted"})
}

// validateTrackRequest runs the field validators over the raw request.
func validateTrackRequest(req dto.TrackRequest) error {
	return errors.Join(
		middleware.ValidateEventType(req.Type),
		middleware.ValidateTarget(req.Target),
		middleware.ValidatePage(req.Page),
		middleware.ValidateStayTime(req.StayTimeMs),
	)
}
