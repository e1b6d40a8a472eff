package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/repository"
)

type fakeCalculator struct {
	window repository.Window
	snap   model.KPISnapshot
	err    error
}

func (f *fakeCalculator) Calculate(_ context.Context, w repository.Window) (model.KPISnapshot, error) {
	f.window = w
	return f.snap, f.err
}

func newStatsFixture(calc *fakeCalculator, now time.Time) *StatsHandler {
	h := NewStatsHandler(calc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	h.now = func() time.Time { return now }
	return h
}

func TestStatsHandler_DefaultWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	calc := &fakeCalculator{snap: model.KPISnapshot{UniqueVisitors: 42}}
	h := newStatsFixture(calc, now)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got, want := calc.window.Start, now.Add(-DefaultStatsLookback); !got.Equal(want) {
		t.Errorf("expected window start %v, got %v", want, got)
	}
	if !calc.window.End.Equal(now) {
		t.Errorf("expected window end %v, got %v", now, calc.window.End)
	}

	var snap model.KPISnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if snap.UniqueVisitors != 42 {
		t.Errorf("expected unique visitors 42, got %d", snap.UniqueVisitors)
	}
}

func TestStatsHandler_FromQuery(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	calc := &fakeCalculator{}
	h := newStatsFixture(calc, now)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/api/stats?from="+from.Format(time.RFC3339), nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !calc.window.Start.Equal(from) {
		t.Errorf("expected window start %v, got %v", from, calc.window.Start)
	}
}

func TestStatsHandler_BadFrom(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newStatsFixture(&fakeCalculator{}, now)

	tests := []struct {
		name string
		from string
	}{
		{"not a timestamp", "yesterday"},
		{"in the future", now.Add(time.Hour).Format(time.RFC3339)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/stats?from="+tt.from, nil)
			rec := httptest.NewRecorder()
			h.Stats(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestStatsHandler_CalculatorError(t *testing.T) {
	t.Parallel()

	calc := &fakeCalculator{err: errors.New("db down")}
	h := newStatsFixture(calc, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}
