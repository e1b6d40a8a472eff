package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/repository"
)

type fakeStore struct {
	totalVisitors  int64
	totalEvents    int64
	pageViews      int64
	uniqueVisitors int64
	newVisitors    int64
	sessions       []int64
	avgInteraction float64
	retained       int64
	pageDepth      float64
	topTargets     []model.TargetCount
	topCountries   []model.CountryCount
	peakHour       model.PeakHour

	peakHourTZ string
	topLimit   int
	err        error
}

func (f *fakeStore) CountVisitors(ctx context.Context) (int64, error) {
	return f.totalVisitors, f.err
}

func (f *fakeStore) CountEvents(ctx context.Context) (int64, error) {
	return f.totalEvents, f.err
}

func (f *fakeStore) CountEventsIn(ctx context.Context, w repository.Window) (int64, error) {
	return f.pageViews, f.err
}

func (f *fakeStore) CountUniqueVisitors(ctx context.Context, w repository.Window) (int64, error) {
	return f.uniqueVisitors, f.err
}

func (f *fakeStore) CountNewVisitors(ctx context.Context, w repository.Window) (int64, error) {
	return f.newVisitors, f.err
}

func (f *fakeStore) SessionDurations(ctx context.Context, w repository.Window) ([]int64, error) {
	return f.sessions, f.err
}

func (f *fakeStore) AvgInteractionStay(ctx context.Context, w repository.Window) (float64, error) {
	return f.avgInteraction, f.err
}

func (f *fakeStore) CountRetained(ctx context.Context) (int64, error) {
	return f.retained, f.err
}

func (f *fakeStore) AvgPageDepth(ctx context.Context) (float64, error) {
	return f.pageDepth, f.err
}

func (f *fakeStore) TopTargets(ctx context.Context, w repository.Window, limit int) ([]model.TargetCount, error) {
	f.topLimit = limit
	return f.topTargets, f.err
}

func (f *fakeStore) TopCountries(ctx context.Context, w repository.Window, limit int) ([]model.CountryCount, error) {
	return f.topCountries, f.err
}

func (f *fakeStore) PeakHour(ctx context.Context, w repository.Window, tz string) (model.PeakHour, error) {
	f.peakHourTZ = tz
	return f.peakHour, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWindow() repository.Window {
	end := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return repository.Window{Start: end.Add(-24 * time.Hour), End: end}
}

func TestCalculate_AssemblesSnapshot(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		totalVisitors:  100,
		totalEvents:    540,
		pageViews:      120,
		uniqueVisitors: 40,
		newVisitors:    15,
		sessions:       []int64{1000, 2000, 3000},
		avgInteraction: 750.5,
		retained:       37,
		pageDepth:      2.349,
		topTargets:     []model.TargetCount{{Target: "signup-btn", Count: 30}},
		topCountries:   []model.CountryCount{{Country: "China", Count: 25}},
		peakHour:       model.PeakHour{Hour: 14, Visitors: 18},
	}

	calc := NewCalculator(store, testLogger(), "Asia/Shanghai")
	w := testWindow()

	snap, err := calc.Calculate(context.Background(), w)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	if snap.ID == "" {
		t.Error("Snapshot ID should be set")
	}
	if !snap.WindowStart.Equal(w.Start) || !snap.WindowEnd.Equal(w.End) {
		t.Errorf("Window = [%v, %v], want [%v, %v]", snap.WindowStart, snap.WindowEnd, w.Start, w.End)
	}
	if !snap.CreatedAt.Equal(w.End) {
		t.Errorf("CreatedAt = %v, want window end %v", snap.CreatedAt, w.End)
	}
	if snap.TotalVisitors != 100 || snap.TotalEvents != 540 {
		t.Errorf("Totals = %d/%d, want 100/540", snap.TotalVisitors, snap.TotalEvents)
	}
	if snap.PageViews != 120 || snap.Interactions != 120 {
		t.Errorf("PageViews/Interactions = %d/%d, want 120/120", snap.PageViews, snap.Interactions)
	}
	if snap.ReturningVisitors != 25 {
		t.Errorf("ReturningVisitors = %d, want 25", snap.ReturningVisitors)
	}
	if snap.AvgSessionMs != 2000 {
		t.Errorf("AvgSessionMs = %v, want 2000", snap.AvgSessionMs)
	}
	if snap.AvgInteractionMs != 750.5 {
		t.Errorf("AvgInteractionMs = %v, want 750.5", snap.AvgInteractionMs)
	}
	if snap.RetentionRate != 37.0 {
		t.Errorf("RetentionRate = %v, want 37.0", snap.RetentionRate)
	}
	if snap.AvgPageDepth != 2.3 {
		t.Errorf("AvgPageDepth = %v, want 2.3", snap.AvgPageDepth)
	}
	if len(snap.TopTargets) != 1 || snap.TopTargets[0].Target != "signup-btn" {
		t.Errorf("TopTargets = %v", snap.TopTargets)
	}
	if snap.PeakHour.Hour != 14 || snap.PeakHour.Visitors != 18 {
		t.Errorf("PeakHour = %+v", snap.PeakHour)
	}
	if store.peakHourTZ != "Asia/Shanghai" {
		t.Errorf("Peak hour timezone = %q, want Asia/Shanghai", store.peakHourTZ)
	}
	if store.topLimit != TopListLimit {
		t.Errorf("Top list limit = %d, want %d", store.topLimit, TopListLimit)
	}
}

func TestCalculate_ClampsNegativeReturning(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		uniqueVisitors: 5,
		newVisitors:    9, // backdated synthetic data
	}

	calc := NewCalculator(store, testLogger(), "UTC")

	snap, err := calc.Calculate(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	if snap.ReturningVisitors != 0 {
		t.Errorf("ReturningVisitors = %d, want 0", snap.ReturningVisitors)
	}
}

func TestCalculate_EmptyStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	calc := NewCalculator(store, testLogger(), "UTC")

	snap, err := calc.Calculate(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	if snap.AvgSessionMs != 0 {
		t.Errorf("AvgSessionMs = %v, want 0 for empty store", snap.AvgSessionMs)
	}
	if snap.RetentionRate != 0 {
		t.Errorf("RetentionRate = %v, want 0 when no visitors exist", snap.RetentionRate)
	}
	if snap.PeakHour.Hour != 0 || snap.PeakHour.Visitors != 0 {
		t.Errorf("PeakHour = %+v, want zero value", snap.PeakHour)
	}
}

func TestCalculate_PropagatesStoreError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("connection refused")}
	calc := NewCalculator(store, testLogger(), "UTC")

	if _, err := calc.Calculate(context.Background(), testWindow()); err == nil {
		t.Error("Calculate() should fail when the store fails")
	}
}

func TestWindowEndingNow(t *testing.T) {
	t.Parallel()

	w := WindowEndingNow(24 * time.Hour)

	if got := w.End.Sub(w.Start); got != 24*time.Hour {
		t.Errorf("Window span = %v, want 24h", got)
	}
	if time.Since(w.End) > time.Minute {
		t.Errorf("Window end %v should be close to now", w.End)
	}
}

func TestRound1(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{2.34, 2.3},
		{2.35, 2.4},
		{99.99, 100},
	}

	for _, tt := range tests {
		if got := round1(tt.in); got != tt.want {
			t.Errorf("round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
