package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/repository"
)

// TopListLimit is the number of entries kept in each insight list.
const TopListLimit = 5

// Store defines the aggregate queries the calculator composes.
type Store interface {
	CountVisitors(ctx context.Context) (int64, error)
	CountEvents(ctx context.Context) (int64, error)
	CountEventsIn(ctx context.Context, w repository.Window) (int64, error)
	CountUniqueVisitors(ctx context.Context, w repository.Window) (int64, error)
	CountNewVisitors(ctx context.Context, w repository.Window) (int64, error)
	SessionDurations(ctx context.Context, w repository.Window) ([]int64, error)
	AvgInteractionStay(ctx context.Context, w repository.Window) (float64, error)
	CountRetained(ctx context.Context) (int64, error)
	AvgPageDepth(ctx context.Context) (float64, error)
	TopTargets(ctx context.Context, w repository.Window, limit int) ([]model.TargetCount, error)
	TopCountries(ctx context.Context, w repository.Window, limit int) ([]model.CountryCount, error)
	PeakHour(ctx context.Context, w repository.Window, tz string) (model.PeakHour, error)
}

// Calculator computes KPI snapshots from the event store. It is read-only
// and safe for concurrent use.
type Calculator struct {
	store    Store
	logger   *slog.Logger
	timezone string
}

// NewCalculator creates a Calculator. timezone is the IANA name used for
// hour-of-day bucketing.
func NewCalculator(store Store, logger *slog.Logger, timezone string) *Calculator {
	return &Calculator{
		store:    store,
		logger:   logger.With("component", "analytics.calculator"),
		timezone: timezone,
	}
}

// Calculate computes the full KPI snapshot for the given window. Windowed
// metrics cover the window; totals and rates span all recorded history.
func (c *Calculator) Calculate(ctx context.Context, w repository.Window) (model.KPISnapshot, error) {
	snap := model.KPISnapshot{
		ID:          ulid.Make().String(),
		WindowStart: w.Start,
		WindowEnd:   w.End,
		CreatedAt:   w.End,
	}

	var err error

	if snap.TotalVisitors, err = c.store.CountVisitors(ctx); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("total visitors: %w", err)
	}
	if snap.TotalEvents, err = c.store.CountEvents(ctx); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("total events: %w", err)
	}
	if snap.PageViews, err = c.store.CountEventsIn(ctx, w); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("page views: %w", err)
	}
	snap.Interactions = snap.PageViews

	if snap.UniqueVisitors, err = c.store.CountUniqueVisitors(ctx, w); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("unique visitors: %w", err)
	}
	if snap.NewVisitors, err = c.store.CountNewVisitors(ctx, w); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("new visitors: %w", err)
	}

	snap.ReturningVisitors = snap.UniqueVisitors - snap.NewVisitors
	if snap.ReturningVisitors < 0 {
		// Can only happen when events were wiped but visitor profiles kept,
		// or with backdated synthetic data.
		c.logger.Warn("returning visitors negative, clamping to zero",
			"unique", snap.UniqueVisitors,
			"new", snap.NewVisitors,
		)
		snap.ReturningVisitors = 0
	}

	sessions, err := c.store.SessionDurations(ctx, w)
	if err != nil {
		return model.KPISnapshot{}, fmt.Errorf("session durations: %w", err)
	}
	snap.AvgSessionMs = meanInt64(sessions)

	if snap.AvgInteractionMs, err = c.store.AvgInteractionStay(ctx, w); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("interaction stay: %w", err)
	}

	retained, err := c.store.CountRetained(ctx)
	if err != nil {
		return model.KPISnapshot{}, fmt.Errorf("retained visitors: %w", err)
	}
	if snap.TotalVisitors > 0 {
		snap.RetentionRate = round1(float64(retained) / float64(snap.TotalVisitors) * 100)
	}

	depth, err := c.store.AvgPageDepth(ctx)
	if err != nil {
		return model.KPISnapshot{}, fmt.Errorf("page depth: %w", err)
	}
	snap.AvgPageDepth = round1(depth)

	if snap.TopTargets, err = c.store.TopTargets(ctx, w, TopListLimit); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("top targets: %w", err)
	}
	if snap.TopCountries, err = c.store.TopCountries(ctx, w, TopListLimit); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("top countries: %w", err)
	}
	if snap.PeakHour, err = c.store.PeakHour(ctx, w, c.timezone); err != nil {
		return model.KPISnapshot{}, fmt.Errorf("peak hour: %w", err)
	}

	return snap, nil
}

// WindowEndingNow returns the lookback window closing at the current time.
func WindowEndingNow(lookback time.Duration) repository.Window {
	now := time.Now().UTC()
	return repository.Window{Start: now.Add(-lookback), End: now}
}

func meanInt64(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
