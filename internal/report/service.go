package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/internal/mailer"
	"github.com/pagepulse/pagepulse/internal/metrics"
	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/repository"
)

// Calculator computes a KPI snapshot for a window.
type Calculator interface {
	Calculate(ctx context.Context, w repository.Window) (model.KPISnapshot, error)
}

// Ledger is the append-only snapshot history used as the diff baseline.
type Ledger interface {
	Latest(ctx context.Context) (*model.KPISnapshot, error)
	Append(ctx context.Context, snap *model.KPISnapshot) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConfigSource reads the current reporting configuration.
type ConfigSource interface {
	Get(ctx context.Context) (model.ReportConfig, error)
}

// SenderFactory builds a mail sender from the current config. The sender is
// rebuilt every cycle so SMTP settings hot-reload without a restart.
type SenderFactory func(cfg model.ReportConfig) mailer.Sender

// Service runs reporting cycles. Cycles are serialized with a mutex so two
// triggers can never race on the baseline read.
type Service struct {
	calc      Calculator
	ledger    Ledger
	configs   ConfigSource
	senderFor SenderFactory
	logger    *slog.Logger
	metrics   metrics.Recorder

	lookback  time.Duration
	retention time.Duration
	loc       *time.Location

	mu sync.Mutex
}

// NewService creates a reporting service. lookback bounds the first-ever
// window; retention bounds ledger history.
func NewService(calc Calculator, ledger Ledger, configs ConfigSource, senderFor SenderFactory, logger *slog.Logger, recorder metrics.Recorder, lookback, retention time.Duration, loc *time.Location) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		calc:      calc,
		ledger:    ledger,
		configs:   configs,
		senderFor: senderFor,
		logger:    logger.With("component", "report.service"),
		metrics:   recorder,
		lookback:  lookback,
		retention: retention,
		loc:       loc,
	}
}

// Run executes one full reporting cycle: calculate, render the diff against
// the latest snapshot, deliver, then append the new snapshot. The append
// happens only after successful delivery so a mail failure never shifts the
// baseline.
func (s *Service) Run(ctx context.Context) error {
	return s.cycle(ctx, false)
}

// RunTest executes a cycle that delivers but never appends to the ledger,
// leaving the real baseline chain untouched.
func (s *Service) RunTest(ctx context.Context) error {
	return s.cycle(ctx, true)
}

func (s *Service) cycle(ctx context.Context, testRun bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		s.metrics.IncReportCycle("failed")
		return fmt.Errorf("load report config: %w", err)
	}

	baseline, window, err := s.baselineAndWindow(ctx)
	if err != nil {
		s.metrics.IncReportCycle("failed")
		return fmt.Errorf("read baseline: %w", err)
	}

	snap, err := s.calc.Calculate(ctx, window)
	if err != nil {
		s.metrics.IncReportCycle("failed")
		return fmt.Errorf("calculate: %w", err)
	}

	subject, body := Render(snap, baseline, s.loc)
	if testRun {
		subject = "[TEST] " + subject
	}

	if err := s.senderFor(cfg).Send(ctx, cfg.Recipients, subject, body); err != nil {
		s.metrics.IncReportCycle("failed")
		return fmt.Errorf("deliver report: %w", err)
	}

	if testRun {
		s.logger.Info("test report delivered", "subject", subject)
		s.metrics.IncReportCycle("sent")
		return nil
	}

	if err := s.ledger.Append(ctx, &snap); err != nil {
		s.metrics.IncReportCycle("failed")
		return fmt.Errorf("append snapshot: %w", err)
	}

	if purged, err := s.ledger.PurgeOlderThan(ctx, time.Now().Add(-s.retention)); err != nil {
		// Next cycle's purge tries again; the report itself succeeded.
		s.logger.Warn("snapshot purge failed", "error", err)
	} else if purged > 0 {
		s.logger.Info("purged old snapshots", "count", purged)
	}

	s.logger.Info("report cycle complete",
		"snapshot_id", snap.ID,
		"window_start", window.Start,
		"window_end", window.End,
		"recipients", len(cfg.Recipients),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.metrics.IncReportCycle("sent")
	return nil
}

// baselineAndWindow resolves the diff baseline and the calculation window.
// With a prior snapshot the window starts where that snapshot ended; on the
// very first cycle it falls back to the configured lookback.
func (s *Service) baselineAndWindow(ctx context.Context) (model.KPISnapshot, repository.Window, error) {
	now := time.Now().UTC()

	latest, err := s.ledger.Latest(ctx)
	if errors.Is(err, repository.ErrNoSnapshot) {
		return model.ZeroSnapshot(), repository.Window{Start: now.Add(-s.lookback), End: now}, nil
	}
	if err != nil {
		return model.KPISnapshot{}, repository.Window{}, err
	}

	return *latest, repository.Window{Start: latest.WindowEnd, End: now}, nil
}
