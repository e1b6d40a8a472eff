package report

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

// tickTimeout bounds one scheduled reporting cycle.
const tickTimeout = 5 * time.Minute

// Runner executes one reporting cycle.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler fires the reporting cycle at the configured daily wall-clock
// times. Missed ticks are not made up: each cycle recomputes from scratch,
// so at-most-once per scheduled time is enough.
type Scheduler struct {
	svc     Runner
	configs ConfigSource
	logger  *slog.Logger
	loc     *time.Location

	reload chan struct{}

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewScheduler creates a scheduler. loc is the timezone fire times are
// interpreted in.
func NewScheduler(svc Runner, configs ConfigSource, logger *slog.Logger, loc *time.Location) *Scheduler {
	return &Scheduler{
		svc:     svc,
		configs: configs,
		logger:  logger.With("component", "report.scheduler"),
		loc:     loc,
		reload:  make(chan struct{}, 1),
	}
}

// Run blocks until the context is cancelled, firing cycles at the configured
// times and re-deriving the schedule on Reconfigure.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)

	s.logger.Info("report scheduler started", "timezone", s.loc.String())

	for {
		next, ok := s.nextFire(ctx)

		if !ok {
			// Nothing scheduled: sleep until reconfigured.
			select {
			case <-ctx.Done():
				s.logger.Info("report scheduler stopping")
				return ctx.Err()
			case <-s.reload:
				s.logger.Info("schedule reloaded")
				continue
			}
		}

		s.logger.Info("next report scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("report scheduler stopping")
			return ctx.Err()
		case <-s.reload:
			timer.Stop()
			s.logger.Info("schedule reloaded")
		case <-timer.C:
			s.fire(ctx)
		}
	}
}

// Reconfigure re-derives the schedule from the config store. Called after
// every successful config save. Never blocks.
func (s *Scheduler) Reconfigure() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Shutdown stops the scheduler. An in-flight cycle is cancelled through its
// context. Implements server.ShutdownFunc.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	// Scheduled ticks log and skip on failure; the next tick reads fresh.
	if err := s.svc.Run(tickCtx); err != nil {
		s.logger.Error("scheduled report failed", "error", err)
	}
}

// nextFire loads the config and returns the earliest upcoming fire instant.
// ok is false when nothing is scheduled or the config cannot be read.
func (s *Scheduler) nextFire(ctx context.Context) (time.Time, bool) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		s.logger.Error("failed to load report config, schedule suspended", "error", err)
		return time.Time{}, false
	}

	return NextFireTime(time.Now().In(s.loc), cfg.ParsedFireTimes(), s.loc)
}

// NextFireTime returns the earliest occurrence of any fire time strictly
// after now.
func NextFireTime(now time.Time, times []model.FireTime, loc *time.Location) (time.Time, bool) {
	var next time.Time
	for _, ft := range times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), ft.Hour, ft.Minute, 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
