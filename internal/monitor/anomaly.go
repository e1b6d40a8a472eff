// Package monitor watches live traffic for anomalous spikes.
package monitor

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

// trailingWindow is the lookback each tick counts unique visitors over.
const trailingWindow = time.Minute

// tickTimeout bounds one monitor tick including alert delivery.
const tickTimeout = 30 * time.Second

// TrafficCounter counts distinct visitors over a window.
type TrafficCounter interface {
	CountUniqueVisitors(ctx context.Context, w repository.Window) (int64, error)
}

// ConfigSource reads the current alert settings.
type ConfigSource interface {
	Get(ctx context.Context) (model.ReportConfig, error)
}

// SenderFactory builds a mail sender from the current config so SMTP
// settings hot-reload between ticks.
type SenderFactory func(cfg model.ReportConfig) mailer.Sender

// Monitor polls recent traffic on a fixed interval and alerts when the
// trailing-minute unique-visitor count exceeds the configured threshold.
// A single global cooldown bounds alert frequency: at most one alert per
// cooldown window, whatever tripped it. The monitor never touches the
// snapshot ledger and never blocks the report scheduler.
type Monitor struct {
	store     TrafficCounter
	configs   ConfigSource
	senderFor SenderFactory
	logger    *slog.Logger
	metrics   metrics.Recorder
	interval  time.Duration

	lastAlert time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewMonitor creates an anomaly monitor polling at the given interval.
func NewMonitor(store TrafficCounter, configs ConfigSource, senderFor SenderFactory, logger *slog.Logger, recorder metrics.Recorder, interval time.Duration) *Monitor {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Monitor{
		store:     store,
		configs:   configs,
		senderFor: senderFor,
		logger:    logger.With("component", "monitor"),
		metrics:   recorder,
		interval:  interval,
	}
}

// Run blocks until the context is cancelled, polling every interval.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("monitor already started")
	}
	m.started = true
	m.done = make(chan struct{})
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	defer close(m.done)

	m.logger.Info("anomaly monitor started", "interval", m.interval.String())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("anomaly monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
			if err := m.Tick(tickCtx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("monitor tick failed", "error", err)
			}
			cancel()
		}
	}
}

// Shutdown stops the monitor. Implements server.ShutdownFunc.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

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

// Tick evaluates the trailing window once at the given instant and alerts
// when warranted. Exported for tests; Run drives it on the ticker.
func (m *Monitor) Tick(ctx context.Context, now time.Time) error {
	cfg, err := m.configs.Get(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.AlertThreshold <= 0 {
		return nil
	}

	w := repository.Window{Start: now.Add(-trailingWindow), End: now}
	count, err := m.store.CountUniqueVisitors(ctx, w)
	if err != nil {
		return fmt.Errorf("count unique visitors: %w", err)
	}

	if count <= int64(cfg.AlertThreshold) {
		return nil
	}

	m.mu.Lock()
	inCooldown := !m.lastAlert.IsZero() && now.Sub(m.lastAlert) < cfg.AlertCooldown
	if !inCooldown {
		m.lastAlert = now
	}
	m.mu.Unlock()

	if inCooldown {
		m.logger.Debug("spike within cooldown, suppressing alert",
			"unique_visitors", count,
			"threshold", cfg.AlertThreshold,
		)
		return nil
	}

	subject, body := renderAlert(count, cfg.AlertThreshold, now)
	if err := m.senderFor(cfg).Send(ctx, cfg.Recipients, subject, body); err != nil {
		// Cooldown stays armed; a flapping mail server must not turn one
		// spike into an alert storm.
		return fmt.Errorf("send alert: %w", err)
	}

	m.logger.Warn("traffic spike alert sent",
		"unique_visitors", count,
		"threshold", cfg.AlertThreshold,
	)
	m.metrics.IncAlertSent()
	return nil
}

func renderAlert(count int64, threshold int, now time.Time) (subject, body string) {
	subject = fmt.Sprintf("PagePulse Traffic Alert: %d unique visitors in the last minute", count)
	body = fmt.Sprintf(
		"Traffic spike detected at %s.\n\nUnique visitors (trailing minute): %d\nAlert threshold: %d\n\nNo further alerts will be sent during the cooldown window.\n",
		now.Format(time.RFC3339), count, threshold,
	)
	return subject, body
}
