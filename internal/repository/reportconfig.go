package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/pagepulse/pagepulse/internal/model"
)

// reportConfigID is the single row key: there is exactly one config.
const reportConfigID = "default"

// ReportConfigRepository is the config store for the reporting engine.
type ReportConfigRepository struct {
	repo *Repository
}

// NewReportConfigRepository creates a new ReportConfigRepository.
func NewReportConfigRepository(repo *Repository) *ReportConfigRepository {
	return &ReportConfigRepository{repo: repo}
}

// Get returns the stored config, or the defaults when none was saved yet.
func (r *ReportConfigRepository) Get(ctx context.Context) (model.ReportConfig, error) {
	query := `
		SELECT fire_times, recipients,
			   smtp_host, smtp_port, smtp_user, smtp_password, smtp_from, smtp_implicit_tls,
			   alert_threshold, alert_cooldown_s, updated_at
		FROM report_config
		WHERE id = $1
	`

	var cfg model.ReportConfig
	var fireTimes, recipients []string
	var cooldownSec int

	err := r.repo.pool.QueryRow(ctx, query, reportConfigID).Scan(
		pq.Array(&fireTimes),
		pq.Array(&recipients),
		&cfg.SMTPHost,
		&cfg.SMTPPort,
		&cfg.SMTPUser,
		&cfg.SMTPPassword,
		&cfg.SMTPFrom,
		&cfg.SMTPImplicit,
		&cfg.AlertThreshold,
		&cooldownSec,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultReportConfig(), nil
	}
	if err != nil {
		return model.ReportConfig{}, fmt.Errorf("query report config: %w", err)
	}

	cfg.FireTimes = fireTimes
	cfg.Recipients = recipients
	cfg.AlertCooldown = time.Duration(cooldownSec) * time.Second

	return cfg, nil
}

// Save upserts the config row. Callers validate first; a successful save
// must be followed by a scheduler reload.
func (r *ReportConfigRepository) Save(ctx context.Context, cfg model.ReportConfig) error {
	query := `
		INSERT INTO report_config (
			id, fire_times, recipients,
			smtp_host, smtp_port, smtp_user, smtp_password, smtp_from, smtp_implicit_tls,
			alert_threshold, alert_cooldown_s, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			fire_times = EXCLUDED.fire_times,
			recipients = EXCLUDED.recipients,
			smtp_host = EXCLUDED.smtp_host,
			smtp_port = EXCLUDED.smtp_port,
			smtp_user = EXCLUDED.smtp_user,
			smtp_password = EXCLUDED.smtp_password,
			smtp_from = EXCLUDED.smtp_from,
			smtp_implicit_tls = EXCLUDED.smtp_implicit_tls,
			alert_threshold = EXCLUDED.alert_threshold,
			alert_cooldown_s = EXCLUDED.alert_cooldown_s,
			updated_at = NOW()
	`

	_, err := r.repo.pool.Exec(ctx, query,
		reportConfigID,
		pq.Array(cfg.FireTimes),
		pq.Array(cfg.Recipients),
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPassword,
		cfg.SMTPFrom,
		cfg.SMTPImplicit,
		cfg.AlertThreshold,
		int(cfg.AlertCooldown.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("save report config: %w", err)
	}

	return nil
}
