package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagepulse/pagepulse/internal/model"
)

// ErrNoSnapshot is returned by Latest when the ledger is empty.
var ErrNoSnapshot = errors.New("no snapshot recorded")

// SnapshotRepository provides access to the append-only KPI snapshot ledger.
// There is no mutation API: snapshots are appended, read back as "most
// recent", and eventually purged by age.
type SnapshotRepository struct {
	repo *Repository
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(repo *Repository) *SnapshotRepository {
	return &SnapshotRepository{repo: repo}
}

// Append persists a snapshot. Snapshots are immutable once written.
func (r *SnapshotRepository) Append(ctx context.Context, snap *model.KPISnapshot) error {
	targetsJSON, err := json.Marshal(snap.TopTargets)
	if err != nil {
		return fmt.Errorf("marshal top targets: %w", err)
	}
	countriesJSON, err := json.Marshal(snap.TopCountries)
	if err != nil {
		return fmt.Errorf("marshal top countries: %w", err)
	}

	query := `
		INSERT INTO kpi_snapshots (
			id, window_start, window_end,
			total_visitors, total_events,
			page_views, unique_visitors, new_visitors, returning_visitors,
			avg_session_ms, interactions, avg_interaction_ms,
			retention_rate, avg_page_depth,
			top_targets, top_countries, peak_hour, peak_hour_visitors,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err = r.repo.pool.Exec(ctx, query,
		snap.ID,
		snap.WindowStart,
		snap.WindowEnd,
		snap.TotalVisitors,
		snap.TotalEvents,
		snap.PageViews,
		snap.UniqueVisitors,
		snap.NewVisitors,
		snap.ReturningVisitors,
		snap.AvgSessionMs,
		snap.Interactions,
		snap.AvgInteractionMs,
		snap.RetentionRate,
		snap.AvgPageDepth,
		targetsJSON,
		countriesJSON,
		snap.PeakHour.Hour,
		snap.PeakHour.Visitors,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	return nil
}

// Latest returns the most recent snapshot by creation time, or ErrNoSnapshot.
func (r *SnapshotRepository) Latest(ctx context.Context) (*model.KPISnapshot, error) {
	query := `
		SELECT id, window_start, window_end,
			   total_visitors, total_events,
			   page_views, unique_visitors, new_visitors, returning_visitors,
			   avg_session_ms, interactions, avg_interaction_ms,
			   retention_rate, avg_page_depth,
			   top_targets, top_countries, peak_hour, peak_hour_visitors,
			   created_at
		FROM kpi_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`

	var snap model.KPISnapshot
	var targetsJSON, countriesJSON []byte

	err := r.repo.pool.QueryRow(ctx, query).Scan(
		&snap.ID,
		&snap.WindowStart,
		&snap.WindowEnd,
		&snap.TotalVisitors,
		&snap.TotalEvents,
		&snap.PageViews,
		&snap.UniqueVisitors,
		&snap.NewVisitors,
		&snap.ReturningVisitors,
		&snap.AvgSessionMs,
		&snap.Interactions,
		&snap.AvgInteractionMs,
		&snap.RetentionRate,
		&snap.AvgPageDepth,
		&targetsJSON,
		&countriesJSON,
		&snap.PeakHour.Hour,
		&snap.PeakHour.Visitors,
		&snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	if len(targetsJSON) > 0 {
		if err := json.Unmarshal(targetsJSON, &snap.TopTargets); err != nil {
			return nil, fmt.Errorf("decode top targets: %w", err)
		}
	}
	if len(countriesJSON) > 0 {
		if err := json.Unmarshal(countriesJSON, &snap.TopCountries); err != nil {
			return nil, fmt.Errorf("decode top countries: %w", err)
		}
	}

	return &snap, nil
}

// PurgeOlderThan removes snapshots created before the cutoff and returns
// the number deleted. The event store is never touched.
func (r *SnapshotRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.repo.pool.Exec(ctx, `DELETE FROM kpi_snapshots WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Reset truncates the ledger. Administrative use only.
func (r *SnapshotRepository) Reset(ctx context.Context) error {
	if _, err := r.repo.pool.Exec(ctx, `TRUNCATE kpi_snapshots`); err != nil {
		return fmt.Errorf("truncate snapshots: %w", err)
	}
	return nil
}
