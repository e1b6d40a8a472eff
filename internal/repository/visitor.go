package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagepulse/pagepulse/internal/model"
)

// Window is a time interval over event creation timestamps. Start is
// inclusive; End is inclusive too since it is always "now" at query time.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// VisitorRepository provides database access for visitors and their events.
// Each aggregate query has a fixed filter+group+sort+limit contract; the
// calculator composes them rather than building ad hoc SQL per call site.
type VisitorRepository struct {
	repo *Repository
}

// NewVisitorRepository creates a new VisitorRepository.
func NewVisitorRepository(repo *Repository) *VisitorRepository {
	return &VisitorRepository{repo: repo}
}

// UpsertVisitors creates visitor rows on first sight. The geo profile and
// first-seen time are written exactly once; on conflict only last-seen is
// advanced, and never backwards.
func (r *VisitorRepository) UpsertVisitors(ctx context.Context, visitors []*model.Visitor) error {
	if len(visitors) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO visitors (ip, country, region, city, first_seen_at, last_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (ip) DO UPDATE SET
			last_seen_at = GREATEST(visitors.last_seen_at, EXCLUDED.last_seen_at),
			updated_at = NOW()
	`

	for _, v := range visitors {
		batch.Queue(query, v.IP, v.Country, v.Region, v.City, v.FirstSeenAt, v.LastSeenAt)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(visitors); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert visitor %d: %w", i, err)
		}
	}

	return nil
}

// BulkInsertEvents appends events with idempotency via ON CONFLICT DO NOTHING
// on the stream-derived event_id.
func (r *VisitorRepository) BulkInsertEvents(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO events (id, event_id, visitor_ip, type, target, page, stay_time_ms, client_ts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, e := range events {
		batch.Queue(query,
			e.ID,
			e.EventID,
			e.VisitorIP,
			e.Type,
			e.Target,
			e.Page,
			e.StayTimeMs,
			e.ClientTS,
			e.CreatedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// GetVisitor returns a visitor row by IP, or nil when unknown.
func (r *VisitorRepository) GetVisitor(ctx context.Context, ip string) (*model.Visitor, error) {
	query := `
		SELECT ip, country, region, city, first_seen_at, last_seen_at, updated_at
		FROM visitors
		WHERE ip = $1
	`

	var v model.Visitor
	err := r.repo.pool.QueryRow(ctx, query, ip).Scan(
		&v.IP, &v.Country, &v.Region, &v.City, &v.FirstSeenAt, &v.LastSeenAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query visitor: %w", err)
	}

	return &v, nil
}

// CountVisitors returns the all-time visitor count.
func (r *VisitorRepository) CountVisitors(ctx context.Context) (int64, error) {
	var count int64
	err := r.repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM visitors`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count visitors: %w", err)
	}
	return count, nil
}

// CountEvents returns the all-time event count.
func (r *VisitorRepository) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := r.repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// CountEventsIn returns the number of events in the window (page views).
func (r *VisitorRepository) CountEventsIn(ctx context.Context, w Window) (int64, error) {
	query := `SELECT COUNT(*) FROM events WHERE created_at >= $1 AND created_at <= $2`

	var count int64
	if err := r.repo.pool.QueryRow(ctx, query, w.Start, w.End).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events in window: %w", err)
	}
	return count, nil
}

// CountUniqueVisitors returns distinct identities with at least one event
// in the window.
func (r *VisitorRepository) CountUniqueVisitors(ctx context.Context, w Window) (int64, error) {
	query := `SELECT COUNT(DISTINCT visitor_ip) FROM events WHERE created_at >= $1 AND created_at <= $2`

	var count int64
	if err := r.repo.pool.QueryRow(ctx, query, w.Start, w.End).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unique visitors: %w", err)
	}
	return count, nil
}

// CountNewVisitors returns visitors whose first-seen time falls in the window.
func (r *VisitorRepository) CountNewVisitors(ctx context.Context, w Window) (int64, error) {
	query := `SELECT COUNT(*) FROM visitors WHERE first_seen_at >= $1 AND first_seen_at <= $2`

	var count int64
	if err := r.repo.pool.QueryRow(ctx, query, w.Start, w.End).Scan(&count); err != nil {
		return 0, fmt.Errorf("count new visitors: %w", err)
	}
	return count, nil
}

// SessionDurations returns, per identity with at least one positive-stay
// event in the window, the sum of that identity's in-window stay times in
// milliseconds. Zero stay times are skipped (not measured).
func (r *VisitorRepository) SessionDurations(ctx context.Context, w Window) ([]int64, error) {
	query := `
		SELECT SUM(stay_time_ms)
		FROM events
		WHERE created_at >= $1 AND created_at <= $2 AND stay_time_ms > 0
		GROUP BY visitor_ip
	`

	rows, err := r.repo.pool.Query(ctx, query, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query session durations: %w", err)
	}
	defer rows.Close()

	var sums []int64
	for rows.Next() {
		var sum int64
		if err := rows.Scan(&sum); err != nil {
			return nil, fmt.Errorf("scan session duration: %w", err)
		}
		sums = append(sums, sum)
	}

	return sums, rows.Err()
}

// AvgInteractionStay returns the flat per-event average of positive stay
// times in the window, in milliseconds. Zero when no event measured one.
func (r *VisitorRepository) AvgInteractionStay(ctx context.Context, w Window) (float64, error) {
	query := `
		SELECT COALESCE(AVG(stay_time_ms), 0)
		FROM events
		WHERE created_at >= $1 AND created_at <= $2 AND stay_time_ms > 0
	`

	var avg float64
	if err := r.repo.pool.QueryRow(ctx, query, w.Start, w.End).Scan(&avg); err != nil {
		return 0, fmt.Errorf("query interaction stay: %w", err)
	}
	return avg, nil
}

// CountRetained returns the all-time number of visitors with more than one event.
func (r *VisitorRepository) CountRetained(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT visitor_ip FROM events GROUP BY visitor_ip HAVING COUNT(*) > 1
		) repeat_visitors
	`

	var count int64
	if err := r.repo.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count retained visitors: %w", err)
	}
	return count, nil
}

// AvgPageDepth returns the all-time average of distinct pages per visitor.
func (r *VisitorRepository) AvgPageDepth(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(AVG(depth), 0) FROM (
			SELECT COUNT(DISTINCT page) AS depth FROM events GROUP BY visitor_ip
		) page_depths
	`

	var avg float64
	if err := r.repo.pool.QueryRow(ctx, query).Scan(&avg); err != nil {
		return 0, fmt.Errorf("query page depth: %w", err)
	}
	return avg, nil
}

// TopTargets groups in-window events by non-empty target, counts, sorts
// descending and returns the first limit entries. Ties keep document order.
func (r *VisitorRepository) TopTargets(ctx context.Context, w Window, limit int) ([]model.TargetCount, error) {
	query := `
		SELECT target, COUNT(*) AS hits
		FROM events
		WHERE created_at >= $1 AND created_at <= $2 AND target <> ''
		GROUP BY target
		ORDER BY hits DESC
		LIMIT $3
	`

	rows, err := r.repo.pool.Query(ctx, query, w.Start, w.End, limit)
	if err != nil {
		return nil, fmt.Errorf("query top targets: %w", err)
	}
	defer rows.Close()

	var targets []model.TargetCount
	for rows.Next() {
		var t model.TargetCount
		if err := rows.Scan(&t.Target, &t.Count); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}

	return targets, rows.Err()
}

// TopCountries groups the identities active in the window by their profile
// country and returns the top limit entries by active-identity count.
func (r *VisitorRepository) TopCountries(ctx context.Context, w Window, limit int) ([]model.CountryCount, error) {
	query := `
		SELECT v.country, COUNT(DISTINCT e.visitor_ip) AS hits
		FROM events e
		JOIN visitors v ON v.ip = e.visitor_ip
		WHERE e.created_at >= $1 AND e.created_at <= $2
		GROUP BY v.country
		ORDER BY hits DESC
		LIMIT $3
	`

	rows, err := r.repo.pool.Query(ctx, query, w.Start, w.End, limit)
	if err != nil {
		return nil, fmt.Errorf("query top countries: %w", err)
	}
	defer rows.Close()

	var countries []model.CountryCount
	for rows.Next() {
		var c model.CountryCount
		if err := rows.Scan(&c.Country, &c.Count); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}

	return countries, rows.Err()
}

// PeakHour buckets in-window events by hour-of-day in the given timezone,
// counting distinct identities per bucket, and returns the busiest hour.
// An empty window yields hour 0 with count 0.
func (r *VisitorRepository) PeakHour(ctx context.Context, w Window, tz string) (model.PeakHour, error) {
	query := `
		SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE $3)::int AS hour,
		       COUNT(DISTINCT visitor_ip) AS visitors
		FROM events
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY hour
		ORDER BY visitors DESC, hour ASC
		LIMIT 1
	`

	var peak model.PeakHour
	err := r.repo.pool.QueryRow(ctx, query, w.Start, w.End, tz).Scan(&peak.Hour, &peak.Visitors)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PeakHour{}, nil
	}
	if err != nil {
		return model.PeakHour{}, fmt.Errorf("query peak hour: %w", err)
	}

	return peak, nil
}

// ResetAll truncates the event store. Administrative use only.
func (r *VisitorRepository) ResetAll(ctx context.Context) error {
	if _, err := r.repo.pool.Exec(ctx, `TRUNCATE events, visitors`); err != nil {
		return fmt.Errorf("truncate event store: %w", err)
	}
	return nil
}
