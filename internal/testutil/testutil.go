// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pagepulse/pagepulse/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// resetSchema drops and recreates one migration's schema.
func resetSchema(ctx context.Context, pool *pgxpool.Pool, name string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", name+".down.sql")
	upPath := filepath.Join(root, "migrations", name+".up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read %s down migration: %w", name, err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply %s down migration: %w", name, err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read %s up migration: %w", name, err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply %s up migration: %w", name, err)
	}

	return nil
}

// ResetVisitorsSchema drops and recreates the visitors and events schema.
func ResetVisitorsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000001_visitors")
}

// ResetSnapshotsSchema drops and recreates the snapshot ledger schema.
func ResetSnapshotsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_snapshots")
}

// ResetReportConfigSchema drops and recreates the report config schema.
func ResetReportConfigSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000003_report_config")
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestVisitor creates a visitor with sensible defaults.
func NewTestVisitor(t testing.TB, ip string) *model.Visitor {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Visitor{
		IP:          ip,
		Country:     "Japan",
		Region:      "Tokyo",
		City:        "Shibuya",
		FirstSeenAt: now,
		LastSeenAt:  now,
		UpdatedAt:   now,
	}
}

// NewTestEvent creates an event for a visitor with sensible defaults.
func NewTestEvent(t testing.TB, visitorIP string) *model.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Event{
		ID:         ulid.Make().String(),
		EventID:    fmt.Sprintf("%d-0", now.UnixMilli()),
		VisitorIP:  visitorIP,
		Type:       "view",
		Page:       "/home",
		StayTimeMs: 1200,
		ClientTS:   now.UnixMilli(),
		CreatedAt:  now,
	}
}

// NewTestSnapshot creates a KPI snapshot covering the trailing day.
func NewTestSnapshot(t testing.TB) *model.KPISnapshot {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.KPISnapshot{
		ID:             ulid.Make().String(),
		WindowStart:    now.Add(-24 * time.Hour),
		WindowEnd:      now,
		TotalVisitors:  10,
		TotalEvents:    120,
		PageViews:      80,
		UniqueVisitors: 10,
		NewVisitors:    4,
		Interactions:   80,
		AvgSessionMs:   1800,
		RetentionRate:  40.0,
		AvgPageDepth:   2.5,
		TopTargets:     []model.TargetCount{{Target: "signup-button", Count: 12}},
		TopCountries:   []model.CountryCount{{Country: "Japan", Count: 6}},
		PeakHour:       model.PeakHour{Hour: 14, Visitors: 5},
		CreatedAt:      now,
	}
}
