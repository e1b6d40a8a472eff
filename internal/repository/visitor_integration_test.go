//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pagepulse/pagepulse/internal/model"
	"github.com/pagepulse/pagepulse/internal/testutil"
)

// ============================================================================
// Visitor Repository Integration Tests
// ============================================================================

func TestIntegrationVisitorRepository_UpsertCreatesOnFirstSight(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	v := testutil.NewTestVisitor(t, "203.0.113.10")
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{v}); err != nil {
		t.Fatalf("UpsertVisitors failed: %v", err)
	}

	stored, err := repo.GetVisitor(ctx, v.IP)
	if err != nil {
		t.Fatalf("GetVisitor failed: %v", err)
	}
	if stored == nil {
		t.Fatal("visitor should exist after upsert")
	}
	if stored.Country != "Japan" || stored.City != "Shibuya" {
		t.Errorf("geo profile mismatch: %+v", stored)
	}
	if !stored.FirstSeenAt.Equal(v.FirstSeenAt) {
		t.Errorf("FirstSeenAt mismatch: got %v, want %v", stored.FirstSeenAt, v.FirstSeenAt)
	}
}

func TestIntegrationVisitorRepository_UpsertKeepsProfileAndFirstSeen(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	first := testutil.NewTestVisitor(t, "203.0.113.11")
	first.FirstSeenAt = time.Now().UTC().Add(-48 * time.Hour)
	first.LastSeenAt = first.FirstSeenAt
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{first}); err != nil {
		t.Fatalf("UpsertVisitors (first) failed: %v", err)
	}

	// Second sighting: different profile and later activity.
	second := testutil.NewTestVisitor(t, "203.0.113.11")
	second.Country = "Germany"
	second.City = "Berlin"
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{second}); err != nil {
		t.Fatalf("UpsertVisitors (second) failed: %v", err)
	}

	stored, err := repo.GetVisitor(ctx, "203.0.113.11")
	if err != nil {
		t.Fatalf("GetVisitor failed: %v", err)
	}
	if stored.Country != "Japan" {
		t.Errorf("geo profile must be written once, got %q", stored.Country)
	}
	if !stored.FirstSeenAt.Equal(first.FirstSeenAt) {
		t.Errorf("FirstSeenAt must not move, got %v", stored.FirstSeenAt)
	}
	if !stored.LastSeenAt.Equal(second.LastSeenAt) {
		t.Errorf("LastSeenAt should advance, got %v, want %v", stored.LastSeenAt, second.LastSeenAt)
	}
}

func TestIntegrationVisitorRepository_LastSeenNeverMovesBackwards(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	now := time.Now().UTC().Truncate(time.Millisecond)

	current := testutil.NewTestVisitor(t, "203.0.113.12")
	current.LastSeenAt = now
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{current}); err != nil {
		t.Fatalf("UpsertVisitors failed: %v", err)
	}

	// Backfilled sighting older than the stored last-seen.
	stale := testutil.NewTestVisitor(t, "203.0.113.12")
	stale.LastSeenAt = now.Add(-time.Hour)
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{stale}); err != nil {
		t.Fatalf("UpsertVisitors (stale) failed: %v", err)
	}

	stored, err := repo.GetVisitor(ctx, "203.0.113.12")
	if err != nil {
		t.Fatalf("GetVisitor failed: %v", err)
	}
	if !stored.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt moved backwards: got %v, want %v", stored.LastSeenAt, now)
	}
}

func TestIntegrationVisitorRepository_BulkInsertIsIdempotent(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	v := testutil.NewTestVisitor(t, "203.0.113.13")
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{v}); err != nil {
		t.Fatalf("UpsertVisitors failed: %v", err)
	}

	event := testutil.NewTestEvent(t, v.IP)
	if err := repo.BulkInsertEvents(ctx, []*model.Event{event}); err != nil {
		t.Fatalf("BulkInsertEvents failed: %v", err)
	}

	// Redelivery: same event_id, fresh row ID.
	redelivered := *event
	redelivered.ID = ulid.Make().String()
	if err := repo.BulkInsertEvents(ctx, []*model.Event{&redelivered}); err != nil {
		t.Fatalf("BulkInsertEvents (redelivery) failed: %v", err)
	}

	count, err := repo.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 1 {
		t.Errorf("redelivered event must not duplicate, got %d rows", count)
	}
}

func TestIntegrationVisitorRepository_WindowedAggregates(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	window := Window{Start: now.Add(-time.Hour), End: now}

	seedVisitorWithEvents(t, ctx, repo, "203.0.113.20", []*model.Event{
		eventAt(t, "203.0.113.20", "view", "", "/home", 1000, now.Add(-30*time.Minute)),
		eventAt(t, "203.0.113.20", "click", "signup-button", "/pricing", 2000, now.Add(-20*time.Minute)),
	})
	seedVisitorWithEvents(t, ctx, repo, "203.0.113.21", []*model.Event{
		eventAt(t, "203.0.113.21", "view", "", "/home", 3000, now.Add(-10*time.Minute)),
	})
	// Outside the window.
	seedVisitorWithEvents(t, ctx, repo, "203.0.113.22", []*model.Event{
		eventAt(t, "203.0.113.22", "view", "", "/home", 500, now.Add(-2*time.Hour)),
	})

	pageViews, err := repo.CountEventsIn(ctx, window)
	if err != nil {
		t.Fatalf("CountEventsIn failed: %v", err)
	}
	if pageViews != 3 {
		t.Errorf("expected 3 events in window, got %d", pageViews)
	}

	unique, err := repo.CountUniqueVisitors(ctx, window)
	if err != nil {
		t.Fatalf("CountUniqueVisitors failed: %v", err)
	}
	if unique != 2 {
		t.Errorf("expected 2 unique visitors in window, got %d", unique)
	}

	sums, err := repo.SessionDurations(ctx, window)
	if err != nil {
		t.Fatalf("SessionDurations failed: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 session sums, got %d", len(sums))
	}
	total := sums[0] + sums[1]
	if total != 6000 {
		t.Errorf("expected session sums totalling 6000, got %d", total)
	}

	targets, err := repo.TopTargets(ctx, window, 5)
	if err != nil {
		t.Fatalf("TopTargets failed: %v", err)
	}
	if len(targets) != 1 || targets[0].Target != "signup-button" {
		t.Errorf("unexpected top targets: %+v", targets)
	}
}

func TestIntegrationVisitorRepository_AllTimeRates(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	now := time.Now().UTC().Truncate(time.Millisecond)

	// Visitor with two events on the same pages (retained, depth 2).
	seedVisitorWithEvents(t, ctx, repo, "203.0.113.30", []*model.Event{
		eventAt(t, "203.0.113.30", "view", "", "/a", 0, now.Add(-time.Minute)),
		eventAt(t, "203.0.113.30", "view", "", "/b", 0, now),
	})
	// One-shot visitor (not retained, depth 1).
	seedVisitorWithEvents(t, ctx, repo, "203.0.113.31", []*model.Event{
		eventAt(t, "203.0.113.31", "view", "", "/a", 0, now),
	})

	retained, err := repo.CountRetained(ctx)
	if err != nil {
		t.Fatalf("CountRetained failed: %v", err)
	}
	if retained != 1 {
		t.Errorf("expected 1 retained visitor, got %d", retained)
	}

	depth, err := repo.AvgPageDepth(ctx)
	if err != nil {
		t.Fatalf("AvgPageDepth failed: %v", err)
	}
	if depth != 1.5 {
		t.Errorf("expected avg page depth 1.5, got %v", depth)
	}
}

func TestIntegrationVisitorRepository_ResetAll(t *testing.T) {
	ctx, repo := newVisitorTestEnv(t)

	seedVisitorWithEvents(t, ctx, repo, "203.0.113.40", []*model.Event{
		testutil.NewTestEvent(t, "203.0.113.40"),
	})

	if err := repo.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll failed: %v", err)
	}

	visitors, err := repo.CountVisitors(ctx)
	if err != nil {
		t.Fatalf("CountVisitors failed: %v", err)
	}
	events, err := repo.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if visitors != 0 || events != 0 {
		t.Errorf("expected empty tables after reset, got %d visitors / %d events", visitors, events)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func eventAt(t *testing.T, ip, eventType, target, page string, stayMs int64, at time.Time) *model.Event {
	t.Helper()
	e := testutil.NewTestEvent(t, ip)
	e.EventID = ulid.Make().String() // unique per call
	e.Type = eventType
	e.Target = target
	e.Page = page
	e.StayTimeMs = stayMs
	e.CreatedAt = at
	return e
}

func seedVisitorWithEvents(t *testing.T, ctx context.Context, repo *VisitorRepository, ip string, events []*model.Event) {
	t.Helper()

	v := testutil.NewTestVisitor(t, ip)
	if len(events) > 0 {
		v.FirstSeenAt = events[0].CreatedAt
		v.LastSeenAt = events[len(events)-1].CreatedAt
	}
	if err := repo.UpsertVisitors(ctx, []*model.Visitor{v}); err != nil {
		t.Fatalf("seed visitor %s: %v", ip, err)
	}
	if err := repo.BulkInsertEvents(ctx, events); err != nil {
		t.Fatalf("seed events for %s: %v", ip, err)
	}
}

func newVisitorTestEnv(t *testing.T) (context.Context, *VisitorRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetVisitorsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset visitors schema: %v", err)
	}

	return ctx, NewVisitorRepository(repo)
}
