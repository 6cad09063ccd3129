package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/churnopp/internal/sqliteutil"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "churnopp-store-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := sqliteutil.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open test database: %v", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init schema: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func TestCreateAndGetAccount(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.CreateAccount(ctx, "owner@example.com", PlanPremium)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if created.AccountID == "" || created.AccessKey == "" {
		t.Fatalf("Expected generated account id and access key, got %+v", created)
	}

	got, err := store.GetAccount(ctx, created.AccountID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.Plan != PlanPremium || got.Email != "owner@example.com" {
		t.Errorf("Unexpected account: %+v", got)
	}

	byKey, err := store.GetAccountByKey(ctx, created.AccessKey)
	if err != nil {
		t.Fatalf("GetAccountByKey failed: %v", err)
	}
	if byKey.AccountID != created.AccountID {
		t.Errorf("Expected same account by key, got %s", byKey.AccountID)
	}
}

func TestGetAccountUnknown(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.GetAccount(context.Background(), "client_missing"); err == nil {
		t.Fatal("Expected error for unknown account")
	}
}

func TestInsertEventAssignsTimestamp(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	err := store.InsertEvent(ctx, Event{
		AccountID: "client_a",
		UserID:    "user-1",
		Type:      EventInteraction,
		Payload:   map[string]any{"tag": "BUTTON"},
	})
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}

	events, err := store.EventsForUser(ctx, "client_a", "user-1")
	if err != nil {
		t.Fatalf("EventsForUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Expected a server-assigned timestamp")
	}
	if events[0].Payload["tag"] != "BUTTON" {
		t.Errorf("Payload not round-tripped: %v", events[0].Payload)
	}
}

func TestEventsForUserOrderedOldestFirst(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := store.InsertEvent(ctx, Event{
			AccountID: "client_a",
			UserID:    "user-1",
			Type:      EventScrollDepth,
			Payload:   map[string]any{"depth": 10 * (i + 1)},
			Timestamp: base.Add(time.Duration(2-i) * time.Hour), // inserted newest first
		})
		if err != nil {
			t.Fatalf("InsertEvent failed: %v", err)
		}
	}

	events, err := store.EventsForUser(ctx, "client_a", "user-1")
	if err != nil {
		t.Fatalf("EventsForUser failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Errorf("Events not ordered oldest first: %v then %v", events[i-1].Timestamp, events[i].Timestamp)
		}
	}
}

func TestListUserIDsDistinct(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2", "user-1", "user-3"} {
		if err := store.InsertEvent(ctx, Event{AccountID: "client_a", UserID: userID, Type: EventInteraction, Payload: map[string]any{}}); err != nil {
			t.Fatalf("InsertEvent failed: %v", err)
		}
	}
	if err := store.InsertEvent(ctx, Event{AccountID: "client_b", UserID: "user-9", Type: EventInteraction, Payload: map[string]any{}}); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}

	ids, err := store.ListUserIDs(ctx, "client_a")
	if err != nil {
		t.Fatalf("ListUserIDs failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Expected 3 distinct users for client_a, got %d: %v", len(ids), ids)
	}
}

func TestUpsertIdentityLastWriteWins(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.UpsertIdentity(ctx, "client_a", "user-1", "old@example.com"); err != nil {
		t.Fatalf("UpsertIdentity failed: %v", err)
	}
	if err := store.UpsertIdentity(ctx, "client_a", "user-1", "new@example.com"); err != nil {
		t.Fatalf("UpsertIdentity failed: %v", err)
	}

	email, ok, err := store.IdentityEmail(ctx, "client_a", "user-1")
	if err != nil {
		t.Fatalf("IdentityEmail failed: %v", err)
	}
	if !ok || email != "new@example.com" {
		t.Errorf("Expected latest email, got %q (ok=%v)", email, ok)
	}

	_, ok, err = store.IdentityEmail(ctx, "client_a", "user-unknown")
	if err != nil {
		t.Fatalf("IdentityEmail failed: %v", err)
	}
	if ok {
		t.Error("Expected no identity for unknown user")
	}
}

func TestStatsAggregates(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seed := []Event{
		{AccountID: "client_a", UserID: "user-1", Type: EventSessionDuration, Payload: map[string]any{"duration": 10000}},
		{AccountID: "client_a", UserID: "user-1", Type: EventSessionDuration, Payload: map[string]any{"duration": 20000}},
		{AccountID: "client_a", UserID: "user-1", Type: EventScrollDepth, Payload: map[string]any{"depth": 30}},
		{AccountID: "client_a", UserID: "user-2", Type: EventScrollDepth, Payload: map[string]any{"depth": 70}},
		{AccountID: "client_a", UserID: "user-2", Type: EventInteraction, Payload: map[string]any{"tag": "A"}},
	}
	for _, event := range seed {
		if err := store.InsertEvent(ctx, event); err != nil {
			t.Fatalf("InsertEvent failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx, "client_a", EventFilter{})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEvents != 5 {
		t.Errorf("Expected 5 total events, got %d", stats.TotalEvents)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("Expected 2 sessions, got %d", stats.TotalSessions)
	}
	if stats.AvgSessionDuration != 15000 {
		t.Errorf("Expected avg duration 15000, got %d", stats.AvgSessionDuration)
	}
	if stats.AvgScrollDepth != 50 {
		t.Errorf("Expected avg depth 50, got %d", stats.AvgScrollDepth)
	}
	if stats.EventCounts["scrollDepth"] != 2 || stats.EventCounts["interaction"] != 1 {
		t.Errorf("Unexpected event counts: %v", stats.EventCounts)
	}
	if len(stats.TopUsers) != 2 {
		t.Fatalf("Expected 2 top users, got %d", len(stats.TopUsers))
	}
	if stats.TopUsers[0].UserID != "user-1" || stats.TopUsers[0].EventCount != 3 {
		t.Errorf("Unexpected top user: %+v", stats.TopUsers[0])
	}
}

func TestRecentEventsFilterAndLimit(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		eventType := EventInteraction
		if i%2 == 0 {
			eventType = EventScrollDepth
		}
		err := store.InsertEvent(ctx, Event{
			AccountID: "client_a",
			UserID:    "user-1",
			Type:      eventType,
			Payload:   map[string]any{"i": i},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertEvent failed: %v", err)
		}
	}

	events, err := store.RecentEvents(ctx, "client_a", EventFilter{EventType: EventScrollDepth}, 3)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected limit 3, got %d", len(events))
	}
	for _, e := range events {
		if e.Type != EventScrollDepth {
			t.Errorf("Filter leaked type %s", e.Type)
		}
	}
	if !events[0].Timestamp.After(events[2].Timestamp) {
		t.Error("Expected newest first ordering")
	}

	start := base.Add(5 * time.Minute)
	filtered, err := store.RecentEvents(ctx, "client_a", EventFilter{Start: &start}, 100)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(filtered) != 5 {
		t.Errorf("Expected 5 events at or after start, got %d", len(filtered))
	}
}
