package jobs_test

import (
	"context"
	"testing"
	"time"

	"feedmill/internal/jobs"
	"feedmill/internal/testsupport"
)

func newStore(t *testing.T) *jobs.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	return jobs.NewStore(db)
}

func record(externalID, title string) jobs.Record {
	return jobs.Record{
		FeedURL:    "https://jobs.example.com/feed",
		ExternalID: externalID,
		Title:      title,
	}
}

func TestBulkUpsertClassifiesNewAndUpdated(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	result, err := store.BulkUpsert(ctx, []jobs.Record{record("a", "First"), record("b", "Second")})
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if result.New != 2 || result.Updated != 0 || len(result.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	result, err = store.BulkUpsert(ctx, []jobs.Record{record("a", "First Revised"), record("c", "Third")})
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if result.New != 1 || result.Updated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored, err := store.GetByIdentity(ctx, "https://jobs.example.com/feed", "a")
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}
	if stored == nil || stored.Title != "First Revised" {
		t.Fatalf("stored record = %+v", stored)
	}
}

func TestBulkUpsertIdempotentTimestamps(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.BulkUpsert(ctx, []jobs.Record{record("a", "First")}); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	first, err := store.GetByIdentity(ctx, "https://jobs.example.com/feed", "a")
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := store.BulkUpsert(ctx, []jobs.Record{record("a", "First Again")}); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	second, err := store.GetByIdentity(ctx, "https://jobs.example.com/feed", "a")
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created timestamp changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated timestamp did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestBulkUpsertCollectsFailuresAndContinues(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	result, err := store.BulkUpsert(ctx, []jobs.Record{
		record("a", ""),
		record("", "Missing ID"),
		record("b", "Valid"),
	})
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if result.New != 1 {
		t.Errorf("new = %d, want 1", result.New)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(result.Failures))
	}
	for _, failure := range result.Failures {
		if failure.Reason == "" {
			t.Errorf("failure %q missing reason", failure.ID)
		}
	}
}

func TestListSortsByRecency(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.BulkUpsert(ctx, []jobs.Record{record("a", "Old")}); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := store.BulkUpsert(ctx, []jobs.Record{record("b", "New")}); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}

	records, total, err := store.List(ctx, 1, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("total=%d len=%d", total, len(records))
	}
	if records[0].ExternalID != "b" {
		t.Errorf("first record = %q, want most recent", records[0].ExternalID)
	}
}
