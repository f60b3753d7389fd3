package rawfeed_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"feedmill/internal/rawfeed"
	"feedmill/internal/store"
	"feedmill/internal/testsupport"
)

func newArchive(t *testing.T) (*rawfeed.Store, *store.DB) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	return rawfeed.NewStore(db), db
}

func TestSaveAndLatest(t *testing.T) {
	archive, _ := newArchive(t)
	ctx := context.Background()

	if err := archive.Save(ctx, "https://jobs.example.com/feed", []byte("<rss>first</rss>")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := archive.Save(ctx, "https://jobs.example.com/feed", []byte("<rss>second</rss>")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	capture, err := archive.Latest(ctx, "https://jobs.example.com/feed")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if capture == nil {
		t.Fatal("expected a capture")
	}
	if !bytes.Equal(capture.Payload, []byte("<rss>second</rss>")) {
		t.Errorf("payload = %q", capture.Payload)
	}

	missing, err := archive.Latest(ctx, "https://other.example.com/feed")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if missing != nil {
		t.Error("unknown feed should have no capture")
	}
}

func TestPurgeOlderThan(t *testing.T) {
	archive, db := newArchive(t)
	ctx := context.Background()

	if err := archive.Save(ctx, "https://jobs.example.com/feed", []byte("<rss/>")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := archive.PurgeOlderThan(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	_, err = db.ExecContext(ctx, `UPDATE raw_feeds SET fetched_at = ?`,
		store.FormatTime(time.Now().Add(-8*24*time.Hour)))
	if err != nil {
		t.Fatalf("age capture: %v", err)
	}

	removed, err = archive.PurgeOlderThan(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	count, err := archive.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}
