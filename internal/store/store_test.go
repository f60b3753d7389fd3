package store_test

import (
	"context"
	"testing"
	"time"

	"feedmill/internal/store"
	"feedmill/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	health, err := db.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("health = %+v", health)
	}
	if !health.IntegrityCheck {
		t.Fatal("integrity check failed")
	}

	want := map[string]bool{
		"jobs":         false,
		"runs":         false,
		"run_failures": false,
		"work_units":   false,
		"raw_feeds":    false,
	}
	for _, table := range health.TablesPresent {
		if _, ok := want[table]; ok {
			want[table] = true
		}
	}
	for table, found := range want {
		if !found {
			t.Errorf("table %q missing from schema", table)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening the same database must not re-run migrations destructively.
	db, err = store.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	parsed, err := store.ParseTime(store.FormatTime(now))
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("round trip: got %v want %v", parsed, now)
	}

	if _, err := store.ParseTime(""); err == nil {
		t.Fatal("empty value should not parse")
	}
}
