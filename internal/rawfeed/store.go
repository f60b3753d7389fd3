package rawfeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedmill/internal/store"
)

// Capture is one archived feed document.
type Capture struct {
	ID        int64
	FeedURL   string
	Payload   []byte
	FetchedAt time.Time
}

// Store archives raw feed documents for debugging and replay. Captures are
// append-only; nothing in the ingestion path reads them back.
type Store struct {
	db *store.DB
}

// NewStore wires a raw feed archive to the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Save archives one fetched document.
func (s *Store) Save(ctx context.Context, feedURL string, payload []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO raw_feeds (feed_url, payload, fetched_at) VALUES (?, ?, ?)`,
		feedURL,
		payload,
		store.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save raw feed: %w", err)
	}
	return nil
}

// Latest returns the most recent capture for a feed, or nil when none exists.
func (s *Store) Latest(ctx context.Context, feedURL string) (*Capture, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, feed_url, payload, fetched_at FROM raw_feeds
         WHERE feed_url = ? ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		feedURL,
	)
	var (
		capture    Capture
		fetchedRaw string
	)
	if err := row.Scan(&capture.ID, &capture.FeedURL, &capture.Payload, &fetchedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest raw feed: %w", err)
	}
	if fetched, err := store.ParseTime(fetchedRaw); err == nil {
		capture.FetchedAt = fetched
	}
	return &capture, nil
}

// PurgeOlderThan deletes captures past the retention window and reports how
// many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM raw_feeds WHERE fetched_at < ?`,
		store.FormatTime(time.Now().Add(-retention)),
	)
	if err != nil {
		return 0, fmt.Errorf("purge raw feeds: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(removed), nil
}

// Count returns the number of archived captures.
func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM raw_feeds`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count raw feeds: %w", err)
	}
	return total, nil
}
