package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedmill/internal/store"
)

// Store persists job postings and performs the idempotent bulk merge.
type Store struct {
	db *store.DB
}

// NewStore wires a job store to the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// BulkUpsert merges records by identity key. Each record is upserted
// independently: a failure is collected and the remainder of the batch
// continues, mirroring unordered bulk-write semantics. On insert both
// timestamps are set to now; on update the created timestamp is preserved and
// only the last-modified timestamp advances. Concurrent upserts of the same
// identity are serialized by the store's unique constraint; the most recent
// write wins.
func (s *Store) BulkUpsert(ctx context.Context, records []Record) (MergeResult, error) {
	result := MergeResult{}
	if len(records) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := store.FormatTime(time.Now())
	for _, record := range records {
		if reason := record.Validate(); reason != "" {
			result.Failures = append(result.Failures, Failure{ID: record.Identity(), Reason: reason})
			continue
		}

		var existing int
		row := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM jobs WHERE feed_url = ? AND external_id = ?`,
			record.FeedURL,
			record.ExternalID,
		)
		if err := row.Scan(&existing); err != nil {
			result.Failures = append(result.Failures, Failure{ID: record.Identity(), Reason: err.Error()})
			continue
		}

		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO jobs (
                feed_url, external_id, title, description, company, location,
                category, job_type, url, raw_data, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (feed_url, external_id) DO UPDATE SET
                title = excluded.title,
                description = excluded.description,
                company = excluded.company,
                location = excluded.location,
                category = excluded.category,
                job_type = excluded.job_type,
                url = excluded.url,
                raw_data = excluded.raw_data,
                updated_at = excluded.updated_at`,
			record.FeedURL,
			record.ExternalID,
			record.Title,
			record.Description,
			record.Company,
			record.Location,
			record.Category,
			record.JobType,
			record.URL,
			record.RawData,
			now,
			now,
		)
		if err != nil {
			result.Failures = append(result.Failures, Failure{ID: record.Identity(), Reason: err.Error()})
			continue
		}

		if existing > 0 {
			result.Updated++
		} else {
			result.New++
		}
	}

	if err := tx.Commit(); err != nil {
		return MergeResult{}, fmt.Errorf("commit merge tx: %w", err)
	}
	return result, nil
}

// GetByIdentity fetches a stored record by its identity key.
func (s *Store) GetByIdentity(ctx context.Context, feedURL, externalID string) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM jobs WHERE feed_url = ? AND external_id = ?`,
		feedURL,
		externalID,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return record, nil
}

// List returns records sorted by most recent merge, newest first.
func (s *Store) List(ctx context.Context, page, limit int, feedURL string) ([]*Record, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	where := ""
	args := []any{}
	if feedURL != "" {
		where = ` WHERE feed_url = ?`
		args = append(args, feedURL)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM jobs`+where+` ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	return records, total, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

const recordColumns = "feed_url, external_id, title, description, company, location, category, job_type, url, raw_data, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		record     Record
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&record.FeedURL,
		&record.ExternalID,
		&record.Title,
		&record.Description,
		&record.Company,
		&record.Location,
		&record.Category,
		&record.JobType,
		&record.URL,
		&record.RawData,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if created, err := store.ParseTime(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return &record, nil
}
