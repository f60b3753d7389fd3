package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"feedmill/internal/jobs"
	"feedmill/internal/store"
)

// Store persists the run ledger.
type Store struct {
	db *store.DB
}

// NewStore wires a run ledger store to the shared database handle.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new pending run. The total fetched count is fixed at
// creation and never changes afterwards.
func (s *Store) Create(ctx context.Context, feedURL string, totalFetched int) (*Run, error) {
	if feedURL == "" {
		return nil, errors.New("feed url is required")
	}
	if totalFetched < 0 {
		return nil, errors.New("total fetched must not be negative")
	}

	id := uuid.NewString()
	now := store.FormatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, feed_url, status, total_fetched, started_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		feedURL,
		StatusPending,
		totalFetched,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetByID(ctx, id)
}

// MarkProcessing transitions a pending run to processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		store.FormatTime(time.Now()),
		id,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark run processing: %w", err)
	}
	return nil
}

// ApplyMergeResultTx applies a unit's merge outcome as atomic increments plus
// failure appends inside the caller's transaction. The caller commits the
// increments together with the work unit's terminal transition so a
// redelivered unit can never double-apply them.
func (s *Store) ApplyMergeResultTx(ctx context.Context, tx *sql.Tx, runID string, result jobs.MergeResult) error {
	merged := result.New + result.Updated
	_, err := tx.ExecContext(
		ctx,
		`UPDATE runs
         SET total_merged = total_merged + ?,
             new_jobs = new_jobs + ?,
             updated_jobs = updated_jobs + ?,
             updated_at = ?
         WHERE id = ?`,
		merged,
		result.New,
		result.Updated,
		store.FormatTime(time.Now()),
		runID,
	)
	if err != nil {
		return fmt.Errorf("apply merge counters: %w", err)
	}
	return s.appendFailuresTx(ctx, tx, runID, result.Failures)
}

// AppendFailuresTx appends failure entries for a run inside the caller's
// transaction, preserving insertion order.
func (s *Store) AppendFailuresTx(ctx context.Context, tx *sql.Tx, runID string, failures []jobs.Failure) error {
	return s.appendFailuresTx(ctx, tx, runID, failures)
}

func (s *Store) appendFailuresTx(ctx context.Context, tx *sql.Tx, runID string, failures []jobs.Failure) error {
	for _, failure := range failures {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO run_failures (run_id, external_id, reason) VALUES (?, ?, ?)`,
			runID,
			failure.ID,
			failure.Reason,
		); err != nil {
			return fmt.Errorf("append run failure: %w", err)
		}
	}
	return nil
}

// ForceFailedTx marks a run failed inside the caller's transaction. Used by
// the hard-stop path when a merge call fails wholesale; unlike the evaluator's
// terminal write it applies regardless of the current status, but it never
// regresses a run that already completed.
func (s *Store) ForceFailedTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		StatusFailed,
		store.FormatTime(time.Now()),
		id,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("force run failed: %w", err)
	}
	return nil
}

// FinishIfProcessing performs the guarded terminal transition: the write only
// applies while the run is still processing, so concurrent evaluators cannot
// double-transition or clobber a hard-stop failure.
func (s *Store) FinishIfProcessing(ctx context.Context, id string, terminal Status) (bool, error) {
	if !terminal.IsTerminal() {
		return false, fmt.Errorf("status %q is not terminal", terminal)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		terminal,
		store.FormatTime(time.Now()),
		id,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted transitions a run straight to completed. Used for zero-record
// runs that never enter processing.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted,
		store.FormatTime(time.Now()),
		id,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return nil
}

// GetByID fetches a run with its failure entries, or nil when unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT external_id, reason FROM run_failures WHERE run_id = ? ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load run failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var failure jobs.Failure
		if err := rows.Scan(&failure.ID, &failure.Reason); err != nil {
			return nil, err
		}
		run.Failures = append(run.Failures, failure)
	}
	return run, rows.Err()
}

// GetSnapshot returns the counters the completion evaluator needs, or nil
// when the run is unknown.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, total_fetched, total_merged,
            (SELECT COUNT(1) FROM run_failures WHERE run_id = runs.id)
         FROM runs WHERE id = ?`,
		id,
	)
	var (
		snap      Snapshot
		statusStr string
	)
	err := row.Scan(&snap.ID, &statusStr, &snap.TotalFetched, &snap.TotalMerged, &snap.FailureCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run snapshot: %w", err)
	}
	snap.Status = Status(statusStr)
	return &snap, nil
}

// List returns run summaries sorted by start time, newest first, with the
// total count for pagination. feedURL filters by substring when non-empty.
func (s *Store) List(ctx context.Context, page, limit int, feedURL string) ([]*Run, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	where := ""
	args := []any{}
	if feedURL != "" {
		where = ` WHERE feed_url LIKE ?`
		args = append(args, "%"+feedURL+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs`+where+` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, run)
	}
	return result, total, rows.Err()
}

// Stats returns a count of runs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const runColumns = "id, feed_url, status, total_fetched, total_merged, new_jobs, updated_jobs, started_at, updated_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run        Run
		statusStr  string
		startedRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&run.ID,
		&run.FeedURL,
		&statusStr,
		&run.TotalFetched,
		&run.TotalMerged,
		&run.NewJobs,
		&run.UpdatedJobs,
		&startedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = Status(statusStr)
	if started, err := store.ParseTime(startedRaw); err == nil {
		run.StartedAt = started
	}
	if updated, err := store.ParseTime(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	return &run, nil
}
