package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"feedmill/internal/jobs"
	"feedmill/internal/store"
)

// Store is the durable at-least-once work queue backed by the shared
// database. Delivery guarantees come from the claim protocol: a claim is an
// atomic conditional update, so no two workers ever hold the same unit, and a
// unit only leaves the queue through an explicit terminal transition.
type Store struct {
	db          *store.DB
	maxAttempts int
	backoffBase time.Duration
}

// NewStore wires a queue store to the shared database handle. maxAttempts
// bounds deliveries per unit and backoffBase seeds the exponential retry
// delay.
func NewStore(db *store.DB, maxAttempts int, backoffBase time.Duration) *Store {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Store{db: db, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

// MaxAttempts returns the delivery cap per unit.
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

// Enqueue inserts a work unit for one partition of a run. The deterministic
// unit ID makes this idempotent: re-enqueueing the same partition is a no-op
// and reports false.
func (s *Store) Enqueue(ctx context.Context, runID, feedURL string, partitionIndex int, records []jobs.Record) (bool, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return false, fmt.Errorf("encode unit payload: %w", err)
	}

	now := store.FormatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO work_units (
            id, run_id, feed_url, partition_index, payload, status,
            attempts, next_attempt_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		UnitID(runID, partitionIndex),
		runID,
		feedURL,
		partitionIndex,
		string(payload),
		StatusPending,
		now,
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue unit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Claim atomically takes the oldest due unit, marks it in flight, and
// increments its attempt counter. Returns nil when nothing is due. The claim
// token written into claimed_by is how the winning worker finds its unit;
// losing workers simply match zero rows.
func (s *Store) Claim(ctx context.Context) (*Unit, error) {
	token := uuid.NewString()
	now := time.Now()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_units
         SET status = ?, attempts = attempts + 1, claimed_by = ?,
             last_heartbeat = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM work_units
             WHERE status IN (?, ?) AND next_attempt_at <= ?
             ORDER BY created_at, id
             LIMIT 1
         )`,
		StatusInFlight,
		token,
		store.FormatTime(now),
		store.FormatTime(now),
		StatusPending,
		StatusRetrying,
		store.FormatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("claim unit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM work_units WHERE claimed_by = ?`, token)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load claimed unit: %w", err)
	}
	return unit, nil
}

// MarkSucceededTx transitions a claimed unit to succeeded inside the caller's
// transaction. The guard on in_flight means a unit that was reclaimed while
// the worker ran matches zero rows, and the caller's whole transaction
// (including ledger increments) is applied only when the worker still owned
// the unit.
func (s *Store) MarkSucceededTx(ctx context.Context, tx *sql.Tx, unitID, claimToken string) (bool, error) {
	res, err := tx.ExecContext(
		ctx,
		`UPDATE work_units
         SET status = ?, claimed_by = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		StatusSucceeded,
		store.FormatTime(time.Now()),
		unitID,
		StatusInFlight,
		claimToken,
	)
	if err != nil {
		return false, fmt.Errorf("mark unit succeeded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailedTx records a delivery failure inside the caller's transaction.
// Units under the attempt cap move to retrying with an exponentially delayed
// next_attempt_at; units at the cap go terminal. Returns whether the unit is
// now terminal and whether the transition applied at all.
func (s *Store) MarkFailedTx(ctx context.Context, tx *sql.Tx, unitID, claimToken, errorMessage string) (terminal bool, applied bool, err error) {
	var attempts int
	row := tx.QueryRowContext(
		ctx,
		`SELECT attempts FROM work_units WHERE id = ? AND status = ? AND claimed_by = ?`,
		unitID,
		StatusInFlight,
		claimToken,
	)
	if scanErr := row.Scan(&attempts); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("load unit attempts: %w", scanErr)
	}

	now := time.Now()
	if attempts >= s.maxAttempts {
		_, err = tx.ExecContext(
			ctx,
			`UPDATE work_units
             SET status = ?, claimed_by = NULL, error_message = ?, updated_at = ?
             WHERE id = ?`,
			StatusFailed,
			errorMessage,
			store.FormatTime(now),
			unitID,
		)
		if err != nil {
			return false, false, fmt.Errorf("mark unit failed: %w", err)
		}
		return true, true, nil
	}

	_, err = tx.ExecContext(
		ctx,
		`UPDATE work_units
         SET status = ?, claimed_by = NULL, error_message = ?,
             next_attempt_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusRetrying,
		errorMessage,
		store.FormatTime(now.Add(s.BackoffFor(attempts))),
		store.FormatTime(now),
		unitID,
	)
	if err != nil {
		return false, false, fmt.Errorf("mark unit retrying: %w", err)
	}
	return false, true, nil
}

// BackoffFor returns the delay before the next delivery after the given
// attempt number: base * 2^(attempt-1).
func (s *Store) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.backoffBase << (attempt - 1)
}

// UpdateHeartbeat refreshes the liveness marker on an in-flight unit.
func (s *Store) UpdateHeartbeat(ctx context.Context, unitID, claimToken string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE work_units SET last_heartbeat = ? WHERE id = ? AND status = ? AND claimed_by = ?`,
		store.FormatTime(time.Now()),
		unitID,
		StatusInFlight,
		claimToken,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns in-flight units whose heartbeat expired back into
// delivery. Units already at the attempt cap go terminal instead of looping
// forever. Returns the IDs of units that went terminal so callers can settle
// their runs.
func (s *Store) ReclaimStale(ctx context.Context, timeout time.Duration) (requeued int, failedUnits []Unit, err error) {
	cutoff := store.FormatTime(time.Now().Add(-timeout))

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+unitColumns+` FROM work_units
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ? AND attempts >= ?`,
		StatusInFlight,
		cutoff,
		s.maxAttempts,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("find stale units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return 0, nil, err
		}
		failedUnits = append(failedUnits, *unit)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	now := store.FormatTime(time.Now())
	for i := range failedUnits {
		if _, err := s.db.ExecContext(
			ctx,
			`UPDATE work_units
             SET status = ?, claimed_by = NULL, error_message = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusFailed,
			"worker stalled past heartbeat timeout",
			now,
			failedUnits[i].ID,
			StatusInFlight,
		); err != nil {
			return 0, nil, fmt.Errorf("fail stale unit: %w", err)
		}
		failedUnits[i].Status = StatusFailed
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_units
         SET status = ?, claimed_by = NULL, next_attempt_at = ?, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		now,
		now,
		StatusInFlight,
		cutoff,
	)
	if err != nil {
		return 0, failedUnits, fmt.Errorf("requeue stale units: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, failedUnits, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), failedUnits, nil
}

// OutstandingForRun counts a run's units that have not yet gone terminal.
func (s *Store) OutstandingForRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM work_units WHERE run_id = ? AND status NOT IN (?, ?)`,
		runID,
		StatusSucceeded,
		StatusFailed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count outstanding units: %w", err)
	}
	return count, nil
}

// Sweep deletes terminal units past their retention windows. Succeeded units
// are kept briefly for inspection; failed units are kept longer so operators
// can diagnose them.
func (s *Store) Sweep(ctx context.Context, succeededRetention, failedRetention time.Duration) (int, error) {
	var removed int64

	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM work_units WHERE status = ? AND updated_at < ?`,
		StatusSucceeded,
		store.FormatTime(time.Now().Add(-succeededRetention)),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep succeeded units: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.ExecContext(
		ctx,
		`DELETE FROM work_units WHERE status = ? AND updated_at < ?`,
		StatusFailed,
		store.FormatTime(time.Now().Add(-failedRetention)),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep failed units: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return int(removed), nil
}

// Stats returns a count of units grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM work_units GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
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

// GetByID fetches a unit, or nil when unknown.
func (s *Store) GetByID(ctx context.Context, unitID string) (*Unit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM work_units WHERE id = ?`, unitID)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return unit, nil
}

const unitColumns = "id, run_id, feed_url, partition_index, payload, status, attempts, claimed_by, error_message, next_attempt_at, last_heartbeat, created_at, updated_at"

func scanUnit(scanner interface{ Scan(dest ...any) error }) (*Unit, error) {
	var (
		unit       Unit
		payload    string
		statusStr  string
		claimedBy  sql.NullString
		errMessage sql.NullString
		nextRaw    string
		beatRaw    sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&unit.ID,
		&unit.RunID,
		&unit.FeedURL,
		&unit.PartitionIndex,
		&payload,
		&statusStr,
		&unit.Attempts,
		&claimedBy,
		&errMessage,
		&nextRaw,
		&beatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	unit.Status = Status(statusStr)
	unit.ClaimedBy = claimedBy.String
	unit.ErrorMessage = errMessage.String
	if err := json.Unmarshal([]byte(payload), &unit.Records); err != nil {
		return nil, fmt.Errorf("decode unit payload: %w", err)
	}
	if next, err := store.ParseTime(nextRaw); err == nil {
		unit.NextAttemptAt = next
	}
	if beatRaw.Valid {
		if beat, err := store.ParseTime(beatRaw.String); err == nil {
			unit.LastHeartbeat = beat
		}
	}
	if created, err := store.ParseTime(createdRaw); err == nil {
		unit.CreatedAt = created
	}
	if updated, err := store.ParseTime(updatedRaw); err == nil {
		unit.UpdatedAt = updated
	}
	return &unit, nil
}
