package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedmill/internal/config"
	"feedmill/internal/jobs"
	"feedmill/internal/logging"
	"feedmill/internal/queue"
	"feedmill/internal/runs"
	"feedmill/internal/store"
)

// Merger folds one unit's records into the job store.
type Merger interface {
	BulkUpsert(ctx context.Context, records []jobs.Record) (jobs.MergeResult, error)
}

// Pool is the bounded set of merge workers. Each worker pulls one claimed
// unit at a time, runs the bulk merge, and settles the outcome against the
// ledger and the queue in a single transaction.
type Pool struct {
	cfg       *config.Config
	db        *store.DB
	jobs      Merger
	runs      *runs.Store
	queue     *queue.Store
	evaluator *Evaluator
	logger    *slog.Logger

	workerCount       int
	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool wires a worker pool.
func NewPool(cfg *config.Config, db *store.DB, merger Merger, runStore *runs.Store, queueStore *queue.Store, evaluator *Evaluator, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Ingest.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		cfg:               cfg,
		db:                db,
		jobs:              merger,
		runs:              runStore,
		queue:             queueStore,
		evaluator:         evaluator,
		logger:            logger,
		workerCount:       workers,
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:        time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
	}
}

// Start begins background processing.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("worker pool already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates background processing and waits for every worker to drain
// its in-flight unit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, index int) {
	defer p.wg.Done()
	logger := p.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		unit, err := p.queue.Claim(ctx)
		if err != nil {
			logger.Error("failed to claim work unit",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			p.sleep(ctx, p.errorRetry)
			continue
		}
		if unit == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}

		// Shutdown drains the in-flight unit; only the claim loop observes
		// cancellation.
		p.processUnit(context.WithoutCancel(ctx), logger, unit)
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (p *Pool) processUnit(ctx context.Context, logger *slog.Logger, unit *queue.Unit) {
	logger = logger.With(
		logging.String(logging.FieldRunID, unit.RunID),
		logging.String(logging.FieldUnitID, unit.ID),
	)

	stopHeartbeat := p.startHeartbeat(ctx, logger, unit)
	result, mergeErr := p.jobs.BulkUpsert(ctx, unit.Records)
	stopHeartbeat()

	if mergeErr != nil {
		p.settleHardFailure(ctx, logger, unit, mergeErr)
		return
	}
	p.settleSuccess(ctx, logger, unit, result)
}

// startHeartbeat refreshes the unit's liveness marker until the returned stop
// function is called.
func (p *Pool) startHeartbeat(ctx context.Context, logger *slog.Logger, unit *queue.Unit) func() {
	if p.heartbeatInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(p.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.queue.UpdateHeartbeat(ctx, unit.ID, unit.ClaimedBy); err != nil {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// settleSuccess applies the merge result: the ledger increments and the
// unit's terminal transition commit in one transaction. If the unit was
// reclaimed while the merge ran, the transition matches nothing and the
// increments are discarded, so a redelivered unit can never double-count.
func (p *Pool) settleSuccess(ctx context.Context, logger *slog.Logger, unit *queue.Unit, result jobs.MergeResult) {
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		applied, err := p.queue.MarkSucceededTx(ctx, tx, unit.ID, unit.ClaimedBy)
		if err != nil {
			return err
		}
		if !applied {
			return errUnitLost
		}
		return p.runs.ApplyMergeResultTx(ctx, tx, unit.RunID, result)
	})
	if errors.Is(err, errUnitLost) {
		logger.Warn("work unit reclaimed during merge; discarding result",
			logging.String(logging.FieldEventType, "unit_lost"),
		)
		return
	}
	if err != nil {
		logger.Error("failed to settle work unit",
			logging.Error(err),
			logging.String(logging.FieldEventType, "unit_settle_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}

	logger.Info("work unit merged",
		logging.Int("new", result.New),
		logging.Int("updated", result.Updated),
		logging.Int("failures", len(result.Failures)),
		logging.String(logging.FieldEventType, "unit_merged"),
	)

	if err := p.evaluator.Evaluate(ctx, unit.RunID); err != nil {
		logger.Warn("completion evaluation failed", logging.Error(err))
	}
}

// settleHardFailure handles a wholesale merge error: the run is forced to
// failed immediately, the unit re-enters delivery per the retry policy, and
// once the unit goes terminal every one of its records is recorded as a
// ledger failure with the error reason.
func (p *Pool) settleHardFailure(ctx context.Context, logger *slog.Logger, unit *queue.Unit, mergeErr error) {
	var terminal bool
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var applied bool
		var err error
		terminal, applied, err = p.queue.MarkFailedTx(ctx, tx, unit.ID, unit.ClaimedBy, mergeErr.Error())
		if err != nil {
			return err
		}
		if !applied {
			return errUnitLost
		}
		if err := p.runs.ForceFailedTx(ctx, tx, unit.RunID); err != nil {
			return err
		}
		if terminal {
			failures := make([]jobs.Failure, 0, len(unit.Records))
			for _, record := range unit.Records {
				failures = append(failures, jobs.Failure{ID: record.Identity(), Reason: mergeErr.Error()})
			}
			return p.runs.AppendFailuresTx(ctx, tx, unit.RunID, failures)
		}
		return nil
	})
	if errors.Is(err, errUnitLost) {
		logger.Warn("work unit reclaimed during merge; discarding failure",
			logging.String(logging.FieldEventType, "unit_lost"),
		)
		return
	}
	if err != nil {
		logger.Error("failed to record work unit failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "unit_settle_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}

	logger.Error("work unit merge failed",
		logging.Error(mergeErr),
		logging.Int("attempts", unit.Attempts),
		logging.Bool("terminal", terminal),
		logging.String(logging.FieldEventType, "unit_failed"),
	)
}

var errUnitLost = errors.New("work unit no longer held")

func (p *Pool) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
