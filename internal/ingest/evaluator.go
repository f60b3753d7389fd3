package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"feedmill/internal/logging"
	"feedmill/internal/queue"
	"feedmill/internal/runs"
)

// Evaluator decides whether a run has reached its terminal state. Many
// workers may evaluate the same run concurrently; correctness rests on the
// ledger's guarded terminal write, so redundant invocations are harmless.
type Evaluator struct {
	runs   *runs.Store
	queue  *queue.Store
	logger *slog.Logger
}

// NewEvaluator wires a completion evaluator.
func NewEvaluator(runStore *runs.Store, queueStore *queue.Store, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Evaluator{runs: runStore, queue: queueStore, logger: logger}
}

// Evaluate checks whether the run has drained and, if so, writes its terminal
// status. A run not in processing is left alone. Drained means no
// non-terminal units remain for the run, or every fetched record has been
// accounted for in the ledger. Outcome classification: every fetched record
// failed means failed, anything else means completed.
func (e *Evaluator) Evaluate(ctx context.Context, runID string) error {
	snap, err := e.runs.GetSnapshot(ctx, runID)
	if err != nil {
		return fmt.Errorf("evaluate run %s: %w", runID, err)
	}
	if snap == nil || snap.Status != runs.StatusProcessing {
		return nil
	}

	drained := snap.Drained()
	if !drained {
		outstanding, err := e.queue.OutstandingForRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("evaluate run %s: %w", runID, err)
		}
		drained = outstanding == 0
	}
	if !drained {
		return nil
	}

	terminal := runs.StatusCompleted
	if snap.AllFailed() {
		terminal = runs.StatusFailed
	}

	applied, err := e.runs.FinishIfProcessing(ctx, runID, terminal)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if applied {
		e.logger.Info("run reached terminal state",
			logging.String(logging.FieldRunID, runID),
			logging.String("status", string(terminal)),
			logging.Int("total_merged", snap.TotalMerged),
			logging.Int("failures", snap.FailureCount),
			logging.String(logging.FieldEventType, "run_finished"),
		)
	}
	return nil
}
