package ingest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"feedmill/internal/runs"
	"feedmill/internal/testsupport"
)

func waitForTerminal(t *testing.T, h *harness, runID string, timeout time.Duration) *runs.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		run, err := h.runs.GetByID(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if run != nil && run.Status.IsTerminal() {
			return run
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal state within %v", runID, timeout)
	return nil
}

func TestPoolDrainsRunToCompletion(t *testing.T) {
	h := newHarness(t, testsupport.WithBatchSize(20), testsupport.WithWorkerCount(4))
	srv := serveFeed(t, feedPayload(45), http.StatusOK)
	ctx := context.Background()

	receipt, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if receipt.BatchesCreated != 3 {
		t.Fatalf("batches = %d, want 3", receipt.BatchesCreated)
	}

	if err := h.pool.Start(ctx); err != nil {
		t.Fatalf("pool start: %v", err)
	}
	defer h.pool.Stop()

	run := waitForTerminal(t, h, receipt.RunID, 15*time.Second)
	if run.Status != runs.StatusCompleted {
		t.Fatalf("run status = %q, want completed", run.Status)
	}
	if run.TotalMerged != 45 {
		t.Errorf("total merged = %d, want 45", run.TotalMerged)
	}
	if run.NewJobs != 45 || run.UpdatedJobs != 0 {
		t.Errorf("new=%d updated=%d", run.NewJobs, run.UpdatedJobs)
	}
	if len(run.Failures) != 0 {
		t.Errorf("failures = %d, want 0", len(run.Failures))
	}

	count, err := h.jobs.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 45 {
		t.Errorf("stored jobs = %d, want 45", count)
	}
}

func TestPoolReimportUpdatesExistingJobs(t *testing.T) {
	h := newHarness(t, testsupport.WithBatchSize(10), testsupport.WithWorkerCount(2))
	srv := serveFeed(t, feedPayload(15), http.StatusOK)
	ctx := context.Background()

	if err := h.pool.Start(ctx); err != nil {
		t.Fatalf("pool start: %v", err)
	}
	defer h.pool.Stop()

	first, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	waitForTerminal(t, h, first.RunID, 15*time.Second)

	second, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	run := waitForTerminal(t, h, second.RunID, 15*time.Second)

	if run.Status != runs.StatusCompleted {
		t.Fatalf("run status = %q, want completed", run.Status)
	}
	if run.NewJobs != 0 || run.UpdatedJobs != 15 {
		t.Errorf("new=%d updated=%d, want 0/15", run.NewJobs, run.UpdatedJobs)
	}

	count, err := h.jobs.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 15 {
		t.Errorf("stored jobs = %d, want 15 after re-import", count)
	}
}
