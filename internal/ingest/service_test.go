package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedmill/internal/config"
	"feedmill/internal/feed"
	"feedmill/internal/ingest"
	"feedmill/internal/jobs"
	"feedmill/internal/logging"
	"feedmill/internal/queue"
	"feedmill/internal/rawfeed"
	"feedmill/internal/runs"
	"feedmill/internal/store"
	"feedmill/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	db      *store.DB
	jobs    *jobs.Store
	runs    *runs.Store
	queue   *queue.Store
	raw     *rawfeed.Store
	service *ingest.Service
	pool    *ingest.Pool
	eval    *ingest.Evaluator
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenStore(t, cfg)

	h := &harness{
		cfg:   cfg,
		db:    db,
		jobs:  jobs.NewStore(db),
		runs:  runs.NewStore(db),
		queue: queue.NewStore(db, cfg.Ingest.MaxAttempts, time.Duration(cfg.Ingest.RetryBackoffSeconds)*time.Second),
		raw:   rawfeed.NewStore(db),
	}
	fetcher := feed.NewFetcher(nil, cfg.Ingest.UserAgent, 5*time.Second)
	h.service = ingest.NewService(cfg, logging.NewNop(), fetcher, h.runs, h.queue, h.raw)
	h.eval = ingest.NewEvaluator(h.runs, h.queue, logging.NewNop())
	h.pool = ingest.NewPool(cfg, db, h.jobs, h.runs, h.queue, h.eval, logging.NewNop())
	return h
}

func feedPayload(n int) string {
	var sb strings.Builder
	sb.WriteString(`<rss version="2.0"><channel><title>Jobs</title>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<item><title>Job %d</title><guid>job-%d</guid><link>https://example.com/job/%d</link></item>`, i, i, i)
	}
	sb.WriteString(`</channel></rss>`)
	return sb.String()
}

func serveFeed(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStartImportPartitionsIntoUnits(t *testing.T) {
	h := newHarness(t, testsupport.WithBatchSize(200))
	srv := serveFeed(t, feedPayload(450), http.StatusOK)
	ctx := context.Background()

	receipt, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if receipt.TotalFetched != 450 {
		t.Errorf("total fetched = %d, want 450", receipt.TotalFetched)
	}
	if receipt.BatchesCreated != 3 {
		t.Errorf("batches = %d, want 3", receipt.BatchesCreated)
	}

	run, err := h.runs.GetByID(ctx, receipt.RunID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if run.Status != runs.StatusProcessing {
		t.Errorf("run status = %q, want processing", run.Status)
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 3 {
		t.Errorf("pending units = %d, want 3", stats[queue.StatusPending])
	}

	capture, err := h.raw.Latest(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if capture == nil {
		t.Error("raw capture missing")
	}
}

func TestStartImportEmptyFeedCompletesImmediately(t *testing.T) {
	h := newHarness(t)
	srv := serveFeed(t, feedPayload(0), http.StatusOK)
	ctx := context.Background()

	receipt, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if receipt.TotalFetched != 0 || receipt.BatchesCreated != 0 {
		t.Errorf("receipt = %+v", receipt)
	}

	run, err := h.runs.GetByID(ctx, receipt.RunID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if run.Status != runs.StatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
}

func TestStartImportFetchErrorLeavesNoRun(t *testing.T) {
	h := newHarness(t)
	srv := serveFeed(t, "", http.StatusInternalServerError)
	ctx := context.Background()

	_, err := h.service.StartImport(ctx, srv.URL)
	if !errors.Is(err, ingest.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	_, total, err := h.runs.List(ctx, 1, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 {
		t.Errorf("runs created = %d, want 0", total)
	}
}

func TestStartImportParseErrorLeavesNoRun(t *testing.T) {
	h := newHarness(t)
	srv := serveFeed(t, "<html>not a feed</html>", http.StatusOK)
	ctx := context.Background()

	_, err := h.service.StartImport(ctx, srv.URL)
	if !errors.Is(err, ingest.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestStartImportResubmissionCoalesces(t *testing.T) {
	h := newHarness(t, testsupport.WithBatchSize(10))
	srv := serveFeed(t, feedPayload(25), http.StatusOK)
	ctx := context.Background()

	first, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	second, err := h.service.StartImport(ctx, srv.URL)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if first.RunID == second.RunID {
		t.Fatal("each import should create its own run")
	}
	if second.BatchesCreated != 3 {
		t.Errorf("batches = %d, want 3", second.BatchesCreated)
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 6 {
		t.Errorf("pending units = %d, want 6", stats[queue.StatusPending])
	}
}
