package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedmill/internal/api"
	"feedmill/internal/feed"
	"feedmill/internal/ingest"
	"feedmill/internal/jobs"
	"feedmill/internal/logging"
	"feedmill/internal/queue"
	"feedmill/internal/rawfeed"
	"feedmill/internal/runs"
	"feedmill/internal/scheduler"
	"feedmill/internal/testsupport"
)

func newTestDaemon(t *testing.T) (*Daemon, *httptest.Server) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)

	jobStore := jobs.NewStore(db)
	runStore := runs.NewStore(db)
	queueStore := queue.NewStore(db, cfg.Ingest.MaxAttempts, time.Duration(cfg.Ingest.RetryBackoffSeconds)*time.Second)
	rawStore := rawfeed.NewStore(db)

	fetcher := feed.NewFetcher(nil, cfg.Ingest.UserAgent, 5*time.Second)
	service := ingest.NewService(cfg, logging.NewNop(), fetcher, runStore, queueStore, rawStore)
	evaluator := ingest.NewEvaluator(runStore, queueStore, logging.NewNop())
	pool := ingest.NewPool(cfg, db, jobStore, runStore, queueStore, evaluator, logging.NewNop())
	sched := scheduler.New(cfg, service, logging.NewNop())

	d, err := New(cfg, db, logging.NewNop(), service, pool, sched, jobStore, runStore, queueStore, rawStore, evaluator)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	srv := httptest.NewServer(d.api.server.Handler)
	t.Cleanup(srv.Close)
	return d, srv
}

func serveFeedDocument(t *testing.T, items int) *httptest.Server {
	t.Helper()
	var body bytes.Buffer
	body.WriteString(`<rss version="2.0"><channel><title>Jobs</title>`)
	for i := 0; i < items; i++ {
		fmt.Fprintf(&body, `<item><title>Job %d</title><guid>job-%d</guid></item>`, i, i)
	}
	body.WriteString(`</channel></rss>`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postImport(t *testing.T, apiURL, feedURL string) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(api.ImportRequest{FeedURL: feedURL})
	resp, err := http.Post(apiURL+"/api/imports", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/imports: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStartImportEndpoint(t *testing.T) {
	_, srv := newTestDaemon(t)
	feedSrv := serveFeedDocument(t, 5)

	resp := postImport(t, srv.URL, feedSrv.URL)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var receipt api.ImportResponse
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if receipt.RunID == "" {
		t.Error("run id missing")
	}
	if receipt.TotalFetched != 5 {
		t.Errorf("total fetched = %d, want 5", receipt.TotalFetched)
	}
	if receipt.BatchesCreated != 1 {
		t.Errorf("batches = %d, want 1", receipt.BatchesCreated)
	}
}

func TestStartImportRequiresFeedURL(t *testing.T) {
	_, srv := newTestDaemon(t)

	resp := postImport(t, srv.URL, "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var apiErr api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr.Error == "" || apiErr.Message == "" {
		t.Errorf("error envelope incomplete: %+v", apiErr)
	}
}

func TestListAndDetailEndpoints(t *testing.T) {
	_, srv := newTestDaemon(t)
	feedSrv := serveFeedDocument(t, 3)

	resp := postImport(t, srv.URL, feedSrv.URL)
	var receipt api.ImportResponse
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode: %v", err)
	}

	listResp, err := http.Get(srv.URL + "/api/imports?page=1&limit=10")
	if err != nil {
		t.Fatalf("GET /api/imports: %v", err)
	}
	defer listResp.Body.Close()
	var list api.RunListResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Runs) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Runs[0].ID != receipt.RunID {
		t.Errorf("listed run = %q, want %q", list.Runs[0].ID, receipt.RunID)
	}

	detailResp, err := http.Get(srv.URL + "/api/imports/" + receipt.RunID)
	if err != nil {
		t.Fatalf("GET detail: %v", err)
	}
	defer detailResp.Body.Close()
	var detail api.RunDetail
	if err := json.NewDecoder(detailResp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.ID != receipt.RunID {
		t.Errorf("detail id = %q", detail.ID)
	}
	if detail.TotalFetched != 3 {
		t.Errorf("detail fetched = %d", detail.TotalFetched)
	}
	if detail.Failures == nil {
		t.Error("failures should be an empty list, not null")
	}
}

func TestUnknownRunReturns404(t *testing.T) {
	_, srv := newTestDaemon(t)

	resp, err := http.Get(srv.URL + "/api/imports/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var apiErr api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr.Error != "not_found" {
		t.Errorf("error = %q", apiErr.Error)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d, srv := newTestDaemon(t)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Running {
		t.Error("daemon reported running before Start")
	}
	if status.DatabasePath != d.db.Path() {
		t.Errorf("database path = %q", status.DatabasePath)
	}
}
