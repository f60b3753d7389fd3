package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feedmill/internal/api"
	"feedmill/internal/client"
)

func newServer(t *testing.T, handler http.HandlerFunc) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return client.New(strings.TrimPrefix(srv.URL, "http://"))
}

func TestStartImportPostsFeedURL(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/imports" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req api.ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.FeedURL != "https://jobs.example.com/feed" {
			t.Errorf("feed url = %q", req.FeedURL)
		}
		_ = json.NewEncoder(w).Encode(api.ImportResponse{RunID: "run-1", TotalFetched: 7, BatchesCreated: 1})
	})

	resp, err := c.StartImport(context.Background(), "https://jobs.example.com/feed")
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if resp.RunID != "run-1" || resp.TotalFetched != 7 {
		t.Errorf("response = %+v", resp)
	}
}

func TestListRunsEncodesQuery(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "5" || q.Get("feed") != "example" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(api.RunListResponse{Page: 2, Limit: 5})
	})

	resp, err := c.ListRuns(context.Background(), 2, 5, "example")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if resp.Page != 2 {
		t.Errorf("page = %d", resp.Page)
	}
}

func TestErrorEnvelopeSurfacesMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "not_found", Message: "run not found"})
	})

	_, err := c.GetRun(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "run not found" {
		t.Errorf("error = %q, want the envelope message", err)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	c := client.New("127.0.0.1:1")

	_, err := c.Status(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !strings.Contains(err.Error(), "daemon unreachable") {
		t.Errorf("error = %q", err)
	}
}
