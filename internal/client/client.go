package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedmill/internal/api"
)

// Client talks to the daemon's administrative HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the daemon listening at bind (host:port).
func New(bind string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// StartImport asks the daemon to import one feed.
func (c *Client) StartImport(ctx context.Context, feedURL string) (*api.ImportResponse, error) {
	body, err := json.Marshal(api.ImportRequest{FeedURL: feedURL})
	if err != nil {
		return nil, err
	}
	var resp api.ImportResponse
	if err := c.do(ctx, http.MethodPost, "/api/imports", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns fetches a page of run summaries, optionally filtered by feed URL
// substring.
func (c *Client) ListRuns(ctx context.Context, page, limit int, feedFilter string) (*api.RunListResponse, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if feedFilter != "" {
		query.Set("feed", feedFilter)
	}
	path := "/api/imports"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.RunListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun fetches one run's full detail.
func (c *Client) GetRun(ctx context.Context, id string) (*api.RunDetail, error) {
	var resp api.RunDetail
	if err := c.do(ctx, http.MethodGet, "/api/imports/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var resp api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
