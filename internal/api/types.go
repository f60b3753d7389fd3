package api

import "time"

// ImportRequest starts an import for one feed.
type ImportRequest struct {
	FeedURL string `json:"feedUrl"`
}

// ImportResponse acknowledges a started import.
type ImportResponse struct {
	RunID          string `json:"runId"`
	TotalFetched   int    `json:"totalFetched"`
	BatchesCreated int    `json:"batchesCreated"`
}

// RunSummary is the listing shape of one run.
type RunSummary struct {
	ID           string    `json:"id"`
	FeedURL      string    `json:"feedUrl"`
	Status       string    `json:"status"`
	TotalFetched int       `json:"totalFetched"`
	TotalMerged  int       `json:"totalMerged"`
	NewJobs      int       `json:"newJobs"`
	UpdatedJobs  int       `json:"updatedJobs"`
	StartedAt    time.Time `json:"startedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FailureEntry is one record that could not be merged during a run.
type FailureEntry struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// RunDetail is the full shape of one run, including its failure list.
type RunDetail struct {
	RunSummary
	Failures []FailureEntry `json:"failures"`
}

// RunListResponse is a paginated page of run summaries.
type RunListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	QueueStats   map[string]int `json:"queueStats"`
	RunStats     map[string]int `json:"runStats"`
	JobCount     int            `json:"jobCount"`
}

// ErrorResponse is the error envelope every administrative endpoint uses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
