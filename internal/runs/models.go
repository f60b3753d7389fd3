package runs

import (
	"strings"
	"time"

	"feedmill/internal/jobs"
)

// Status represents the lifecycle of an import run. Transitions are monotonic:
// pending -> processing -> completed | failed, with no regression.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status can never change again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Run is the durable ledger entry for one ingestion attempt against one feed.
type Run struct {
	ID           string
	FeedURL      string
	Status       Status
	TotalFetched int
	TotalMerged  int
	NewJobs      int
	UpdatedJobs  int
	StartedAt    time.Time
	UpdatedAt    time.Time
	Failures     []jobs.Failure
}

// Snapshot carries the counters the completion evaluator needs without
// loading failure rows.
type Snapshot struct {
	ID           string
	Status       Status
	TotalFetched int
	TotalMerged  int
	FailureCount int
}

// Drained reports whether every fetched record has been accounted for.
func (s Snapshot) Drained() bool {
	return s.TotalMerged+s.FailureCount >= s.TotalFetched
}

// AllFailed reports whether every fetched record ultimately failed.
func (s Snapshot) AllFailed() bool {
	return s.TotalFetched > 0 && s.FailureCount == s.TotalFetched
}
