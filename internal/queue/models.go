package queue

import (
	"fmt"
	"time"

	"feedmill/internal/jobs"
)

// Status tracks a work unit through the delivery lifecycle. A unit is pending
// until a worker claims it, in_flight while a worker holds it, retrying while
// it waits out a backoff window, and succeeded or failed once terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether a unit in this status will never be delivered
// again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Unit is one durable batch of records awaiting merge. Units are keyed by a
// deterministic ID derived from the run and partition index, which makes
// enqueueing idempotent.
type Unit struct {
	ID             string
	RunID          string
	FeedURL        string
	PartitionIndex int
	Records        []jobs.Record
	Status         Status
	Attempts       int
	ClaimedBy      string
	ErrorMessage   string
	NextAttemptAt  time.Time
	LastHeartbeat  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UnitID derives the deterministic identifier for a run's partition.
func UnitID(runID string, partitionIndex int) string {
	return fmt.Sprintf("%s-%d", runID, partitionIndex)
}

// Partition splits records into consecutive batches of at most size records.
// The final batch may be smaller. A non-positive size yields a single batch.
func Partition(records []jobs.Record, size int) [][]jobs.Record {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]jobs.Record{records}
	}
	batches := make([][]jobs.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
