package api

import "feedmill/internal/runs"

// FromRunSummary converts a ledger run into its listing shape.
func FromRunSummary(run *runs.Run) RunSummary {
	return RunSummary{
		ID:           run.ID,
		FeedURL:      run.FeedURL,
		Status:       string(run.Status),
		TotalFetched: run.TotalFetched,
		TotalMerged:  run.TotalMerged,
		NewJobs:      run.NewJobs,
		UpdatedJobs:  run.UpdatedJobs,
		StartedAt:    run.StartedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

// FromRunDetail converts a ledger run, failures included, into its full shape.
func FromRunDetail(run *runs.Run) RunDetail {
	detail := RunDetail{
		RunSummary: FromRunSummary(run),
		Failures:   make([]FailureEntry, 0, len(run.Failures)),
	}
	for _, failure := range run.Failures {
		detail.Failures = append(detail.Failures, FailureEntry{ID: failure.ID, Reason: failure.Reason})
	}
	return detail
}
