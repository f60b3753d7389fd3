package jobs

import (
	"strings"
	"time"
)

// Record is the canonical shape of one job posting. Its identity key is the
// (FeedURL, ExternalID) pair; the identity of a stored record never changes
// across merges.
type Record struct {
	FeedURL     string    `json:"feedUrl"`
	ExternalID  string    `json:"externalId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Company     string    `json:"company,omitempty"`
	Location    string    `json:"location,omitempty"`
	Category    string    `json:"category,omitempty"`
	JobType     string    `json:"jobType,omitempty"`
	URL         string    `json:"url,omitempty"`
	RawData     string    `json:"rawData,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Identity returns the globally unique key for the record.
func (r Record) Identity() string {
	return r.FeedURL + "::" + r.ExternalID
}

// Validate reports why a record cannot be merged, or an empty string.
func (r Record) Validate() string {
	if strings.TrimSpace(r.ExternalID) == "" {
		return "external id is required"
	}
	if strings.TrimSpace(r.FeedURL) == "" {
		return "feed url is required"
	}
	if strings.TrimSpace(r.Title) == "" {
		return "title is required"
	}
	return ""
}

// Failure records one record that could not be merged.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// MergeResult summarizes one bulk upsert.
type MergeResult struct {
	New      int
	Updated  int
	Failures []Failure
}
