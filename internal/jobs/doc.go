// Package jobs defines the canonical job posting record and the merge engine
// that upserts records into the store, deduplicating by identity key.
package jobs
