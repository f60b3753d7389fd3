// Package ingest drives the import pipeline: the intake service that fetches
// and partitions a feed, the worker pool that merges claimed units, and the
// completion evaluator that settles each run's terminal status.
package ingest
