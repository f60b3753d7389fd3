// Package store owns the shared SQLite handle and schema migrations backing
// the job, run, queue, and raw capture stores. It applies connection pragmas
// (WAL, foreign keys, busy timeout), retries statements on SQLITE_BUSY, and
// exposes timestamp formatting helpers so every table stores RFC 3339 values.
package store
