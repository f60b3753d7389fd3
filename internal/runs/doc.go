// Package runs is the durable ledger of import runs: per-run progress
// counters, failure entries, and the guarded terminal status transition.
package runs
