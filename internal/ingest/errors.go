package ingest

import "errors"

// Sentinel errors classify where an import attempt failed. Fetch and parse
// errors abort the run before any ledger entry or work unit exists.
var (
	ErrFetch = errors.New("feed fetch failed")
	ErrParse = errors.New("feed parse failed")
	ErrStore = errors.New("store operation failed")
)
