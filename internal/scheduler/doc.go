// Package scheduler triggers imports for the configured feed list on a
// fixed interval.
package scheduler
