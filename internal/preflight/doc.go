// Package preflight validates filesystem readiness before the daemon starts
// processing.
package preflight
