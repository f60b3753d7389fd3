// Package daemon wires the worker pool, scheduler, maintenance loop, and
// administrative HTTP API into a single-instance background process.
package daemon
