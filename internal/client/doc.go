// Package client is the HTTP client the CLI uses against the daemon's
// administrative API.
package client
