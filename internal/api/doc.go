// Package api defines the JSON shapes shared by the daemon's administrative
// endpoints and the CLI client.
package api
