// Command feedmill is the CLI for the feedmill daemon: it starts imports,
// inspects run history, and reports daemon status over the administrative
// HTTP API.
package main
