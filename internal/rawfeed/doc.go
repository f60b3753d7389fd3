// Package rawfeed archives the raw payload of every fetched feed document
// and purges captures past the retention window.
package rawfeed
