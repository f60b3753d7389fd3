// Package feed fetches syndicated job feeds and normalizes their payloads
// into canonical records. The parser is dialect-agnostic: item-based and
// entry-based documents flow through the same schema-free node walk, with
// per-field fallback chains resolving the canonical value.
package feed
