package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for import run identifiers.
	FieldRunID = "run_id"
	// FieldFeedURL is the standardized structured logging key for feed URLs.
	FieldFeedURL = "feed_url"
	// FieldUnitID is the standardized structured logging key for work unit identifiers.
	FieldUnitID = "unit_id"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on errors.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey int

const (
	runIDKey contextKey = iota
	feedURLKey
	unitIDKey
	correlationIDKey
)

// WithRunID stores the run identifier on the context for log enrichment.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithFeedURL stores the feed URL on the context for log enrichment.
func WithFeedURL(ctx context.Context, feedURL string) context.Context {
	return context.WithValue(ctx, feedURLKey, feedURL)
}

// WithUnitID stores the work unit identifier on the context for log enrichment.
func WithUnitID(ctx context.Context, unitID string) context.Context {
	return context.WithValue(ctx, unitIDKey, unitID)
}

// WithCorrelationID stores a request correlation identifier on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if feedURL, ok := ctx.Value(feedURLKey).(string); ok && feedURL != "" {
		fields = append(fields, slog.String(FieldFeedURL, feedURL))
	}
	if id, ok := ctx.Value(unitIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldUnitID, id))
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
