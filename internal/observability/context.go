package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	loggerKey    contextKey = "logger"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRunID adds an aggregation run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, or fallback enriched
// with whatever run and request IDs the context carries.
func LoggerFromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if v := ctx.Value(loggerKey); v != nil {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	runID := RunIDFromContext(ctx)
	if runID == "" {
		if reqID := RequestIDFromContext(ctx); reqID != "" {
			return fallback.With().Str("request_id", reqID).Logger()
		}
		return fallback
	}
	return WithRunContext(fallback, RequestIDFromContext(ctx), runID)
}
