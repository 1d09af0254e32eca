// Package appctx carries per-event values through context: the event id
// and a logger already tagged with it.
package appctx

import (
	"context"
	"log/slog"
)

type (
	loggerKey  struct{}
	eventIDKey struct{}
)

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the context logger, or fallback when there is none.
func GetLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return fallback
}

// WithEventID attaches the id of the gateway event being processed.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey{}, id)
}

// EventID returns the event id, or "" outside event processing.
func EventID(ctx context.Context) string {
	id, _ := ctx.Value(eventIDKey{}).(string)
	return id
}
