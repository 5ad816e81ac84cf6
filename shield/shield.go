// Package shield provides the HTTP middleware stack in front of the
// pricewatch API: security headers, body limits, request tracing and HEAD
// handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody caps API request bodies. Subscribe payloads are two short
// strings.
const DefaultMaxBody int64 = 64 * 1024

// DefaultStack returns the middleware stack for the pricewatch API, in order:
// HeadToGet, SecurityHeaders, MaxBody, TraceID.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		TraceID(logger),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
