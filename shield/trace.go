package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/pricewatch/kit"
)

// TraceID returns middleware that assigns each request a random trace ID,
// echoes it in X-Trace-ID, stores it under kit.TraceIDKey and attaches a
// per-request logger derived from logger under LoggerKey. An inbound
// X-Trace-ID of sane length is kept so callers can correlate.
func TraceID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" || len(traceID) > 64 {
				id := make([]byte, 8)
				rand.Read(id)
				traceID = hex.EncodeToString(id)
			}

			ctx := kit.WithTraceID(r.Context(), traceID)
			w.Header().Set("X-Trace-ID", traceID)

			reqLogger := logger.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			reqLogger.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
