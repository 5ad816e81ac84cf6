// Package kit holds the transport-neutral endpoint plumbing shared by the
// HTTP and MCP surfaces of pricewatch.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a transport-agnostic request handler.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the named endpoint with its duration and, on
// failure, the error.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := GetTraceID(ctx); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
				return resp, err
			}
			logger.DebugContext(ctx, "kit: endpoint", attrs...)
			return resp, nil
		}
	}
}
