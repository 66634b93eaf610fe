// Package kit carries the transport-neutral endpoint plumbing used by the
// torscout front-ends: a request/response Endpoint, logging middleware
// and context helpers for per-call metadata.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a transport-agnostic call: decoded request in, response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// WithRequestLog logs every call with its transport, request id and duration.
func WithRequestLog(logger *slog.Logger, name string) Middleware {
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
				"request_id", GetRequestID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: call failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: call", attrs...)
			}
			return resp, err
		}
	}
}
