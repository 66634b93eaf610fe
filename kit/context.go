package kit

import "context"

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
)

// WithTransport records which front-end received the call ("mcp", ...).
func WithTransport(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, transportKey, name)
}

// GetTransport returns the recorded front-end, or "direct" for in-process
// calls that went through no front-end at all.
func GetTransport(ctx context.Context) string {
	if name, ok := ctx.Value(transportKey).(string); ok && name != "" {
		return name
	}
	return "direct"
}

// WithRequestID attaches a per-call id used to correlate logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the id set by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
