package core

import "context"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID attaches a caller-supplied request id to the context.
// Adapters forward it to backends that accept a correlation header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id from the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
