package logger

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	invocationIDKey
)

// WithRequestID adds an HTTP request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithInvocationID adds a command invocation ID to the context.
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, invocationIDKey, invocationID)
}

// InvocationIDFromContext extracts the invocation ID from context.
func InvocationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(invocationIDKey).(string); ok {
		return id
	}
	return ""
}
