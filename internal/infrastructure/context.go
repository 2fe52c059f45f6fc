package infrastructure

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
)

type traceIDKey struct{}

// WithTraceID returns a child of ctx carrying traceID for log correlation
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID returns the trace ID stored by WithTraceID, falling back to chi's request ID
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return middleware.GetReqID(ctx)
}
