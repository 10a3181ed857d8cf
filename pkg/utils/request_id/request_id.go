package request_id

import (
	"context"

	"github.com/google/uuid"
)

type ctxRequestIDKey struct{}

// With sets request ID in context
func With(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey{}, requestID)
}

// FromContext extracts request ID from context
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ctxRequestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

// Ensure returns ctx unchanged when it already has a request ID, otherwise a
// context with a fresh one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return With(ctx, id), id
}
