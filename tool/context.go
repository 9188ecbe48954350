package tool

import (
	"context"

	"github.com/google/uuid"
)

type invocationIDKey struct{}

// NewInvocationID returns a fresh random invocation id.
func NewInvocationID() string {
	return uuid.NewString()
}

// WithInvocationID returns ctx carrying id. The dispatcher reuses an id
// already present on the context instead of minting one.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationID returns the id attached to ctx, or "".
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey{}).(string)
	return id
}

func ensureInvocationID(ctx context.Context) (context.Context, string) {
	if id := InvocationID(ctx); id != "" {
		return ctx, id
	}
	id := NewInvocationID()
	return WithInvocationID(ctx, id), id
}
