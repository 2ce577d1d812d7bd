// ABOUTME: Identity type and context helpers for propagating auth through requests
// ABOUTME: Provides WithIdentity/IdentityFromContext for handler access

package auth

import (
	"context"
)

// Identity holds the authenticated caller information extracted from a request.
// It lives for a single connection and is never persisted by the core.
type Identity struct {
	UserID   string // stable subject identifier
	Username string
	Email    string
}

// identityKey is the key type for storing an Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context, returning nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
