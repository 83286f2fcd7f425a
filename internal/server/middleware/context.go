// Package middleware provides the HTTP auth and audit middleware for the server.
package middleware

import (
	"context"

	"sessionguard/internal/risk"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity is the authenticated principal attached to a request after the session
// middleware accepted it.
type Identity struct {
	UserID    string
	SessionID string
	Risk      risk.Level
}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the identity set by the session middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
