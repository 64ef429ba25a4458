package shared

import "context"

// Identity describes the authenticated actor forwarded by the gateway.
// Admin is resolved once when the identity is parsed; downstream code
// must branch on the flag, never on the role string.
type Identity struct {
	UserID int64
	Role   string
	Admin  bool
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
