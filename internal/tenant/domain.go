// Package tenant resolves the storage scope isolating one customer's data partition.
package tenant

import (
	"context"
	"errors"
	"regexp"
)

// Scope is a validated storage-scope identifier. It doubles as the schema
// qualifier in SQL, so a Scope must only ever be produced by ParseScope.
type Scope string

var (
	// ErrScopeInvalid indicates a scope identifier that fails validation.
	ErrScopeInvalid = errors.New("tenant: invalid scope identifier")
	// ErrScopeUnknown indicates a tenant with no registered scope.
	ErrScopeUnknown = errors.New("tenant: unknown tenant")
)

var scopePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ParseScope validates a raw scope identifier.
func ParseScope(raw string) (Scope, error) {
	if !scopePattern.MatchString(raw) {
		return "", ErrScopeInvalid
	}
	return Scope(raw), nil
}

// Qualify prefixes a table name with the scope's schema.
func (s Scope) Qualify(table string) string {
	return string(s) + "." + table
}

type scopeContextKey struct{}

// ContextWithScope stores the resolved scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the resolved scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
