package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistryPort looks up the storage scope registered for a tenant identifier.
type RegistryPort interface {
	LookupScope(ctx context.Context, tenantID string) (Scope, error)
}

// Registry provides PostgreSQL backed tenant lookups against the shared
// public.tenants table.
type Registry struct {
	pool *pgxpool.Pool
}

// NewRegistry constructs a registry.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// LookupScope returns the scope registered for the tenant, or ErrScopeUnknown.
func (r *Registry) LookupScope(ctx context.Context, tenantID string) (Scope, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT scope FROM public.tenants WHERE tenant_id = $1 AND active`,
		tenantID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrScopeUnknown
		}
		return "", fmt.Errorf("tenant: lookup scope: %w", err)
	}
	return ParseScope(raw)
}

// ListScopes returns all active scopes, used by the snapshot warmup job.
func (r *Registry) ListScopes(ctx context.Context) ([]Scope, error) {
	rows, err := r.pool.Query(ctx, `SELECT scope FROM public.tenants WHERE active ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("tenant: list scopes: %w", err)
	}
	defer rows.Close()
	var scopes []Scope
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		scope, err := ParseScope(raw)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

type resolverEntry struct {
	scope   Scope
	expires time.Time
}

// Resolver memoizes registry lookups so the hot path does not pay a database
// round trip for every request.
type Resolver struct {
	registry RegistryPort
	ttl      time.Duration
	clock    func() time.Time

	mu      sync.RWMutex
	entries map[string]resolverEntry
}

// NewResolver constructs a resolver with the given memoization TTL.
func NewResolver(registry RegistryPort, ttl time.Duration) *Resolver {
	return &Resolver{
		registry: registry,
		ttl:      ttl,
		clock:    time.Now,
		entries:  make(map[string]resolverEntry),
	}
}

// WithClock overrides the time source, for tests.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

// Resolve maps a tenant identifier to its storage scope. Lookup failures are
// never memoized; a tenant added moments ago resolves on the next attempt.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (Scope, error) {
	if tenantID == "" {
		return "", ErrScopeUnknown
	}

	now := r.clock()
	r.mu.RLock()
	entry, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.scope, nil
	}

	scope, err := r.registry.LookupScope(ctx, tenantID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.entries[tenantID] = resolverEntry{scope: scope, expires: now.Add(r.ttl)}
	r.mu.Unlock()
	return scope, nil
}
