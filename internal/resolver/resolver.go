// Package resolver decides grant or deny for permission requests, preferring
// the snapshot cache and falling back to the authoritative store.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/shared"
	"github.com/sproutly/sproutly/internal/snapshot"
	"github.com/sproutly/sproutly/internal/tenant"
)

// Source names the data source that produced a decision.
type Source string

// Decision sources.
const (
	SourceAdmin    Source = "admin-bypass"
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)

var (
	// ErrUndetermined signals that no grant/deny decision could be made.
	// Callers must treat it as an authorization error, never as a deny and
	// never as an implicit grant.
	ErrUndetermined = errors.New("resolver: undetermined")
	// ErrMalformedPermission rejects an empty or oversized permission string.
	ErrMalformedPermission = errors.New("resolver: malformed permission")
)

// ReasonMalformed marks a batch entry denied for being malformed rather than
// unheld.
const ReasonMalformed = "malformed"

const maxPermissionLength = 200

// CatalogPort is the authoritative-store surface the resolver needs.
type CatalogPort interface {
	HasPermission(ctx context.Context, scope tenant.Scope, userID int64, perm string) (bool, error)
	HeldPermissions(ctx context.Context, scope tenant.Scope, userID int64, perms []string) (map[string]bool, error)
	ListChildActions(ctx context.Context, scope tenant.Scope, parentID *int64, parentPath string) ([]catalog.Node, error)
}

// AssignmentPort supplies the user's currently valid roles.
type AssignmentPort interface {
	ActiveRoleIDs(ctx context.Context, scope tenant.Scope, userID int64) ([]int64, error)
}

// SnapshotPort is the cache surface the resolver consults first.
type SnapshotPort interface {
	Get(ctx context.Context, scope tenant.Scope) (*snapshot.Snapshot, snapshot.Health)
}

// CheckRequest is one permission question.
type CheckRequest struct {
	Scope      tenant.Scope
	Identity   shared.Identity
	Permission string
}

// Decision is the answer to one permission question.
type Decision struct {
	Granted bool
	Source  Source
}

// FromCache reports whether the decision was served from the snapshot.
func (d Decision) FromCache() bool { return d.Source == SourceCache }

// BatchRequest asks about an ordered set of permissions for one actor.
type BatchRequest struct {
	Scope       tenant.Scope
	Identity    shared.Identity
	Permissions []string
}

// Summary counts batch outcomes.
type Summary struct {
	Total   int `json:"total"`
	Granted int `json:"granted"`
	Denied  int `json:"denied"`
}

// BatchResult maps each requested permission to its outcome. Reasons carries
// per-entry denial codes for malformed requests only.
type BatchResult struct {
	Results map[string]bool
	Reasons map[string]string
	Summary Summary
	Source  Source
}

// Resolver answers permission questions for one tenant scope at a time.
type Resolver struct {
	snapshots   SnapshotPort
	catalog     CatalogPort
	assignments AssignmentPort
	logger      *slog.Logger
}

// New constructs a Resolver.
func New(snapshots SnapshotPort, cat CatalogPort, assignments AssignmentPort, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{snapshots: snapshots, catalog: cat, assignments: assignments, logger: logger}
}

func validPermission(perm string) bool {
	return perm != "" && len(perm) <= maxPermissionLength
}

// Check answers one permission question. The admin capability short-circuits
// with zero storage access. With a healthy snapshot the decision comes from
// memory plus one assignment lookup; otherwise it is confirmed directly
// against the authoritative store. A failed direct query yields
// ErrUndetermined, never a deny.
func (r *Resolver) Check(ctx context.Context, req CheckRequest) (Decision, error) {
	if !validPermission(req.Permission) {
		return Decision{}, ErrMalformedPermission
	}
	if req.Identity.Admin {
		return Decision{Granted: true, Source: SourceAdmin}, nil
	}

	snap, health := r.snapshots.Get(ctx, req.Scope)
	if health == snapshot.HealthHealthy {
		granting := snap.GrantingRoles(req.Permission)
		if len(granting) == 0 {
			return Decision{Granted: false, Source: SourceCache}, nil
		}
		roleIDs, err := r.assignments.ActiveRoleIDs(ctx, req.Scope, req.Identity.UserID)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %w", ErrUndetermined, err)
		}
		for _, id := range roleIDs {
			if _, ok := granting[id]; ok {
				return Decision{Granted: true, Source: SourceCache}, nil
			}
		}
		return Decision{Granted: false, Source: SourceCache}, nil
	}

	held, err := r.catalog.HasPermission(ctx, req.Scope, req.Identity.UserID, req.Permission)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrUndetermined, err)
	}
	return Decision{Granted: held, Source: SourceDatabase}, nil
}

// BatchCheck resolves a set of permissions with the same source selection as
// Check, scanning or querying once for the whole set. Malformed entries are
// denied with a reason code without failing the batch.
func (r *Resolver) BatchCheck(ctx context.Context, req BatchRequest) (BatchResult, error) {
	result := BatchResult{
		Results: make(map[string]bool, len(req.Permissions)),
		Reasons: make(map[string]string),
	}

	var wellFormed []string
	for _, perm := range req.Permissions {
		if _, seen := result.Results[perm]; seen {
			continue
		}
		if !validPermission(perm) {
			result.Results[perm] = false
			result.Reasons[perm] = ReasonMalformed
			continue
		}
		result.Results[perm] = false
		wellFormed = append(wellFormed, perm)
	}

	switch {
	case req.Identity.Admin:
		result.Source = SourceAdmin
		for _, perm := range wellFormed {
			result.Results[perm] = true
		}
	case len(wellFormed) > 0:
		held, source, err := r.resolveSet(ctx, req, wellFormed)
		if err != nil {
			return BatchResult{}, err
		}
		result.Source = source
		for _, perm := range wellFormed {
			result.Results[perm] = held[perm]
		}
	default:
		result.Source = SourceCache
	}

	for _, granted := range result.Results {
		result.Summary.Total++
		if granted {
			result.Summary.Granted++
		} else {
			result.Summary.Denied++
		}
	}
	return result, nil
}

func (r *Resolver) resolveSet(ctx context.Context, req BatchRequest, perms []string) (map[string]bool, Source, error) {
	snap, health := r.snapshots.Get(ctx, req.Scope)
	if health != snapshot.HealthHealthy {
		held, err := r.catalog.HeldPermissions(ctx, req.Scope, req.Identity.UserID, perms)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrUndetermined, err)
		}
		return held, SourceDatabase, nil
	}

	roleIDs, err := r.assignments.ActiveRoleIDs(ctx, req.Scope, req.Identity.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUndetermined, err)
	}
	reachable := snap.NodesForRoles(roleIDs)

	// Exact identifiers resolve via set membership; path containment needs a scan.
	exact := make(map[string]struct{}, len(reachable)*2)
	for _, n := range reachable {
		if n.Code != "" {
			exact[n.Code] = struct{}{}
		}
		if n.PermissionKey != "" {
			exact[n.PermissionKey] = struct{}{}
		}
	}
	held := make(map[string]bool, len(perms))
	for _, perm := range perms {
		if _, ok := exact[perm]; ok {
			held[perm] = true
			continue
		}
		for _, n := range reachable {
			if n.Matches(perm) {
				held[perm] = true
				break
			}
		}
	}
	return held, SourceCache, nil
}

// PageActions lists the active button-type children of a page, from the
// snapshot when healthy or the store otherwise. The boolean reports which
// source served the listing.
func (r *Resolver) PageActions(ctx context.Context, scope tenant.Scope, parentID *int64, parentPath string) ([]catalog.Node, bool, error) {
	snap, health := r.snapshots.Get(ctx, scope)
	if health == snapshot.HealthHealthy {
		return snap.ChildActions(parentID, parentPath), true, nil
	}
	nodes, err := r.catalog.ListChildActions(ctx, scope, parentID, parentPath)
	if err != nil {
		return nil, false, err
	}
	return nodes, false, nil
}
