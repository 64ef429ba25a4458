// Package snapshot maintains per-tenant in-memory copies of the permission
// catalog with explicit health tracking.
package snapshot

import (
	"time"

	"github.com/sproutly/sproutly/internal/catalog"
	"github.com/sproutly/sproutly/internal/tenant"
)

// Health is the explicit cache state exposed to resolvers.
type Health int

// Health states. Only Healthy snapshots may be used for grant decisions;
// Stale and Unavailable force the caller onto the database.
const (
	HealthUnavailable Health = iota
	HealthStale
	HealthHealthy
)

// String returns the lowercase state name.
func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthStale:
		return "stale"
	default:
		return "unavailable"
	}
}

// Snapshot is an immutable copy of one tenant's full active-node set, with
// the granting roles attached per node. A snapshot is never mutated after
// publication; rebuilds swap the reference.
type Snapshot struct {
	Scope   tenant.Scope
	Nodes   []catalog.GrantedNode
	BuiltAt time.Time
}

// GrantingRoles returns the union of role ids across all nodes matching the
// permission string. Matching follows the code, key, path-containment order.
func (s *Snapshot) GrantingRoles(perm string) map[int64]struct{} {
	roles := make(map[int64]struct{})
	for _, n := range s.Nodes {
		if !n.Matches(perm) {
			continue
		}
		for _, id := range n.RoleIDs {
			roles[id] = struct{}{}
		}
	}
	return roles
}

// NodesForRoles filters the snapshot down to nodes reachable by any of the
// given roles, preserving catalog order.
func (s *Snapshot) NodesForRoles(roleIDs []int64) []catalog.GrantedNode {
	want := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		want[id] = struct{}{}
	}
	var reachable []catalog.GrantedNode
	for _, n := range s.Nodes {
		for _, id := range n.RoleIDs {
			if _, ok := want[id]; ok {
				reachable = append(reachable, n)
				break
			}
		}
	}
	return reachable
}

// ChildActions returns button-type children of a parent identified by id or
// path, preserving catalog order.
func (s *Snapshot) ChildActions(parentID *int64, parentPath string) []catalog.Node {
	pid := parentID
	if pid == nil && parentPath != "" {
		for _, n := range s.Nodes {
			if n.Path == parentPath {
				id := n.ID
				pid = &id
				break
			}
		}
	}
	if pid == nil {
		return nil
	}
	var actions []catalog.Node
	for _, n := range s.Nodes {
		if n.Type == catalog.TypeButton && n.ParentID != nil && *n.ParentID == *pid {
			actions = append(actions, n.Node)
		}
	}
	return actions
}
