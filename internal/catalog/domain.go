// Package catalog owns the authoritative permission-node tree persisted per tenant.
package catalog

import "strings"

// NodeType classifies a permission node.
type NodeType string

// Node types. Menu and route nodes represent navigable pages, button nodes
// represent a single operation and are always leaves.
const (
	TypeMenu   NodeType = "menu"
	TypeRoute  NodeType = "route"
	TypeButton NodeType = "button"
)

// Node is one entry in the authorization tree.
type Node struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	DisplayName   string   `json:"displayName"`
	Code          string   `json:"code"`
	Type          NodeType `json:"type"`
	ParentID      *int64   `json:"parentId"`
	Path          string   `json:"path"`
	ComponentRef  string   `json:"componentRef,omitempty"`
	PermissionKey string   `json:"permissionKey,omitempty"`
	Icon          string   `json:"icon,omitempty"`
	SortOrder     int32    `json:"sortOrder"`
	Active        bool     `json:"active"`
}

// Matches reports whether the node satisfies a requested permission string.
// The strategy tries exact code, then permission key, then path containment.
func (n Node) Matches(perm string) bool {
	if perm == "" {
		return false
	}
	if n.Code == perm {
		return true
	}
	if n.PermissionKey != "" && n.PermissionKey == perm {
		return true
	}
	return n.Path != "" && strings.Contains(n.Path, perm)
}
