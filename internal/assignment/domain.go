// Package assignment owns role grants and user-role assignments.
package assignment

import (
	"errors"
	"time"
)

// RoleGrant ties a permission node to a role.
type RoleGrant struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserRoleAssignment links a user to a role, optionally time-bounded.
type UserRoleAssignment struct {
	ID        int64
	UserID    int64
	RoleID    int64
	IsPrimary bool
	StartTime *time.Time
	EndTime   *time.Time
	GrantorID *int64
	CreatedAt time.Time
}

// ValidAt reports whether the assignment is active at the given instant.
func (a UserRoleAssignment) ValidAt(t time.Time) bool {
	if a.StartTime != nil && t.Before(*a.StartTime) {
		return false
	}
	if a.EndTime != nil && t.After(*a.EndTime) {
		return false
	}
	return true
}

// Overlaps reports whether two validity windows intersect. Open ends extend
// to infinity on their side.
func (a UserRoleAssignment) Overlaps(other UserRoleAssignment) bool {
	if a.EndTime != nil && other.StartTime != nil && a.EndTime.Before(*other.StartTime) {
		return false
	}
	if other.EndTime != nil && a.StartTime != nil && other.EndTime.Before(*a.StartTime) {
		return false
	}
	return true
}

var (
	// ErrDuplicateGrant indicates an already-present (role, permission) or (user, role) pair.
	ErrDuplicateGrant = errors.New("assignment: duplicate grant")
	// ErrOverlappingWindow rejects a repeated (user, role) pair whose validity
	// window intersects an existing one. Disjoint windows are allowed.
	ErrOverlappingWindow = errors.New("assignment: overlapping validity window")
)
