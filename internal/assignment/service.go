package assignment

import (
	"context"

	"github.com/sproutly/sproutly/internal/tenant"
)

// RepositoryPort defines data access methods for grants and assignments.
type RepositoryPort interface {
	ListRoleGrantIDs(ctx context.Context, scope tenant.Scope, roleID int64) ([]int64, error)
	AttachGrant(ctx context.Context, scope tenant.Scope, roleID, permissionID int64) error
	DetachGrant(ctx context.Context, scope tenant.Scope, roleID, permissionID int64) error
	ActiveRoleIDs(ctx context.Context, scope tenant.Scope, userID int64) ([]int64, error)
	ListAssignmentsForUser(ctx context.Context, scope tenant.Scope, userID int64) ([]UserRoleAssignment, error)
	InsertAssignment(ctx context.Context, scope tenant.Scope, a UserRoleAssignment) error
	ClearPrimary(ctx context.Context, scope tenant.Scope, userID int64) error
	DeleteAssignment(ctx context.Context, scope tenant.Scope, userID, roleID int64) (int64, error)
}

// Service enforces assignment invariants on top of the repository.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ReplaceRoleGrants swaps a role's grant set for the given permission ids by
// diffing against the current set. Returns whether anything changed so the
// caller knows to invalidate the tenant's snapshot.
func (s *Service) ReplaceRoleGrants(ctx context.Context, scope tenant.Scope, roleID int64, permissionIDs []int64) (bool, error) {
	current, err := s.repo.ListRoleGrantIDs(ctx, scope, roleID)
	if err != nil {
		return false, err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, id := range current {
		existing[id] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	changed := false
	for _, id := range permissionIDs {
		if _, dup := keep[id]; dup {
			continue
		}
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachGrant(ctx, scope, roleID, id); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachGrant(ctx, scope, roleID, id); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	return changed, nil
}

// AssignRole creates a user-role assignment. A repeated (user, role) pair is
// allowed only when its validity window is disjoint from every existing one;
// setting the primary flag clears it elsewhere first.
func (s *Service) AssignRole(ctx context.Context, scope tenant.Scope, a UserRoleAssignment) error {
	existing, err := s.repo.ListAssignmentsForUser(ctx, scope, a.UserID)
	if err != nil {
		return err
	}
	for _, prior := range existing {
		if prior.RoleID != a.RoleID {
			continue
		}
		if prior.Overlaps(a) {
			return ErrOverlappingWindow
		}
	}
	if a.IsPrimary {
		if err := s.repo.ClearPrimary(ctx, scope, a.UserID); err != nil {
			return err
		}
	}
	return s.repo.InsertAssignment(ctx, scope, a)
}

// RemoveRole deletes a user's assignment to a role. Reports whether a row
// actually went away.
func (s *Service) RemoveRole(ctx context.Context, scope tenant.Scope, userID, roleID int64) (bool, error) {
	removed, err := s.repo.DeleteAssignment(ctx, scope, userID, roleID)
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// ActiveRoleIDs exposes the user's currently valid roles.
func (s *Service) ActiveRoleIDs(ctx context.Context, scope tenant.Scope, userID int64) ([]int64, error) {
	return s.repo.ActiveRoleIDs(ctx, scope, userID)
}
