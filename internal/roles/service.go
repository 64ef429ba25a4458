package roles

import (
	"context"

	"github.com/sproutly/sproutly/internal/tenant"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, scope tenant.Scope) ([]Role, error)
	GetRole(ctx context.Context, scope tenant.Scope, id int64) (Role, error)
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns the tenant's active roles.
func (s *Service) ListRoles(ctx context.Context, scope tenant.Scope) ([]Role, error) {
	return s.repo.ListRoles(ctx, scope)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, scope tenant.Scope, id int64) (Role, error) {
	return s.repo.GetRole(ctx, scope, id)
}
