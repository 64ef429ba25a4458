package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sproutly/sproutly/internal/shared"
	"github.com/sproutly/sproutly/internal/tenant"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns a tenant's active roles.
func (r *Repository) ListRoles(ctx context.Context, scope tenant.Scope) ([]Role, error) {
	query := fmt.Sprintf(`SELECT id, name, code, active, created_at, updated_at
		FROM %s WHERE active ORDER BY id`, scope.Qualify("roles"))
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("roles: list roles: %w", err)
	}
	defer rows.Close()
	var result []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Code, &role.Active, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// GetRole fetches one role by id.
func (r *Repository) GetRole(ctx context.Context, scope tenant.Scope, id int64) (Role, error) {
	query := fmt.Sprintf(`SELECT id, name, code, active, created_at, updated_at
		FROM %s WHERE id = $1`, scope.Qualify("roles"))
	var role Role
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&role.ID, &role.Name, &role.Code, &role.Active, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("roles: get role: %w", err)
	}
	return role, nil
}
