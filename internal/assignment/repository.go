package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sproutly/sproutly/internal/tenant"
)

// duplicateKey reports whether err is a unique violation (SQLSTATE 23505).
func duplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Repository provides PostgreSQL backed persistence for grants and assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoleGrantIDs returns the permission node ids granted to a role.
func (r *Repository) ListRoleGrantIDs(ctx context.Context, scope tenant.Scope, roleID int64) ([]int64, error) {
	query := fmt.Sprintf(`SELECT permission_id FROM %s WHERE role_id = $1 ORDER BY permission_id`,
		scope.Qualify("role_grants"))
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("assignment: list role grants: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachGrant inserts one (role, permission) pair.
func (r *Repository) AttachGrant(ctx context.Context, scope tenant.Scope, roleID, permissionID int64) error {
	query := fmt.Sprintf(`INSERT INTO %s (role_id, permission_id) VALUES ($1, $2)`,
		scope.Qualify("role_grants"))
	if _, err := r.pool.Exec(ctx, query, roleID, permissionID); err != nil {
		if duplicateKey(err) {
			return ErrDuplicateGrant
		}
		return fmt.Errorf("assignment: attach grant: %w", err)
	}
	return nil
}

// DetachGrant removes one (role, permission) pair.
func (r *Repository) DetachGrant(ctx context.Context, scope tenant.Scope, roleID, permissionID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1 AND permission_id = $2`,
		scope.Qualify("role_grants"))
	if _, err := r.pool.Exec(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("assignment: detach grant: %w", err)
	}
	return nil
}

// ActiveRoleIDs returns the roles currently valid for a user.
func (r *Repository) ActiveRoleIDs(ctx context.Context, scope tenant.Scope, userID int64) ([]int64, error) {
	query := fmt.Sprintf(`SELECT DISTINCT ur.role_id FROM %s ur
		WHERE ur.user_id = $1
		  AND (ur.start_time IS NULL OR ur.start_time <= now())
		  AND (ur.end_time IS NULL OR ur.end_time >= now())
		ORDER BY ur.role_id`,
		scope.Qualify("user_roles"))
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("assignment: active roles: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAssignmentsForUser returns every assignment row for a user, including
// expired and future-dated ones.
func (r *Repository) ListAssignmentsForUser(ctx context.Context, scope tenant.Scope, userID int64) ([]UserRoleAssignment, error) {
	query := fmt.Sprintf(`SELECT id, user_id, role_id, is_primary, start_time, end_time, grantor_id, created_at
		FROM %s WHERE user_id = $1 ORDER BY id`,
		scope.Qualify("user_roles"))
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("assignment: list assignments: %w", err)
	}
	defer rows.Close()
	var assignments []UserRoleAssignment
	for rows.Next() {
		var a UserRoleAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.IsPrimary, &a.StartTime, &a.EndTime, &a.GrantorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// InsertAssignment stores a new user-role assignment.
func (r *Repository) InsertAssignment(ctx context.Context, scope tenant.Scope, a UserRoleAssignment) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, role_id, is_primary, start_time, end_time, grantor_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		scope.Qualify("user_roles"))
	if _, err := r.pool.Exec(ctx, query, a.UserID, a.RoleID, a.IsPrimary, a.StartTime, a.EndTime, a.GrantorID); err != nil {
		if duplicateKey(err) {
			return ErrDuplicateGrant
		}
		return fmt.Errorf("assignment: insert assignment: %w", err)
	}
	return nil
}

// ClearPrimary unsets the primary flag on all of a user's assignments.
func (r *Repository) ClearPrimary(ctx context.Context, scope tenant.Scope, userID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET is_primary = false WHERE user_id = $1 AND is_primary`,
		scope.Qualify("user_roles"))
	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("assignment: clear primary: %w", err)
	}
	return nil
}

// DeleteAssignment removes an assignment by (user, role). Returns how many
// rows were removed.
func (r *Repository) DeleteAssignment(ctx context.Context, scope tenant.Scope, userID, roleID int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND role_id = $2`,
		scope.Qualify("user_roles"))
	tag, err := r.pool.Exec(ctx, query, userID, roleID)
	if err != nil {
		return 0, fmt.Errorf("assignment: delete assignment: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepExpired deletes assignments whose end time has passed. Used by the
// nightly maintenance job.
func (r *Repository) SweepExpired(ctx context.Context, scope tenant.Scope) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE end_time IS NOT NULL AND end_time < now()`,
		scope.Qualify("user_roles"))
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("assignment: sweep expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
