package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sproutly/sproutly/internal/tenant"
)

// GrantedNode pairs a node with the roles it is granted to, for snapshot builds.
type GrantedNode struct {
	Node
	RoleIDs []int64
}

// Repository provides PostgreSQL backed access to a tenant's permission tree.
// Every query is qualified with the caller's resolved scope; there is no
// unscoped entry point.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const nodeColumns = `n.id, n.name, n.display_name, n.code, n.type, n.parent_id, n.path,
	COALESCE(n.component_ref, ''), COALESCE(n.permission_key, ''), COALESCE(n.icon, ''),
	n.sort_order, n.active`

// assignmentValid restricts user_roles rows to currently valid time windows.
const assignmentValid = `(ur.start_time IS NULL OR ur.start_time <= now())
	AND (ur.end_time IS NULL OR ur.end_time >= now())`

func scanNode(row pgx.Row) (Node, error) {
	var n Node
	err := row.Scan(&n.ID, &n.Name, &n.DisplayName, &n.Code, &n.Type, &n.ParentID, &n.Path,
		&n.ComponentRef, &n.PermissionKey, &n.Icon, &n.SortOrder, &n.Active)
	return n, err
}

func collectNodes(rows pgx.Rows) ([]Node, error) {
	defer rows.Close()
	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListActiveNodesForRole returns all active nodes granted to a role, ordered
// by sort_order then id.
func (r *Repository) ListActiveNodesForRole(ctx context.Context, scope tenant.Scope, roleID int64) ([]Node, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM %s n
		JOIN %s rg ON rg.permission_id = n.id
		WHERE rg.role_id = $1 AND n.active
		ORDER BY n.sort_order, n.id`,
		nodeColumns, scope.Qualify("permission_nodes"), scope.Qualify("role_grants"))
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list nodes for role: %w", err)
	}
	return collectNodes(rows)
}

// ListActiveNodesForUser unions active nodes across the user's currently
// valid role assignments, de-duplicated by node id.
func (r *Repository) ListActiveNodesForUser(ctx context.Context, scope tenant.Scope, userID int64) ([]Node, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %s
		FROM %s n
		JOIN %s rg ON rg.permission_id = n.id
		JOIN %s ur ON ur.role_id = rg.role_id
		WHERE ur.user_id = $1 AND n.active AND %s
		ORDER BY n.sort_order, n.id`,
		nodeColumns, scope.Qualify("permission_nodes"), scope.Qualify("role_grants"),
		scope.Qualify("user_roles"), assignmentValid)
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list nodes for user: %w", err)
	}
	return collectNodes(rows)
}

// HasPermission reports whether any active node matching the permission string
// is reachable through the user's currently valid assignments. Path containment
// uses strpos so the string is literal, exactly like the in-memory scan.
func (r *Repository) HasPermission(ctx context.Context, scope tenant.Scope, userID int64, perm string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1
		FROM %s n
		JOIN %s rg ON rg.permission_id = n.id
		JOIN %s ur ON ur.role_id = rg.role_id
		WHERE ur.user_id = $1 AND n.active AND %s
		  AND (n.code = $2 OR n.permission_key = $2 OR ($2 <> '' AND strpos(n.path, $2) > 0))
	)`,
		scope.Qualify("permission_nodes"), scope.Qualify("role_grants"),
		scope.Qualify("user_roles"), assignmentValid)
	var held bool
	if err := r.pool.QueryRow(ctx, query, userID, perm).Scan(&held); err != nil {
		return false, fmt.Errorf("catalog: has permission: %w", err)
	}
	return held, nil
}

// HeldPermissions filters the requested permission strings down to the subset
// the user holds, in a single round trip.
func (r *Repository) HeldPermissions(ctx context.Context, scope tenant.Scope, userID int64, perms []string) (map[string]bool, error) {
	query := fmt.Sprintf(`SELECT DISTINCT p.perm
		FROM unnest($2::text[]) AS p(perm)
		JOIN %s n ON (n.code = p.perm OR n.permission_key = p.perm OR (p.perm <> '' AND strpos(n.path, p.perm) > 0))
		JOIN %s rg ON rg.permission_id = n.id
		JOIN %s ur ON ur.role_id = rg.role_id
		WHERE ur.user_id = $1 AND n.active AND %s`,
		scope.Qualify("permission_nodes"), scope.Qualify("role_grants"),
		scope.Qualify("user_roles"), assignmentValid)
	rows, err := r.pool.Query(ctx, query, userID, perms)
	if err != nil {
		return nil, fmt.Errorf("catalog: held permissions: %w", err)
	}
	defer rows.Close()
	held := make(map[string]bool, len(perms))
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, err
		}
		held[perm] = true
	}
	return held, rows.Err()
}

// ListChildActions returns the active button-type children of a parent node,
// looked up by id or by path.
func (r *Repository) ListChildActions(ctx context.Context, scope tenant.Scope, parentID *int64, parentPath string) ([]Node, error) {
	base := fmt.Sprintf(`SELECT %s
		FROM %s n
		WHERE n.active AND n.type = 'button' AND `, nodeColumns, scope.Qualify("permission_nodes"))
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case parentID != nil:
		rows, err = r.pool.Query(ctx, base+`n.parent_id = $1 ORDER BY n.sort_order, n.id`, *parentID)
	case parentPath != "":
		query := fmt.Sprintf(`%sn.parent_id = (SELECT id FROM %s WHERE path = $1 AND active LIMIT 1)
			ORDER BY n.sort_order, n.id`, base, scope.Qualify("permission_nodes"))
		rows, err = r.pool.Query(ctx, query, parentPath)
	default:
		return nil, fmt.Errorf("catalog: list child actions: parent id or path required")
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list child actions: %w", err)
	}
	return collectNodes(rows)
}

// ListActiveNodes returns the tenant's full active-node set with the granting
// role ids attached to each node. This is the snapshot build query.
func (r *Repository) ListActiveNodes(ctx context.Context, scope tenant.Scope) ([]GrantedNode, error) {
	query := fmt.Sprintf(`SELECT %s,
		COALESCE(array_agg(rg.role_id) FILTER (WHERE rg.role_id IS NOT NULL), '{}')
		FROM %s n
		LEFT JOIN %s rg ON rg.permission_id = n.id
		WHERE n.active
		GROUP BY n.id
		ORDER BY n.sort_order, n.id`,
		nodeColumns, scope.Qualify("permission_nodes"), scope.Qualify("role_grants"))
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active nodes: %w", err)
	}
	defer rows.Close()
	var nodes []GrantedNode
	for rows.Next() {
		var gn GrantedNode
		err := rows.Scan(&gn.ID, &gn.Name, &gn.DisplayName, &gn.Code, &gn.Type, &gn.ParentID,
			&gn.Path, &gn.ComponentRef, &gn.PermissionKey, &gn.Icon, &gn.SortOrder, &gn.Active,
			&gn.RoleIDs)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, gn)
	}
	return nodes, rows.Err()
}
