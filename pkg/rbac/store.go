package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a role or permission does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotTrashed is returned when a permanent delete targets a live role
	ErrNotTrashed = errors.New("role is not in the trash")
	// ErrUnknownPermission is returned when a role references a permission name that is not registered
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrSystemRole is returned when a change targets a built-in SYSTEM role
	ErrSystemRole = errors.New("system roles cannot be modified")
)

const roleColumns = `id, name, display_name, description, level, type, tenant_id, is_active, trashed_at, created_at, updated_at, created_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles role and permission persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var level, roleType string
	var tenantID, createdBy sql.NullInt64
	var trashedAt sql.NullTime

	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&level,
		&roleType,
		&tenantID,
		&role.IsActive,
		&trashedAt,
		&role.CreatedAt,
		&role.UpdatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	role.Level = RoleLevel(level)
	role.Type = RoleType(roleType)
	role.Permissions = []Permission{}
	if tenantID.Valid {
		id := tenantID.Int64
		role.TenantID = &id
	}
	if createdBy.Valid {
		id := createdBy.Int64
		role.CreatedBy = &id
	}
	if trashedAt.Valid {
		t := trashedAt.Time
		role.TrashedAt = &t
	}
	return &role, nil
}

// CreateRole inserts a role and links the permissions named in role.Permissions
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if !role.Level.Valid() {
		return fmt.Errorf("invalid role level %q", role.Level)
	}
	if role.Type == "" {
		role.Type = RoleTypeCustom
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO roles (name, display_name, description, level, type, tenant_id, is_active, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		role.Name,
		role.DisplayName,
		role.Description,
		string(role.Level),
		string(role.Type),
		role.TenantID,
		role.IsActive,
		now,
		now,
		role.CreatedBy,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	perms, err := linkPermissions(ctx, tx, role.ID, role.PermissionNames())
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}

	role.Permissions = perms
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// SetRolePermissions replaces the permission list of a role, keeping the given order
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, names []string) ([]Permission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireMutable(ctx, tx, roleID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return nil, fmt.Errorf("failed to clear role permissions: %w", err)
	}

	perms, err := linkPermissions(ctx, tx, roleID, names)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE roles SET updated_at = $1 WHERE id = $2`, time.Now(), roleID); err != nil {
		return nil, fmt.Errorf("failed to touch role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role permissions: %w", err)
	}
	return perms, nil
}

func linkPermissions(ctx context.Context, tx *sql.Tx, roleID int64, names []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(names))
	for i, name := range names {
		var p Permission
		var scope string
		err := tx.QueryRowContext(ctx, `
			SELECT id, name, resource, action, scope, is_system, description
			FROM permissions
			WHERE name = $1
		`, strings.ToLower(strings.TrimSpace(name))).Scan(
			&p.ID, &p.Name, &p.Resource, &p.Action, &scope, &p.IsSystem, &p.Description,
		)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up permission: %w", err)
		}
		p.Scope = PermissionScope(scope)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (role_id, permission_id) DO NOTHING
		`, roleID, p.ID, i); err != nil {
			return nil, fmt.Errorf("failed to link permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// GetRole retrieves a role by ID, trashed or not
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID)
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := s.attachPermissions(ctx, []*Role{role}); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRoleByName retrieves a live role by name, preferring the tenant's own
// role over a global one of the same name
func (s *Store) GetRoleByName(ctx context.Context, name string, tenantID *int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+roleColumns+`
		FROM roles
		WHERE name = $1 AND (tenant_id = $2 OR tenant_id IS NULL) AND trashed_at IS NULL
		ORDER BY tenant_id NULLS LAST
		LIMIT 1
	`, name, tenantID)
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := s.attachPermissions(ctx, []*Role{role}); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRolesByIDs loads live, active roles with their permissions. Missing,
// trashed and inactive roles are left out of the result.
func (s *Store) GetRolesByIDs(ctx context.Context, ids []int64) ([]*Role, error) {
	if len(ids) == 0 {
		return []*Role{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roleColumns+`
		FROM roles
		WHERE id = ANY($1) AND trashed_at IS NULL AND is_active = TRUE
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListRoles lists live roles visible to a tenant: its own plus global ones.
// A nil tenantID lists every live role.
func (s *Store) ListRoles(ctx context.Context, tenantID *int64) ([]*Role, error) {
	var rows *sql.Rows
	var err error
	if tenantID == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+roleColumns+`
			FROM roles
			WHERE trashed_at IS NULL
			ORDER BY name
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+roleColumns+`
			FROM roles
			WHERE trashed_at IS NULL AND (tenant_id = $1 OR tenant_id IS NULL)
			ORDER BY name
		`, *tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListTrashedRoles lists soft-deleted roles, most recently trashed first
func (s *Store) ListTrashedRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roleColumns+`
		FROM roles
		WHERE trashed_at IS NOT NULL
		ORDER BY trashed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trashed roles: %w", err)
	}
	return collectRoles(rows)
}

func collectRoles(rows *sql.Rows) ([]*Role, error) {
	defer rows.Close()

	roles := make([]*Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

func (s *Store) attachPermissions(ctx context.Context, roles []*Role) error {
	if len(roles) == 0 {
		return nil
	}
	byID := make(map[int64]*Role, len(roles))
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rp.role_id, p.id, p.name, p.resource, p.action, p.scope, p.is_system, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
		ORDER BY rp.role_id, rp.position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID int64
		var p Permission
		var scope string
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Resource, &p.Action, &scope, &p.IsSystem, &p.Description); err != nil {
			return fmt.Errorf("failed to scan role permission: %w", err)
		}
		p.Scope = PermissionScope(scope)
		if r, ok := byID[roleID]; ok {
			r.Permissions = append(r.Permissions, p)
		}
	}
	return rows.Err()
}

// TrashRole soft-deletes a role. Trashed roles stop resolving for assignments.
// SYSTEM roles cannot be trashed.
func (s *Store) TrashRole(ctx context.Context, roleID int64) error {
	if err := requireMutable(ctx, s.db, roleID); err != nil {
		return err
	}
	now := time.Now()
	return s.execOne(ctx, roleID, "trash role", `
		UPDATE roles SET trashed_at = $1, updated_at = $1
		WHERE id = $2 AND trashed_at IS NULL
	`, now, roleID)
}

// RestoreRole takes a role back out of the trash
func (s *Store) RestoreRole(ctx context.Context, roleID int64) error {
	return s.execOne(ctx, roleID, "restore role", `
		UPDATE roles SET trashed_at = NULL, updated_at = $1
		WHERE id = $2 AND trashed_at IS NOT NULL
	`, time.Now(), roleID)
}

// DeleteRolePermanently removes a trashed role and its permission links
func (s *Store) DeleteRolePermanently(ctx context.Context, roleID int64) error {
	var roleType string
	var trashedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT type, trashed_at FROM roles WHERE id = $1`, roleID).Scan(&roleType, &trashedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}
	if RoleType(roleType) == RoleTypeSystem {
		return fmt.Errorf("role %d: %w", roleID, ErrSystemRole)
	}
	if !trashedAt.Valid {
		return fmt.Errorf("role %d: %w", roleID, ErrNotTrashed)
	}

	return s.execOne(ctx, roleID, "delete role", `DELETE FROM roles WHERE id = $1`, roleID)
}

// requireMutable fails with ErrNotFound or ErrSystemRole unless the role
// exists and is not a SYSTEM role
func requireMutable(ctx context.Context, q rowQueryer, roleID int64) error {
	var roleType string
	err := q.QueryRowContext(ctx, `SELECT type FROM roles WHERE id = $1`, roleID).Scan(&roleType)
	if err == sql.ErrNoRows {
		return fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}
	if RoleType(roleType) == RoleTypeSystem {
		return fmt.Errorf("role %d: %w", roleID, ErrSystemRole)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, roleID int64, op string, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	return nil
}

// ListPermissions lists every registered permission
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, resource, action, scope, is_system, description
		FROM permissions
		ORDER BY resource, action
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]Permission, 0)
	for rows.Next() {
		var p Permission
		var scope string
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &scope, &p.IsSystem, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Scope = PermissionScope(scope)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return perms, nil
}

// EnsurePermissions registers permissions that are not yet present
func (s *Store) EnsurePermissions(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO permissions (name, resource, action, scope, is_system, description)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (name) DO NOTHING
		`, p.Name, p.Resource, p.Action, string(p.Scope), p.IsSystem, p.Description)
		if err != nil {
			return fmt.Errorf("failed to ensure permission %s: %w", p.Name, err)
		}
	}
	return nil
}
