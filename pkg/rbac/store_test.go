package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roleRowColumns = []string{
	"id", "name", "display_name", "description", "level", "type", "tenant_id",
	"is_active", "trashed_at", "created_at", "updated_at", "created_by",
}

var rolePermissionColumns = []string{
	"role_id", "id", "name", "resource", "action", "scope", "is_system", "description",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func TestStore_GetRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	t.Run("with permissions in order", func(t *testing.T) {
		tenantID := int64(3)
		mock.ExpectQuery(`SELECT id, name, display_name, description, level, type, tenant_id, is_active, trashed_at, created_at, updated_at, created_by FROM roles WHERE id = \$1`).
			WithArgs(int64(10)).
			WillReturnRows(sqlmock.NewRows(roleRowColumns).
				AddRow(10, "ops", "Operations", "", "MANAGER", "TENANT", tenantID, true, nil, now, now, nil))
		mock.ExpectQuery(`FROM role_permissions rp\s+JOIN permissions p`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(rolePermissionColumns).
				AddRow(10, 2, PermManageRoles, "roles", "manage", "TENANT", true, "").
				AddRow(10, 1, PermAccessManager, "manager", "access", "TENANT", true, ""))

		role, err := store.GetRole(ctx, 10)
		require.NoError(t, err)

		assert.Equal(t, LevelManager, role.Level)
		assert.Equal(t, RoleTypeTenant, role.Type)
		require.NotNil(t, role.TenantID)
		assert.Equal(t, tenantID, *role.TenantID)
		assert.Nil(t, role.CreatedBy)
		assert.False(t, role.IsTrashed())
		assert.Equal(t, []string{PermManageRoles, PermAccessManager}, role.PermissionNames())
		assert.Equal(t, ScopeTenant, role.Permissions[0].Scope)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`FROM roles WHERE id = \$1`).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(roleRowColumns))

		_, err := store.GetRole(ctx, 99)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_CreateRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("links permissions", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles`).
			WithArgs("support", "Support", "", "USER", "CUSTOM", nil, true, sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectQuery(`FROM permissions\s+WHERE name = \$1`).
			WithArgs(PermManageUsers).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "resource", "action", "scope", "is_system", "description"}).
				AddRow(3, PermManageUsers, "users", "manage", "TENANT", true, "Manage tenant users"))
		mock.ExpectExec(`INSERT INTO role_permissions`).
			WithArgs(int64(5), int64(3), 0).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		role := &Role{
			Name:        "support",
			DisplayName: "Support",
			Level:       LevelUser,
			IsActive:    true,
			Permissions: []Permission{{Name: "Manage_Users"}},
		}
		err := store.CreateRole(ctx, role)
		require.NoError(t, err)

		assert.Equal(t, int64(5), role.ID)
		assert.Equal(t, RoleTypeCustom, role.Type)
		require.Len(t, role.Permissions, 1)
		assert.Equal(t, int64(3), role.Permissions[0].ID)
		assert.False(t, role.CreatedAt.IsZero())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown permission rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
		mock.ExpectQuery(`FROM permissions\s+WHERE name = \$1`).
			WithArgs("launch_rockets").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "resource", "action", "scope", "is_system", "description"}))
		mock.ExpectRollback()

		role := &Role{
			Name:        "astronaut",
			DisplayName: "Astronaut",
			Level:       LevelUser,
			Permissions: []Permission{{Name: "launch_rockets"}},
		}
		err := store.CreateRole(ctx, role)
		assert.ErrorIs(t, err, ErrUnknownPermission)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid level", func(t *testing.T) {
		err := store.CreateRole(ctx, &Role{Name: "x", Level: RoleLevel("ROOT")})
		assert.Error(t, err)
	})
}

func TestStore_TrashLifecycle(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()

	typeQuery := `SELECT type FROM roles WHERE id = \$1`
	typeRow := func(roleType RoleType) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"type"}).AddRow(string(roleType))
	}

	t.Run("trash", func(t *testing.T) {
		mock.ExpectQuery(typeQuery).WithArgs(int64(4)).WillReturnRows(typeRow(RoleTypeTenant))
		mock.ExpectExec(`UPDATE roles SET trashed_at = \$1, updated_at = \$1\s+WHERE id = \$2 AND trashed_at IS NULL`).
			WithArgs(sqlmock.AnyArg(), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.TrashRole(ctx, 4))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("trash already trashed", func(t *testing.T) {
		mock.ExpectQuery(typeQuery).WithArgs(int64(4)).WillReturnRows(typeRow(RoleTypeTenant))
		mock.ExpectExec(`UPDATE roles SET trashed_at`).
			WithArgs(sqlmock.AnyArg(), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.TrashRole(ctx, 4), ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("restore", func(t *testing.T) {
		mock.ExpectExec(`UPDATE roles SET trashed_at = NULL`).
			WithArgs(sqlmock.AnyArg(), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.RestoreRole(ctx, 4))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("permanent delete requires trash", func(t *testing.T) {
		mock.ExpectQuery(`SELECT type, trashed_at FROM roles WHERE id = \$1`).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"type", "trashed_at"}).AddRow("TENANT", nil))

		assert.ErrorIs(t, store.DeleteRolePermanently(ctx, 4), ErrNotTrashed)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("permanent delete", func(t *testing.T) {
		mock.ExpectQuery(`SELECT type, trashed_at FROM roles WHERE id = \$1`).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"type", "trashed_at"}).AddRow("TENANT", time.Now()))
		mock.ExpectExec(`DELETE FROM roles WHERE id = \$1`).
			WithArgs(int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.DeleteRolePermanently(ctx, 4))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_SystemRolesAreImmutable(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()

	typeQuery := `SELECT type FROM roles WHERE id = \$1`

	t.Run("trash", func(t *testing.T) {
		mock.ExpectQuery(typeQuery).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("SYSTEM"))

		assert.ErrorIs(t, store.TrashRole(ctx, 1), ErrSystemRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("permanent delete", func(t *testing.T) {
		mock.ExpectQuery(`SELECT type, trashed_at FROM roles WHERE id = \$1`).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"type", "trashed_at"}).AddRow("SYSTEM", time.Now()))

		assert.ErrorIs(t, store.DeleteRolePermanently(ctx, 1), ErrSystemRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set permissions", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(typeQuery).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("SYSTEM"))
		mock.ExpectRollback()

		_, err := store.SetRolePermissions(ctx, 1, []string{"manage_tenants"})
		assert.ErrorIs(t, err, ErrSystemRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set permissions on missing role", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(typeQuery).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.SetRolePermissions(ctx, 9, nil)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetRolesByIDs(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	t.Run("empty input skips the query", func(t *testing.T) {
		roles, err := store.GetRolesByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, roles)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("attaches permissions per role", func(t *testing.T) {
		mock.ExpectQuery(`WHERE id = ANY\(\$1\) AND trashed_at IS NULL AND is_active = TRUE`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(roleRowColumns).
				AddRow(1, "viewer", "Viewer", "", "USER", "SYSTEM", nil, true, nil, now, now, nil).
				AddRow(2, "admin", "Admin", "", "ADMIN", "SYSTEM", nil, true, nil, now, now, nil))
		mock.ExpectQuery(`FROM role_permissions rp`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(rolePermissionColumns).
				AddRow(2, 4, PermManageTenants, "tenants", "manage", "ALL", true, ""))

		roles, err := store.GetRolesByIDs(ctx, []int64{1, 2, 3})
		require.NoError(t, err)
		require.Len(t, roles, 2)
		assert.Empty(t, roles[0].Permissions)
		assert.Equal(t, []string{PermManageTenants}, roles[1].PermissionNames())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListPermissions(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`FROM permissions\s+ORDER BY resource, action`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "resource", "action", "scope", "is_system", "description"}).
			AddRow(1, PermAccessManager, "manager", "access", "TENANT", true, "Open the management console").
			AddRow(2, "export_reports", "reports", "export", "OWN", false, ""))

	perms, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "manager:access:TENANT", perms[0].Key())
	assert.Equal(t, ScopeOwn, perms[1].Scope)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsurePermissions(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	for _, p := range SystemPermissions() {
		mock.ExpectExec(`INSERT INTO permissions .* ON CONFLICT \(name\) DO NOTHING`).
			WithArgs(p.Name, p.Resource, p.Action, string(p.Scope), true, p.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, store.EnsurePermissions(context.Background(), SystemPermissions()))
	require.NoError(t, mock.ExpectationsWereMet())
}
