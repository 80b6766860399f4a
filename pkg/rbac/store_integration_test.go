//go:build integration

package rbac

import (
	"context"
	"database/sql"
	"testing"

	"github.com/platinummonkey/tenantgate/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrateRBAC(ctx context.Context, db *sql.DB) error {
	return RunMigrations(ctx, db, nil)
}

func TestStoreIntegration_RoleLifecycle(t *testing.T) {
	db, cleanup := storagetest.SetupPostgres(t, migrateRBAC)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(db)

	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(SystemPermissions()))

	tenantID := int64(42)
	role := &Role{
		Name:        "tenant-ops",
		DisplayName: "Tenant Ops",
		Level:       LevelManager,
		Type:        RoleTypeTenant,
		TenantID:    &tenantID,
		IsActive:    true,
		Permissions: []Permission{{Name: PermManageRoles}, {Name: PermAccessManager}},
	}
	require.NoError(t, store.CreateRole(ctx, role))

	loaded, err := store.GetRoleByName(ctx, "tenant-ops", &tenantID)
	require.NoError(t, err)
	assert.Equal(t, role.ID, loaded.ID)
	assert.Equal(t, []string{PermManageRoles, PermAccessManager}, loaded.PermissionNames())

	ep := CalculateEffectivePermissions(*loaded, false)
	assert.True(t, ep.CanAccessRoles)
	assert.False(t, ep.CanAccessSettings)

	require.NoError(t, store.TrashRole(ctx, role.ID))

	live, err := store.GetRolesByIDs(ctx, []int64{role.ID})
	require.NoError(t, err)
	assert.Empty(t, live)

	trashed, err := store.ListTrashedRoles(ctx)
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.True(t, trashed[0].IsTrashed())

	require.NoError(t, store.RestoreRole(ctx, role.ID))
	assert.ErrorIs(t, store.DeleteRolePermanently(ctx, role.ID), ErrNotTrashed)

	require.NoError(t, store.TrashRole(ctx, role.ID))
	require.NoError(t, store.DeleteRolePermanently(ctx, role.ID))

	_, err = store.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
