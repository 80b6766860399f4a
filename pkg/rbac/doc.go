// Package rbac holds the role and permission model of tenantgate and the
// evaluator that turns a role into capability flags.
//
// # Levels
//
// Every role carries a level. Levels are ordered and each one grants a
// fixed set of capabilities:
//
//	GUEST        -
//	USER         -
//	MANAGER      manager, users
//	ADMIN        manager, users, roles, settings
//	SUPER_ADMIN  all seven flags
//
// # Granular permissions
//
// Permission names recognized by the evaluator add a capability on top of
// the level defaults and never remove one:
//
//	access_manager   -> manager
//	manage_tenants   -> tenants
//	manage_users     -> users
//	manage_roles     -> roles
//	manage_settings  -> settings
//
// A super admin acting inside another tenant is evaluated with
// isOriginalSuperAdmin set, which keeps the tenants capability so the
// switcher can take them back to the core tenant.
//
// # Usage
//
//	store := rbac.NewStore(db)
//	role, err := store.GetRole(ctx, roleID)
//	if err != nil {
//	    return err
//	}
//	ep := rbac.CalculateEffectivePermissions(*role, false)
//	if ep.Has(rbac.CapRoles) {
//	    // show the roles screen
//	}
//
// Roles are soft-deleted through TrashRole; trashed roles no longer resolve
// for assignments until restored. DeleteRolePermanently only accepts roles
// that are already in the trash.
package rbac
