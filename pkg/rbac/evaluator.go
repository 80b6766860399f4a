package rbac

import "strings"

// Granular permission names that map onto capability flags
const (
	PermAccessManager  = "access_manager"
	PermManageTenants  = "manage_tenants"
	PermManageUsers    = "manage_users"
	PermManageRoles    = "manage_roles"
	PermManageSettings = "manage_settings"
)

var permissionCapabilities = map[string]Capability{
	PermAccessManager:  CapManager,
	PermManageTenants:  CapTenants,
	PermManageUsers:    CapUsers,
	PermManageRoles:    CapRoles,
	PermManageSettings: CapSettings,
}

// CapabilityForPermission returns the capability a permission name grants
func CapabilityForPermission(name string) (Capability, bool) {
	c, ok := permissionCapabilities[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// CalculateEffectivePermissions computes the capability flags for a role.
//
// Level defaults come first; recognized permission names are OR-ed on top
// and never clear a flag. isOriginalSuperAdmin keeps the tenant switcher
// reachable for a super admin acting inside another tenant.
func CalculateEffectivePermissions(role Role, isOriginalSuperAdmin bool) EffectivePermissions {
	return CalculateFromNames(string(role.Level), role.PermissionNames(), isOriginalSuperAdmin)
}

// CalculateFromNames is CalculateEffectivePermissions over raw strings
func CalculateFromNames(level string, permissionNames []string, isOriginalSuperAdmin bool) EffectivePermissions {
	ep := DefaultLevelTable().Defaults(ParseRoleLevel(level))

	for _, name := range permissionNames {
		if c, ok := CapabilityForPermission(name); ok {
			ep.grant(c)
		}
	}

	if isOriginalSuperAdmin {
		ep.grant(CapTenants)
	}

	return ep
}
