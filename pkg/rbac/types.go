package rbac

import (
	"strings"
	"time"
)

// RoleLevel is the ordered rank of a role. Levels decide the default
// capability flags; granular permissions can only add to them.
type RoleLevel string

const (
	LevelGuest      RoleLevel = "GUEST"
	LevelUser       RoleLevel = "USER"
	LevelManager    RoleLevel = "MANAGER"
	LevelAdmin      RoleLevel = "ADMIN"
	LevelSuperAdmin RoleLevel = "SUPER_ADMIN"
)

// ParseRoleLevel normalizes a level string. Unknown values are returned
// as-is (upper-cased) and rank below GUEST.
func ParseRoleLevel(s string) RoleLevel {
	return RoleLevel(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid reports whether the level is one of the known ranks
func (l RoleLevel) Valid() bool {
	return l.Rank() >= 0
}

// RoleType describes who owns a role definition
type RoleType string

const (
	RoleTypeSystem RoleType = "SYSTEM"
	RoleTypeTenant RoleType = "TENANT"
	RoleTypeCustom RoleType = "CUSTOM"
)

// PermissionScope bounds the records a permission applies to
type PermissionScope string

const (
	ScopeOwn    PermissionScope = "OWN"
	ScopeTenant PermissionScope = "TENANT"
	ScopeAll    PermissionScope = "ALL"
)

// Permission is a named resource + action + scope triple
type Permission struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Resource    string          `json:"resource"`
	Action      string          `json:"action"`
	Scope       PermissionScope `json:"scope"`
	IsSystem    bool            `json:"is_system"`
	Description string          `json:"description,omitempty"`
}

// Key returns the resource:action:scope form of the permission
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action + ":" + string(p.Scope)
}

// Role is a named, levelled set of permissions. A role with TrashedAt set
// is soft-deleted and no longer resolves for assignments.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description,omitempty"`
	Level       RoleLevel    `json:"level"`
	Type        RoleType     `json:"type"`
	TenantID    *int64       `json:"tenant_id,omitempty"` // nil for global roles
	IsActive    bool         `json:"is_active"`
	Permissions []Permission `json:"permissions"`
	TrashedAt   *time.Time   `json:"trashed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CreatedBy   *int64       `json:"created_by,omitempty"`
}

// PermissionNames returns the names of the role's permissions in order
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// IsTrashed reports whether the role has been moved to the trash
func (r Role) IsTrashed() bool {
	return r.TrashedAt != nil
}

// DefaultRole is substituted when a user has no resolvable role in a
// tenant: USER level, no permissions.
func DefaultRole() Role {
	return Role{
		Name:        "default-user",
		DisplayName: "User",
		Level:       LevelUser,
		Type:        RoleTypeSystem,
		IsActive:    true,
		Permissions: []Permission{},
	}
}

// SystemPermissions returns the granular permissions recognized by the
// evaluator. They are seeded as system permissions and cannot be removed.
func SystemPermissions() []Permission {
	return []Permission{
		{Name: PermAccessManager, Resource: "manager", Action: "access", Scope: ScopeTenant, IsSystem: true, Description: "Open the management console"},
		{Name: PermManageTenants, Resource: "tenants", Action: "manage", Scope: ScopeAll, IsSystem: true, Description: "List and switch tenants"},
		{Name: PermManageUsers, Resource: "users", Action: "manage", Scope: ScopeTenant, IsSystem: true, Description: "Manage tenant users"},
		{Name: PermManageRoles, Resource: "roles", Action: "manage", Scope: ScopeTenant, IsSystem: true, Description: "Manage tenant roles"},
		{Name: PermManageSettings, Resource: "settings", Action: "manage", Scope: ScopeTenant, IsSystem: true, Description: "Manage tenant settings"},
	}
}
