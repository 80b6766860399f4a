package api

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
)

// Switcher moves a session between tenants
type Switcher interface {
	SwitchTenant(ctx context.Context, sess *session.Session, targetTenantID int64) (*session.TenantRoleContext, error)
	UpdateRoleContext(ctx context.Context, sess *session.Session) (*session.TenantRoleContext, error)
}

// RoleStore is the role administration surface of rbac.Store
type RoleStore interface {
	CreateRole(ctx context.Context, role *rbac.Role) error
	GetRole(ctx context.Context, roleID int64) (*rbac.Role, error)
	ListRoles(ctx context.Context, tenantID *int64) ([]*rbac.Role, error)
	ListTrashedRoles(ctx context.Context) ([]*rbac.Role, error)
	SetRolePermissions(ctx context.Context, roleID int64, names []string) ([]rbac.Permission, error)
	TrashRole(ctx context.Context, roleID int64) error
	RestoreRole(ctx context.Context, roleID int64) error
	DeleteRolePermanently(ctx context.Context, roleID int64) error
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
}

// AuditSearcher lists stored audit events
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.Filter) ([]*audit.Event, error)
}

// CreateSessionRequest starts a session. UserID is taken from the bearer
// token; in the body it must match the token or, under dev login, stands
// in for one.
type CreateSessionRequest struct {
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	// TenantID, when set, switches the new session straight into that tenant
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// SessionResponse describes a session
type SessionResponse struct {
	SessionID     string                     `json:"session_id"`
	User          *session.AuthUser          `json:"user"`
	CurrentTenant *session.CurrentTenant     `json:"current_tenant,omitempty"`
	RoleContext   *session.TenantRoleContext `json:"role_context,omitempty"`
}

// SwitchTenantRequest names the tenant to switch into
type SwitchTenantRequest struct {
	TenantID int64 `json:"tenant_id"`
}

// UpdateTenantStatusRequest changes a tenant's status
type UpdateTenantStatusRequest struct {
	Status string `json:"status"`
}

// CreateRoleRequest creates a role with an ordered permission list
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Level       string   `json:"level"`
	TenantID    *int64   `json:"tenant_id,omitempty"`
	Permissions []string `json:"permissions"`
}

// SetPermissionsRequest replaces a role's permission list
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}
