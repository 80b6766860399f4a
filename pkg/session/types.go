package session

import (
	"errors"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// Storage keys of the three session values
const (
	KeyRoleContext   = "tenantRoleContext"
	KeyCurrentTenant = "currentTenant"
	KeyAuthUser      = "authUser"
)

// ErrNoSession is returned when a request carries no session
var ErrNoSession = errors.New("no session")

// RoleSource records how the role in a context was obtained
type RoleSource string

const (
	// SourceResolved: the user's own assignment in the tenant
	SourceResolved RoleSource = "resolved"
	// SourceDefault: no assignment, the default USER role was substituted
	SourceDefault RoleSource = "default"
	// SourceFallback: the role lookup failed, the default USER role was substituted
	SourceFallback RoleSource = "fallback"
	// SourceCore: synthesized full access for a super admin in the core tenant
	SourceCore RoleSource = "core"
)

// TenantRoleContext is the computed role context for a user in their
// current tenant
type TenantRoleContext struct {
	UserID                   int64                     `json:"userId"`
	TenantID                 int64                     `json:"tenantId"`
	TenantName               string                    `json:"tenantName"`
	TenantSlug               string                    `json:"tenantSlug"`
	Role                     rbac.Role                 `json:"role"`
	RoleSource               RoleSource                `json:"roleSource"`
	IsOriginalSuperAdmin     bool                      `json:"isOriginalSuperAdmin"`
	IsCurrentlyImpersonating bool                      `json:"isCurrentlyImpersonating"`
	EffectivePermissions     rbac.EffectivePermissions `json:"effectivePermissions"`
	ResolvedAt               time.Time                 `json:"resolvedAt"`
	Generation               uint64                    `json:"generation"`
}

// CurrentTenant is the tenant summary kept next to the role context
type CurrentTenant struct {
	ID       int64              `json:"id"`
	Name     string             `json:"name"`
	Slug     string             `json:"slug"`
	Type     tenants.TenantType `json:"type"`
	Branding tenants.Branding   `json:"branding"`
}

// CurrentTenantFrom builds the summary for a tenant
func CurrentTenantFrom(t *tenants.Tenant) CurrentTenant {
	return CurrentTenant{
		ID:       t.ID,
		Name:     t.Name,
		Slug:     t.Slug,
		Type:     t.Type,
		Branding: t.Branding,
	}
}

// AuthUser is the authenticated user bound to the session
type AuthUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
