package tenants

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a tenant or assignment does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when an assignment cannot move to the requested status
	ErrInvalidTransition = errors.New("invalid assignment status transition")
)

// TenantType classifies a tenant. CORE is the platform operator's own tenant.
type TenantType string

const (
	TypeCore       TenantType = "CORE"
	TypeBusiness   TenantType = "BUSINESS"
	TypeStartup    TenantType = "STARTUP"
	TypeEnterprise TenantType = "ENTERPRISE"
	TypeRetail     TenantType = "RETAIL"
	TypeTrial      TenantType = "TRIAL"
)

// Valid reports whether t is a known tenant type
func (t TenantType) Valid() bool {
	switch t {
	case TypeCore, TypeBusiness, TypeStartup, TypeEnterprise, TypeRetail, TypeTrial:
		return true
	}
	return false
}

// TenantStatus represents tenant status
type TenantStatus string

const (
	StatusActive    TenantStatus = "ACTIVE"
	StatusSuspended TenantStatus = "SUSPENDED"
	StatusArchived  TenantStatus = "ARCHIVED"
)

// DefaultCoreSlug is the slug that marks the core tenant when its type is not CORE
const DefaultCoreSlug = "core"

// Branding is the per-tenant look and feature set handed to the UI on a switch
type Branding struct {
	PrimaryColor string         `json:"primary_color,omitempty"`
	Theme        string         `json:"theme,omitempty"`
	Features     map[string]any `json:"features,omitempty"`
}

// Tenant is an isolated customer organization
type Tenant struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Type      TenantType   `json:"type"`
	Status    TenantStatus `json:"status"`
	Branding  Branding     `json:"branding"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsCore reports whether this is the core tenant. coreSlug may be empty,
// in which case only the type decides.
func (t *Tenant) IsCore(coreSlug string) bool {
	if t == nil {
		return false
	}
	if t.Type == TypeCore {
		return true
	}
	return coreSlug != "" && t.Slug == coreSlug
}

// IsActive reports whether the tenant accepts switches
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == StatusActive
}

// AssignmentStatus is the lifecycle state of a user-role-tenant binding
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "PENDING"
	AssignmentActive    AssignmentStatus = "ACTIVE"
	AssignmentInactive  AssignmentStatus = "INACTIVE"
	AssignmentSuspended AssignmentStatus = "SUSPENDED"
	AssignmentExpired   AssignmentStatus = "EXPIRED"
	AssignmentArchived  AssignmentStatus = "ARCHIVED"
)

// UserAssignment binds a user to a role within a tenant. Only ACTIVE
// assignments grant their role. ExpiresAt is advisory and never applied
// automatically.
type UserAssignment struct {
	ID         int64            `json:"id"`
	UserID     int64            `json:"user_id"`
	RoleID     int64            `json:"role_id"`
	TenantID   int64            `json:"tenant_id"`
	Status     AssignmentStatus `json:"status"`
	IsPrimary  bool             `json:"is_primary"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	AssignedBy *int64           `json:"assigned_by,omitempty"`
	AssignedAt time.Time        `json:"assigned_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// IsPastExpiry reports whether ExpiresAt lies before now
func (a *UserAssignment) IsPastExpiry(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// PrimaryConflict is a (user, tenant) pair holding more than one primary assignment
type PrimaryConflict struct {
	UserID        int64   `json:"user_id"`
	TenantID      int64   `json:"tenant_id"`
	AssignmentIDs []int64 `json:"assignment_ids"`
}

// CreateTenantRequest represents request to create a tenant
type CreateTenantRequest struct {
	Name     string     `json:"name"`
	Slug     string     `json:"slug,omitempty"`
	Type     TenantType `json:"type,omitempty"`
	Branding Branding   `json:"branding,omitempty"`
}

// CreateAssignmentRequest represents request to assign a role to a user in a tenant
type CreateAssignmentRequest struct {
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	IsPrimary bool       `json:"is_primary"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Activate  bool       `json:"activate"`
}
