package inheritance

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

var (
	// ErrNotSuperAdmin is returned by the privileged switch for regular users
	ErrNotSuperAdmin = errors.New("user is not a super admin")
	// ErrTenantInactive is returned when switching into a suspended or archived tenant
	ErrTenantInactive = errors.New("tenant is not active")
)

// Directory is the tenant and role data the coordinator consults
type Directory interface {
	IsSuperAdmin(ctx context.Context, userID int64) (bool, error)
	GetTenant(ctx context.Context, tenantID int64) (*tenants.Tenant, error)
	UserRoleInTenant(ctx context.Context, userID, tenantID int64) (rbac.RoleResolution, error)
	SwitchAsSuperAdmin(ctx context.Context, userID, tenantID int64) (*tenants.Tenant, error)
}

type tenantReader interface {
	GetTenant(ctx context.Context, id int64) (*tenants.Tenant, error)
	ListActiveAssignments(ctx context.Context, userID int64) ([]*tenants.UserAssignment, error)
}

type roleReader interface {
	GetRolesByIDs(ctx context.Context, ids []int64) ([]*rbac.Role, error)
}

// DBDirectory answers directory queries from the tenants and rbac stores
type DBDirectory struct {
	tenants  tenantReader
	roles    roleReader
	coreSlug string
	logger   *observability.Logger
}

// NewDBDirectory creates a directory over the given stores
func NewDBDirectory(tenantSvc tenantReader, roles roleReader, coreSlug string, logger *observability.Logger) *DBDirectory {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &DBDirectory{
		tenants:  tenantSvc,
		roles:    roles,
		coreSlug: coreSlug,
		logger:   logger.WithField("component", "directory"),
	}
}

// activeRoles returns the user's ACTIVE assignments paired with their live
// roles, in assignment order (primary first)
func (d *DBDirectory) activeRoles(ctx context.Context, userID int64) ([]*tenants.UserAssignment, map[int64]*rbac.Role, error) {
	assignments, err := d.tenants.ListActiveAssignments(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(assignments) == 0 {
		return nil, nil, nil
	}

	seen := make(map[int64]bool, len(assignments))
	ids := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		if !seen[a.RoleID] {
			seen[a.RoleID] = true
			ids = append(ids, a.RoleID)
		}
	}

	roles, err := d.roles.GetRolesByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]*rbac.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	return assignments, byID, nil
}

// IsSuperAdmin reports whether the user holds an ACTIVE assignment to a
// SUPER_ADMIN-level role inside the core tenant
func (d *DBDirectory) IsSuperAdmin(ctx context.Context, userID int64) (bool, error) {
	assignments, roles, err := d.activeRoles(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load assignments: %w", err)
	}

	checked := make(map[int64]bool)
	for _, a := range assignments {
		role, ok := roles[a.RoleID]
		if !ok || role.Level != rbac.LevelSuperAdmin || checked[a.TenantID] {
			continue
		}
		checked[a.TenantID] = true

		tenant, err := d.tenants.GetTenant(ctx, a.TenantID)
		if errors.Is(err, tenants.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if tenant.IsCore(d.coreSlug) {
			return true, nil
		}
	}
	return false, nil
}

// GetTenant looks up a tenant by ID
func (d *DBDirectory) GetTenant(ctx context.Context, tenantID int64) (*tenants.Tenant, error) {
	return d.tenants.GetTenant(ctx, tenantID)
}

// UserRoleInTenant resolves the role the user holds in a tenant. Among
// several ACTIVE assignments the primary one wins, then the highest level.
// Roles owned by another tenant never resolve.
func (d *DBDirectory) UserRoleInTenant(ctx context.Context, userID, tenantID int64) (rbac.RoleResolution, error) {
	assignments, roles, err := d.activeRoles(ctx, userID)
	if err != nil {
		return rbac.NotAssigned(), fmt.Errorf("failed to resolve role: %w", err)
	}

	var (
		best        *rbac.Role
		bestPrimary bool
	)
	for _, a := range assignments {
		if a.TenantID != tenantID {
			continue
		}
		role, ok := roles[a.RoleID]
		if !ok {
			continue
		}
		if role.TenantID != nil && *role.TenantID != tenantID {
			continue
		}
		if best == nil ||
			(a.IsPrimary && !bestPrimary) ||
			(a.IsPrimary == bestPrimary && role.Level.Rank() > best.Level.Rank()) {
			best, bestPrimary = role, a.IsPrimary
		}
	}

	if best == nil {
		return rbac.NotAssigned(), nil
	}
	return rbac.Resolved(*best), nil
}

// SwitchAsSuperAdmin validates a privileged switch into a tenant
func (d *DBDirectory) SwitchAsSuperAdmin(ctx context.Context, userID, tenantID int64) (*tenants.Tenant, error) {
	isSuper, err := d.IsSuperAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !isSuper {
		return nil, ErrNotSuperAdmin
	}

	tenant, err := d.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		return nil, fmt.Errorf("tenant %s is %s: %w", tenant.Slug, tenant.Status, ErrTenantInactive)
	}

	d.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("Privileged tenant switch")
	return tenant, nil
}
