package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// TenantHandlers handles tenant and assignment administration
type TenantHandlers struct {
	tenantService tenants.Service
	roles         RoleStore
	coreSlug      string
}

// NewTenantHandlers creates a new TenantHandlers. roles is used to check
// the level of roles being assigned; without it only global callers may
// assign or transition.
func NewTenantHandlers(tenantService tenants.Service, roles RoleStore, coreSlug string) *TenantHandlers {
	return &TenantHandlers{tenantService: tenantService, roles: roles, coreSlug: coreSlug}
}

// RegisterRoutes registers tenant routes
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	router.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants/{id}", h.GetTenant).Methods("GET")
	router.HandleFunc("/tenants/{id}/status", h.UpdateTenantStatus).Methods("POST")

	// Assignments
	router.HandleFunc("/tenants/{id}/assignments", h.ListAssignments).Methods("GET")
	router.HandleFunc("/tenants/{id}/assignments", h.CreateAssignment).Methods("POST")
	router.HandleFunc("/assignments/conflicts", h.ListPrimaryConflicts).Methods("GET")
	router.HandleFunc("/assignments/{id}/{transition}", h.TransitionAssignment).Methods("POST")
}

// ListTenants lists every tenant, or only the caller's own outside core
func (h *TenantHandlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	list, err := h.tenantService.ListTenants(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	scope := scopeFrom(r)
	visible := make([]*tenants.Tenant, 0, len(list))
	for _, t := range list {
		if scope.owns(t.ID) {
			visible = append(visible, t)
		}
	}
	httputil.WriteSuccess(w, visible)
}

// CreateTenant creates a tenant
func (h *TenantHandlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenants.CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.Type != "" && !req.Type.Valid() {
		httputil.WriteBadRequest(w, "invalid tenant type")
		return
	}
	if !scopeFrom(r).global() {
		httputil.WriteForbidden(w, "only core super admins create tenants")
		return
	}

	tenant := &tenants.Tenant{
		Name:     req.Name,
		Slug:     req.Slug,
		Type:     req.Type,
		Branding: req.Branding,
	}
	if tenant.Slug == "" {
		tenant.Slug = tenants.GenerateSlug(tenant.Name)
	}

	ctx := r.Context()
	if tenant.IsCore(h.coreSlug) {
		existing, err := h.coreTenant(ctx)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if existing != nil {
			httputil.WriteConflict(w, "a core tenant already exists")
			return
		}
	}
	if err := h.tenantService.CreateTenant(ctx, tenant); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, tenant)
}

// GetTenant retrieves a tenant by ID
func (h *TenantHandlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !scopeFrom(r).owns(id) {
		httputil.WriteNotFound(w, "tenant not found")
		return
	}
	tenant, err := h.tenantService.GetTenant(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}

// UpdateTenantStatus changes a tenant's status
func (h *TenantHandlers) UpdateTenantStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateTenantStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	status := tenants.TenantStatus(strings.ToUpper(req.Status))
	switch status {
	case tenants.StatusActive, tenants.StatusSuspended, tenants.StatusArchived:
	default:
		httputil.WriteBadRequest(w, "invalid tenant status")
		return
	}
	if !scopeFrom(r).global() {
		httputil.WriteForbidden(w, "only core super admins change tenant status")
		return
	}

	ctx := r.Context()
	tenant, err := h.tenantService.GetTenant(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tenant.IsCore(h.coreSlug) && status != tenants.StatusActive {
		httputil.WriteConflict(w, "the core tenant must stay active")
		return
	}

	if err := h.tenantService.UpdateTenantStatus(ctx, id, status); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListAssignments lists a tenant's assignments
func (h *TenantHandlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !scopeFrom(r).owns(id) {
		httputil.WriteNotFound(w, "tenant not found")
		return
	}
	list, err := h.tenantService.ListTenantAssignments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateAssignment assigns a role to a user in the tenant
func (h *TenantHandlers) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req tenants.CreateAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.RoleID <= 0 {
		httputil.WriteBadRequest(w, "user_id and role_id are required")
		return
	}
	scope := scopeFrom(r)
	if !scope.owns(tenantID) {
		httputil.WriteNotFound(w, "tenant not found")
		return
	}

	ctx := r.Context()
	if _, err := h.tenantService.GetTenant(ctx, tenantID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.roles != nil {
		role, err := h.roles.GetRole(ctx, req.RoleID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if role.TrashedAt != nil || !role.IsActive {
			httputil.WriteConflict(w, "role is not assignable")
			return
		}
		if role.TenantID != nil && *role.TenantID != tenantID {
			httputil.WriteBadRequest(w, "role belongs to another tenant")
			return
		}
		if !scope.outranks(role.Level) {
			httputil.WriteForbidden(w, "cannot assign a role above your own level")
			return
		}
	} else if !scope.global() {
		httputil.WriteForbidden(w, "role administration is not configured")
		return
	}

	a := &tenants.UserAssignment{
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		TenantID:  tenantID,
		IsPrimary: req.IsPrimary,
		ExpiresAt: req.ExpiresAt,
	}
	if req.Activate {
		a.Status = tenants.AssignmentActive
	}
	if by, ok := callerID(r); ok {
		a.AssignedBy = &by
	}

	if err := h.tenantService.CreateAssignment(ctx, a); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, a)
}

// TransitionAssignment applies activate, suspend, deactivate or archive
func (h *TenantHandlers) TransitionAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	t, ok := tenants.ParseTransition(mux.Vars(r)["transition"])
	if !ok {
		httputil.WriteNotFound(w, "unknown transition")
		return
	}

	ctx := r.Context()
	scope := scopeFrom(r)
	if !scope.global() {
		current, err := h.tenantService.GetAssignment(ctx, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !scope.owns(current.TenantID) {
			httputil.WriteNotFound(w, "assignment not found")
			return
		}
		if h.roles == nil {
			httputil.WriteForbidden(w, "role administration is not configured")
			return
		}
		role, err := h.roles.GetRole(ctx, current.RoleID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !scope.outranks(role.Level) {
			httputil.WriteForbidden(w, "assignment is above your own level")
			return
		}
	}

	a, err := h.tenantService.TransitionAssignment(ctx, id, t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, a)
}

// ListPrimaryConflicts lists users holding more than one primary
// assignment in a tenant
func (h *TenantHandlers) ListPrimaryConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.tenantService.ListPrimaryConflicts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	scope := scopeFrom(r)
	visible := make([]tenants.PrimaryConflict, 0, len(conflicts))
	for _, c := range conflicts {
		if scope.owns(c.TenantID) {
			visible = append(visible, c)
		}
	}
	httputil.WriteSuccess(w, visible)
}

// coreTenant returns the existing core tenant, or nil
func (h *TenantHandlers) coreTenant(ctx context.Context) (*tenants.Tenant, error) {
	list, err := h.tenantService.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range list {
		if t.IsCore(h.coreSlug) {
			return t, nil
		}
	}
	return nil, nil
}
