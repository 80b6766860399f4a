package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// RoleHandlers handles role and permission administration
type RoleHandlers struct {
	roles RoleStore
}

// NewRoleHandlers creates a new RoleHandlers
func NewRoleHandlers(roles RoleStore) *RoleHandlers {
	return &RoleHandlers{roles: roles}
}

// RegisterRoutes registers role routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles/trash", h.ListTrashedRoles).Methods("GET")
	router.HandleFunc("/roles/{id:[0-9]+}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id:[0-9]+}", h.DeleteRole).Methods("DELETE")
	router.HandleFunc("/roles/{id:[0-9]+}/permissions", h.SetPermissions).Methods("PUT")
	router.HandleFunc("/roles/{id:[0-9]+}/trash", h.TrashRole).Methods("POST")
	router.HandleFunc("/roles/{id:[0-9]+}/restore", h.RestoreRole).Methods("POST")

	router.HandleFunc("/permissions", h.ListPermissions).Methods("GET")
}

// ListRoles lists live roles, optionally narrowed to ?tenant_id=. Callers
// outside the core tenant only ever see their own tenant's roles.
func (h *RoleHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParseQueryInt64(r, "tenant_id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid tenant_id")
		return
	}
	scope := scopeFrom(r)
	if !scope.global() {
		if tenantID != nil && !scope.owns(*tenantID) {
			httputil.WriteForbidden(w, "tenant is outside your scope")
			return
		}
		tenantID = &scope.tenantID
	}
	roles, err := h.roles.ListRoles(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole creates a role
func (h *RoleHandlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	level := rbac.RoleLevel(strings.ToUpper(req.Level))
	if !level.Valid() {
		httputil.WriteBadRequest(w, "invalid role level")
		return
	}

	role := &rbac.Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Level:       level,
		Type:        rbac.RoleTypeCustom,
		TenantID:    req.TenantID,
		IsActive:    true,
		Permissions: make([]rbac.Permission, 0, len(req.Permissions)),
	}
	if role.DisplayName == "" {
		role.DisplayName = role.Name
	}

	scope := scopeFrom(r)
	if !scope.global() {
		if role.TenantID == nil {
			role.TenantID = &scope.tenantID
		}
		if !scope.owns(*role.TenantID) {
			httputil.WriteForbidden(w, "tenant is outside your scope")
			return
		}
	}
	if !scope.outranks(level) {
		httputil.WriteForbidden(w, "cannot create a role above your own level")
		return
	}
	if denied := scope.ungrantable(req.Permissions); len(denied) > 0 {
		writeUngrantable(w, denied)
		return
	}

	if role.TenantID != nil {
		role.Type = rbac.RoleTypeTenant
	}
	for _, name := range req.Permissions {
		role.Permissions = append(role.Permissions, rbac.Permission{Name: name})
	}
	if by, ok := callerID(r); ok {
		role.CreatedBy = &by
	}

	if err := h.roles.CreateRole(r.Context(), role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole retrieves a role by ID
func (h *RoleHandlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !scopeFrom(r).canRead(role) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	httputil.WriteSuccess(w, role)
}

// SetPermissions replaces a role's permission list
func (h *RoleHandlers) SetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req SetPermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !h.loadManaged(w, r, id) {
		return
	}
	if denied := scopeFrom(r).ungrantable(req.Permissions); len(denied) > 0 {
		writeUngrantable(w, denied)
		return
	}
	perms, err := h.roles.SetRolePermissions(r.Context(), id, req.Permissions)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// ListTrashedRoles lists soft-deleted roles
func (h *RoleHandlers) ListTrashedRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListTrashedRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	scope := scopeFrom(r)
	visible := make([]*rbac.Role, 0, len(roles))
	for _, role := range roles {
		if scope.canRead(role) {
			visible = append(visible, role)
		}
	}
	httputil.WriteSuccess(w, visible)
}

// TrashRole moves a role to the trash
func (h *RoleHandlers) TrashRole(w http.ResponseWriter, r *http.Request) {
	h.roleOp(w, r, h.roles.TrashRole)
}

// RestoreRole brings a role back from the trash
func (h *RoleHandlers) RestoreRole(w http.ResponseWriter, r *http.Request) {
	h.roleOp(w, r, h.roles.RestoreRole)
}

// DeleteRole permanently deletes a trashed role
func (h *RoleHandlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	h.roleOp(w, r, h.roles.DeleteRolePermanently)
}

func (h *RoleHandlers) roleOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, roleID int64) error) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.loadManaged(w, r, id) {
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// loadManaged checks the caller may change role id, answering the request
// when not. System roles are never changed through the API.
func (h *RoleHandlers) loadManaged(w http.ResponseWriter, r *http.Request, id int64) bool {
	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return false
	}
	scope := scopeFrom(r)
	switch {
	case !scope.canRead(role):
		httputil.WriteNotFound(w, "role not found")
		return false
	case role.Type == rbac.RoleTypeSystem:
		httputil.WriteForbidden(w, rbac.ErrSystemRole.Error())
		return false
	case !scope.canManage(role):
		httputil.WriteForbidden(w, "role is outside your scope")
		return false
	}
	return true
}

// ListPermissions lists every registered permission
func (h *RoleHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.roles.ListPermissions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}
