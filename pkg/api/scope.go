package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
)

// callerScope is what the caller may administer, taken from the session's
// role context. Only a super admin operating in the core tenant is global;
// everyone else, an impersonating super admin included, is confined to the
// active tenant and to role levels no higher than their own.
type callerScope struct {
	tenantID int64
	level    rbac.RoleLevel
	perms    rbac.EffectivePermissions
}

type scopeKey struct{}

func (c callerScope) global() bool {
	return c.perms.IsSuperAdmin
}

// owns reports whether the caller administers tenantID
func (c callerScope) owns(tenantID int64) bool {
	return c.global() || c.tenantID == tenantID
}

// canRead reports whether a role is visible: global roles are, tenant roles
// only to their tenant
func (c callerScope) canRead(role *rbac.Role) bool {
	return role.TenantID == nil || c.owns(*role.TenantID)
}

// canManage reports whether the caller may change a role. Global roles are
// left to global callers.
func (c callerScope) canManage(role *rbac.Role) bool {
	if c.global() {
		return true
	}
	return role.TenantID != nil && *role.TenantID == c.tenantID && rbac.AtLeast(c.level, role.Level)
}

// outranks reports whether the caller may create or assign a role at level
func (c callerScope) outranks(level rbac.RoleLevel) bool {
	return c.global() || rbac.AtLeast(c.level, level)
}

// ungrantable maps each permission the caller may not hand out to the
// capability it would confer. A capability can only be granted by someone
// who holds it.
func (c callerScope) ungrantable(names []string) map[string]string {
	if c.global() {
		return nil
	}
	denied := map[string]string{}
	for _, name := range names {
		if capability, ok := rbac.CapabilityForPermission(name); ok && !c.perms.Has(capability) {
			denied[name] = string(capability)
		}
	}
	return denied
}

// requireScope loads the caller's role context for the admin handlers
func requireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := session.FromContext(ctx)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		rc, err := sess.RoleContext(ctx)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if rc == nil {
			httputil.WriteForbidden(w, "no active tenant")
			return
		}

		scope := callerScope{
			tenantID: rc.TenantID,
			level:    rc.Role.Level,
			perms:    rc.EffectivePermissions,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, scopeKey{}, scope)))
	})
}

// scopeFrom returns the scope set by requireScope. Without one the caller
// is confined to nothing.
func scopeFrom(r *http.Request) callerScope {
	scope, _ := r.Context().Value(scopeKey{}).(callerScope)
	return scope
}

// writeUngrantable answers 403 listing the permissions the caller tried to grant
func writeUngrantable(w http.ResponseWriter, denied map[string]string) {
	names := make([]string, 0, len(denied))
	for name := range denied {
		names = append(names, name)
	}
	sort.Strings(names)
	details := make(map[string]string, len(denied))
	for _, name := range names {
		details[name] = "requires capability " + denied[name]
	}
	httputil.WriteDetailedError(w, http.StatusForbidden, "cannot grant permissions you do not hold", details)
}
