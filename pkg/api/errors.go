package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/inheritance"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// writeServiceError maps a domain error to its HTTP status. Unknown errors
// are logged and answered with 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenants.ErrNotFound), errors.Is(err, rbac.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, inheritance.ErrNotAuthenticated),
		errors.Is(err, auth.ErrInvalidToken):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, inheritance.ErrNotSuperAdmin), errors.Is(err, rbac.ErrSystemRole):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, tenants.ErrInvalidTransition),
		errors.Is(err, rbac.ErrNotTrashed),
		errors.Is(err, inheritance.ErrSuperseded),
		errors.Is(err, inheritance.ErrNoActiveTenant),
		errors.Is(err, inheritance.ErrTenantInactive):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, rbac.ErrUnknownPermission):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		w.WriteHeader(499)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
