package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/session"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// SessionHandlers serves the caller's own session: login, role context,
// tenant switching and route checks
type SessionHandlers struct {
	sessions    *session.Store
	cookies     *middleware.SessionMiddleware
	coordinator Switcher
	tenants     tenants.Service
	console     *guard.Guard
	switchLimit middleware.Limiter
	tokens      auth.Validator
	devLogin    bool
}

// NewSessionHandlers creates session handlers from the server deps
func NewSessionHandlers(deps Deps) *SessionHandlers {
	return &SessionHandlers{
		sessions:    deps.Sessions,
		cookies:     deps.Cookies,
		coordinator: deps.Coordinator,
		tenants:     deps.Tenants,
		console:     deps.Console,
		switchLimit: deps.SwitchLimit,
		tokens:      deps.Tokens,
		devLogin:    deps.DevLogin,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandlers) RegisterRoutes(router *mux.Router) {
	tokenAuth := middleware.NewAuthMiddleware(h.tokens, h.devLogin)
	router.Handle("/session", tokenAuth.Handler(http.HandlerFunc(h.CreateSession))).Methods("POST")

	authed := router.PathPrefix("/session").Subrouter()
	authed.Use(middleware.RequireSession)
	authed.HandleFunc("", h.GetSession).Methods("GET")
	authed.HandleFunc("", h.Logout).Methods("DELETE")
	authed.HandleFunc("/context", h.GetContext).Methods("GET")
	authed.HandleFunc("/context", h.ClearContext).Methods("DELETE")
	authed.HandleFunc("/context/refresh", h.RefreshContext).Methods("POST")
	authed.HandleFunc("/tenants", h.ListMyTenants).Methods("GET")
	authed.HandleFunc("/routes", h.CheckRoute).Methods("GET")

	var switchHandler http.Handler = http.HandlerFunc(h.SwitchTenant)
	if h.switchLimit != nil {
		switchHandler = middleware.RateLimit(h.switchLimit)(switchHandler)
	}
	authed.Handle("/tenant", switchHandler).Methods("POST")
}

// CreateSession starts a session for the bearer token's user. With dev
// login enabled a request without a token names the user in the body.
func (h *SessionHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := req.UserID
	if token := middleware.GetAuthToken(r); token != nil {
		if userID != 0 && userID != token.UserID {
			httputil.WriteForbidden(w, "user_id does not match the token")
			return
		}
		userID = token.UserID
	} else {
		if !h.devLogin {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}
		if userID <= 0 {
			httputil.WriteBadRequest(w, "user_id is required")
			return
		}
		observability.FromContext(ctx).WithField("user_id", userID).Warn("Session created through dev login")
	}

	user := session.AuthUser{ID: userID, Email: req.Email, Name: req.Name}
	sess, err := h.sessions.NewSession(ctx, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := SessionResponse{SessionID: sess.ID(), User: &user}
	if req.TenantID != nil {
		rc, err := h.coordinator.SwitchTenant(ctx, sess, *req.TenantID)
		if err != nil {
			if logoutErr := sess.Logout(ctx); logoutErr != nil {
				observability.FromContext(ctx).WithError(logoutErr).Warn("Failed to discard session")
			}
			writeServiceError(w, r, err)
			return
		}
		resp.RoleContext = rc
		resp.CurrentTenant, _ = sess.CurrentTenant(ctx)
	}

	h.cookies.SetCookie(w, sess)
	httputil.WriteCreated(w, resp)
}

// GetSession describes the caller's session
func (h *SessionHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := session.FromContext(ctx)

	user, err := sess.AuthUser(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user == nil {
		httputil.WriteUnauthorized(w, "session is not authenticated")
		return
	}
	current, err := sess.CurrentTenant(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	rc, err := sess.RoleContext(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, SessionResponse{
		SessionID:     sess.ID(),
		User:          user,
		CurrentTenant: current,
		RoleContext:   rc,
	})
}

// Logout wipes the session and expires the cookie
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := sess.Logout(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cookies.ClearCookie(w)
	httputil.WriteNoContent(w)
}

// GetContext returns the stored role context
func (h *SessionHandlers) GetContext(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	rc, err := sess.RoleContext(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rc == nil {
		httputil.WriteNotFound(w, "no role context")
		return
	}
	httputil.WriteSuccess(w, rc)
}

// ClearContext drops the role context, leaving the user signed in
func (h *SessionHandlers) ClearContext(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := sess.ClearRoleContext(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RefreshContext recomputes the role context for the current tenant
func (h *SessionHandlers) RefreshContext(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	rc, err := h.coordinator.UpdateRoleContext(r.Context(), sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rc)
}

// SwitchTenant moves the session into another tenant
func (h *SessionHandlers) SwitchTenant(w http.ResponseWriter, r *http.Request) {
	var req SwitchTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TenantID <= 0 {
		httputil.WriteBadRequest(w, "tenant_id is required")
		return
	}

	sess, _ := session.FromContext(r.Context())
	rc, err := h.coordinator.SwitchTenant(r.Context(), sess, req.TenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rc)
}

// ListMyTenants lists the tenants the caller holds an active assignment in
func (h *SessionHandlers) ListMyTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := session.FromContext(ctx)
	user, err := sess.AuthUser(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user == nil {
		httputil.WriteUnauthorized(w, "session is not authenticated")
		return
	}

	list, err := h.tenants.ListTenantsForUser(ctx, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CheckRoute reports whether the session may open ?path=
func (h *SessionHandlers) CheckRoute(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		httputil.WriteBadRequest(w, "path is required")
		return
	}
	if h.console == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "route guard not configured")
		return
	}

	sess, _ := session.FromContext(r.Context())
	d, err := h.console.Decide(r.Context(), sess, path)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}
