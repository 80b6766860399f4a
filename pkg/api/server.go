package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/events"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/session"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// Deps are the collaborators the API server is built from. Roles, Audit
// search, Metrics and the rate limiter are optional.
type Deps struct {
	Sessions    *session.Store
	Cookies     *middleware.SessionMiddleware
	Coordinator Switcher
	Tenants     tenants.Service
	Roles       RoleStore
	AuditSearch AuditSearcher

	// Tokens authenticates session creation. DevLogin lets a request without
	// a token name any user; it must stay off outside local development.
	Tokens   auth.Validator
	DevLogin bool
	CoreSlug string

	// Console decides browser routes; AdminGuard protects the JSON admin API
	Console    *guard.Guard
	AdminGuard *guard.Guard

	Bus         *events.Bus
	Audit       audit.Logger
	Metrics     *observability.Metrics
	SwitchLimit middleware.Limiter
	Logger      *observability.Logger
}

// Server represents the tenantgate API server
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer creates a new API server with every route registered
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoopLogger{}
	}
	if deps.Cookies == nil {
		deps.Cookies = middleware.NewSessionMiddleware(deps.Sessions, "", true)
	}
	if deps.CoreSlug == "" {
		deps.CoreSlug = tenants.DefaultCoreSlug
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID, middleware.Logger(s.deps.Logger), middleware.Recovery)
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.deps.Cookies.Handler)

	sessionHandlers := NewSessionHandlers(s.deps)
	sessionHandlers.RegisterRoutes(api)

	// Admin routes run through the guard in API mode
	admin := api.MatcherFunc(adminPath).Subrouter()
	if s.deps.AdminGuard != nil {
		admin.Use(s.deps.AdminGuard.Middleware(guard.MiddlewareOptions{
			API:    true,
			Bus:    s.deps.Bus,
			Audit:  s.deps.Audit,
			Logger: s.deps.Logger,
		}))
	}
	admin.Use(requireScope)

	NewTenantHandlers(s.deps.Tenants, s.deps.Roles, s.deps.CoreSlug).RegisterRoutes(admin)
	if s.deps.Roles != nil {
		NewRoleHandlers(s.deps.Roles).RegisterRoutes(admin)
	}
	if s.deps.AuditSearch != nil {
		NewAuditHandlers(s.deps.AuditSearch).RegisterRoutes(admin)
	}
}

// adminPath matches requests under any prefix of guard.APIRules
func adminPath(r *http.Request, _ *mux.RouteMatch) bool {
	for _, rule := range guard.APIRules() {
		if r.URL.Path == rule.Pattern || strings.HasPrefix(r.URL.Path, rule.Pattern+"/") {
			return true
		}
	}
	return false
}

// Router exposes the router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in OpenTelemetry HTTP instrumentation
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "tenantgate-api")
}
