package guard

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/events"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/session"
)

// MiddlewareOptions configures the route wrapper
type MiddlewareOptions struct {
	// FallbackPath receives denied navigations
	FallbackPath string
	// LoginPath receives requests whose access could not be checked
	LoginPath string
	// API answers with JSON status codes instead of redirects
	API bool

	Bus    *events.Bus
	Audit  audit.Logger
	Logger *observability.Logger
}

func (o *MiddlewareOptions) setDefaults() {
	if o.FallbackPath == "" {
		o.FallbackPath = "/"
	}
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.Audit == nil {
		o.Audit = audit.NoopLogger{}
	}
	if o.Logger == nil {
		o.Logger = observability.NopLogger()
	}
}

// Middleware gates every request through the guard. A denied request is
// sent to the fallback path with a toast; a request whose check fails is
// treated as unauthenticated and sent to login.
func (g *Guard) Middleware(opts MiddlewareOptions) mux.MiddlewareFunc {
	opts.setDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			path := r.URL.Path

			sess, err := session.FromContext(ctx)
			if err != nil {
				g.unauthenticated(w, r, opts)
				return
			}

			d, err := g.Decide(ctx, sess, path)
			if err != nil {
				observability.FromContext(ctx).WithError(err).Warn("Route check failed")
				g.unauthenticated(w, r, opts)
				return
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			g.denied(ctx, sess, d, opts)
			if opts.API {
				httputil.WriteJSON(w, http.StatusForbidden, map[string]interface{}{
					"error":    "forbidden",
					"decision": d,
				})
				return
			}
			if path == opts.FallbackPath {
				httputil.WriteForbidden(w, d.Reason)
				return
			}
			http.Redirect(w, r, opts.FallbackPath, http.StatusFound)
		})
	}
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request, opts MiddlewareOptions) {
	if opts.API {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	target := opts.LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

func (g *Guard) denied(ctx context.Context, sess *session.Session, d Decision, opts MiddlewareOptions) {
	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"path":   d.Path,
		"policy": d.Policy,
		"reason": d.Reason,
	})
	logger.Info("Route access denied")

	if opts.Bus != nil {
		opts.Bus.Publish(ctx, events.Toast(sess.ID(), "error", "You do not have permission to open "+d.Path))
	}

	event := &audit.Event{
		Type:      audit.EventTypeRouteDenied,
		Status:    audit.EventStatusDenied,
		SessionID: sess.ID(),
		Message:   d.Reason,
		Metadata: map[string]interface{}{
			"path":    d.Path,
			"pattern": d.Pattern,
			"policy":  d.Policy,
		},
	}
	if user, err := sess.AuthUser(ctx); err == nil && user != nil {
		event.ActorID = user.ID
	}
	if err := opts.Audit.Log(ctx, event); err != nil {
		logger.WithError(err).Error("Failed to write audit event")
	}
}
