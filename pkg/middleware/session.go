package middleware

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/session"
)

// DefaultSessionCookie is the cookie carrying the session ID
const DefaultSessionCookie = "tg_session"

// SessionMiddleware attaches the session named by the request cookie
type SessionMiddleware struct {
	store      *session.Store
	cookieName string
	secure     bool
}

// NewSessionMiddleware creates the session middleware. An empty cookie
// name falls back to DefaultSessionCookie.
func NewSessionMiddleware(store *session.Store, cookieName string, secure bool) *SessionMiddleware {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return &SessionMiddleware{store: store, cookieName: cookieName, secure: secure}
}

// Handler puts the session handle in the request context together with the
// user and tenant IDs it carries. Requests without the cookie pass through
// with no session.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess := m.store.Session(cookie.Value)
		ctx := session.WithSession(r.Context(), sess)

		user, err := sess.AuthUser(ctx)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to load session user")
		} else if user != nil {
			ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		}

		if current, err := sess.CurrentTenant(ctx); err == nil && current != nil {
			ctx = contextkeys.WithTenantID(ctx, current.ID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetCookie writes the session cookie
func (m *SessionMiddleware) SetCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie
func (m *SessionMiddleware) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireSession rejects requests that carry no session
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := session.FromContext(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
