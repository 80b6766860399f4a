package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// AuthMiddleware validates "Authorization: Bearer <token>" headers
type AuthMiddleware struct {
	validator auth.Validator
	optional  bool // If true, allow requests without a token
}

// NewAuthMiddleware creates the bearer token middleware. A nil validator
// rejects every token.
func NewAuthMiddleware(validator auth.Validator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, optional: optional}
}

// Handler puts the validated token in the request context. A presented
// token is always checked, even when the middleware is optional.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}
		if m.validator == nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := r.Context()
		token, err := m.validator.ValidateToken(ctx, parts[1])
		if errors.Is(err, auth.ErrInvalidToken) {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if err != nil {
			observability.FromContext(ctx).WithError(err).Error("Token validation failed")
			httputil.WriteInternalError(w)
			return
		}

		ctx = contextkeys.WithAuthToken(ctx, token)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(token.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthToken returns the token validated for this request, or nil
func GetAuthToken(r *http.Request) *auth.APIToken {
	token, _ := r.Context().Value(contextkeys.AuthTokenKey).(*auth.APIToken)
	return token
}
