// Package contextkeys provides centralized context key definitions
//
// All context keys used across tenantgate are defined here so that key
// usage stays discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantgate/pkg/contextkeys"
//	ctx = contextkeys.WithSession(ctx, sess)
//	sess, ok := ctx.Value(contextkeys.SessionKey).(*session.Session)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.Session
	// Set by: middleware.Session (pkg/middleware/session.go)
	// Required by: route guard, tenant switch and context endpoints
	// Type: *session.Session
	SessionKey Key = "session"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: middleware.Session once the session has an auth user
	// Used by: Logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// TenantIDKey contains the active tenant ID as int64
	// Set by: middleware.Session when a role context is present
	// Used by: Logger, audit trail
	// Type: int64
	TenantIDKey Key = "tenant_id"

	// AuthTokenKey contains the validated API token
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Used by: session creation
	// Type: *auth.APIToken
	AuthTokenKey Key = "auth_token"
)

// WithSession adds the session handle to the context
func WithSession(ctx context.Context, sess interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithTenantID adds the active tenant ID to the context
func WithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithAuthToken adds the validated API token to the context
func WithAuthToken(ctx context.Context, token interface{}) context.Context {
	return context.WithValue(ctx, AuthTokenKey, token)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetTenantID retrieves the active tenant ID from context
func GetTenantID(ctx context.Context) (int64, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(int64)
	return tenantID, ok
}
