// Package middleware provides the HTTP middleware shared by the tenantgate
// API server.
//
// # Middleware Components
//
// RequestID: reuses or generates X-Request-ID and stores it in the context
//
// Logger: puts the service logger in the context and logs each request
//
// Recovery: turns handler panics into 500 responses
//
// SessionMiddleware: resolves the tg_session cookie to a session handle
//
//	sm := middleware.NewSessionMiddleware(store, "tg_session", true)
//	router.Use(middleware.RequestID, middleware.Logger(logger), sm.Handler)
//
// RateLimit: fixed-window limits per user, in memory or shared via Redis
//
//	limiter := middleware.NewRedisLimiter(client, middleware.SwitchRateLimitConfig(), "")
//	switchRoute.Use(middleware.RateLimit(limiter))
//
// # Related Packages
//
//   - pkg/session: session store and handles
//   - pkg/guard: route guard middleware
package middleware
