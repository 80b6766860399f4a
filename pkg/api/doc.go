// Package api provides the HTTP JSON API of tenantgate.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups:
//
//   - Session: token login, role context, tenant switching, route checks
//   - Tenants: tenant and assignment administration
//   - Roles: role lifecycle (create, trash, restore, permanent delete) and permissions
//   - Audit: search of the stored audit trail
//
// Every /api request passes through the session middleware, which resolves
// the tg_session cookie. Admin groups are additionally gated by a route
// guard running guard.APIRules in API mode, so a missing capability yields
// a 403 JSON body instead of a redirect.
//
// POST /api/session requires an "Authorization: Bearer" API token naming
// the user. Deps.DevLogin relaxes this for local development only.
//
// Admin handlers are scoped by the caller's role context. A super admin in
// the core tenant acts globally. Anyone else sees and changes only their
// active tenant, never above their own role level, and cannot grant a
// capability they lack. System roles cannot be edited or removed.
//
// # Usage
//
//	server := api.NewServer(api.Deps{
//		Sessions:    store,
//		Tokens:      tokenStore,
//		Coordinator: coordinator,
//		Tenants:     tenantService,
//		Roles:       roleStore,
//		Console:     consoleGuard,
//		AdminGuard:  adminGuard,
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// # Error mapping
//
// Not found errors map to 404, superseded or conflicting switches and
// invalid assignment transitions to 409, a missing super admin grant or a
// system role change to 403, and an unauthenticated session or bad token
// to 401.
package api
