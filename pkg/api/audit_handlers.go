package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// AuditHandlers serves the stored audit trail
type AuditHandlers struct {
	searcher AuditSearcher
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(searcher AuditSearcher) *AuditHandlers {
	return &AuditHandlers{searcher: searcher}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit", h.Search).Methods("GET")
}

// Search lists audit events filtered by ?actor_id=, ?tenant_id=, ?type=
// (repeatable) and ?limit=
func (h *AuditHandlers) Search(w http.ResponseWriter, r *http.Request) {
	actorID, err := httputil.ParseQueryInt64(r, "actor_id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid actor_id")
		return
	}
	tenantID, err := httputil.ParseQueryInt64(r, "tenant_id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid tenant_id")
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}

	filter := audit.Filter{ActorID: actorID, TenantID: tenantID, Limit: limit}
	for _, t := range r.URL.Query()["type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}

	found, err := h.searcher.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, found)
}

// callerID returns the authenticated user's ID set by the session middleware
func callerID(r *http.Request) (int64, bool) {
	raw := contextkeys.GetUserID(r.Context())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}
