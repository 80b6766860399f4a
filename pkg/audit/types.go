package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	EventTypeTenantSwitch      EventType = "tenant.switch"
	EventTypeTenantImpersonate EventType = "tenant.impersonate"
	EventTypeTenantCoreReturn  EventType = "tenant.core_return"
	EventTypeRouteDenied       EventType = "route.denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is one audit record
type Event struct {
	ID             int64                  `json:"id"`
	Type           EventType              `json:"type"`
	Status         EventStatus            `json:"status"`
	ActorID        int64                  `json:"actor_id"`
	TenantID       *int64                 `json:"tenant_id,omitempty"`
	TargetTenantID *int64                 `json:"target_tenant_id,omitempty"`
	SessionID      string                 `json:"session_id,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	Message        string                 `json:"message"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	At             time.Time              `json:"at"`
}

// Filter narrows a listing of audit events
type Filter struct {
	ActorID  *int64
	TenantID *int64
	Types    []EventType
	Limit    int
}
