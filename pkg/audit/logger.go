package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// prepare fills in the timestamp and request ID
func prepare(ctx context.Context, event *Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
}

// NoopLogger discards every event
type NoopLogger struct{}

// Log discards the event
func (NoopLogger) Log(context.Context, *Event) error { return nil }

// StructuredLogger writes audit events to the application log. Used when
// no database is configured.
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates a log-backed audit logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger.WithField("component", "audit")}
}

// Log writes the event as a structured log line
func (l *StructuredLogger) Log(ctx context.Context, event *Event) error {
	prepare(ctx, event)
	fields := map[string]interface{}{
		"event_type": string(event.Type),
		"status":     string(event.Status),
		"actor_id":   event.ActorID,
		"request_id": event.RequestID,
	}
	if event.TenantID != nil {
		fields["tenant_id"] = *event.TenantID
	}
	if event.TargetTenantID != nil {
		fields["target_tenant_id"] = *event.TargetTenantID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	l.logger.WithFields(fields).Info(event.Message)
	return nil
}
