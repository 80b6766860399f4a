package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

// Migrations returns the audit schema
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					at TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_id BIGINT NOT NULL,
					tenant_id BIGINT,
					target_tenant_id BIGINT,
					session_id VARCHAR(100),
					request_id VARCHAR(100),
					message TEXT,
					metadata JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_at ON audit_logs(at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant ON audit_logs(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
			`,
		},
	}
}

// RunMigrations applies the audit schema
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return storage.Migrate(ctx, db, "audit", Migrations(), logger)
}

// DBLogger implements audit logging to PostgreSQL database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	prepare(ctx, event)

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			at, event_type, status, actor_id, tenant_id, target_tenant_id,
			session_id, request_id, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.At, string(event.Type), string(event.Status), event.ActorID,
		event.TenantID, event.TargetTenantID,
		event.SessionID, event.RequestID, event.Message, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search lists audit events, newest first
func (l *DBLogger) Search(ctx context.Context, filter Filter) ([]*Event, error) {
	query := `
		SELECT id, at, event_type, status, actor_id, tenant_id, target_tenant_id,
		       session_id, request_id, message, metadata
		FROM audit_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}
	if filter.TenantID != nil {
		query += fmt.Sprintf(" AND (tenant_id = $%d OR target_tenant_id = $%d)", argCount, argCount)
		args = append(args, *filter.TenantID)
		argCount++
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		args = append(args, pq.Array(types))
		argCount++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY at DESC LIMIT $%d", argCount)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		e := &Event{}
		var eventType, status string
		var tenantID, targetTenantID sql.NullInt64
		var sessionID, requestID, message sql.NullString
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.At, &eventType, &status, &e.ActorID, &tenantID, &targetTenantID,
			&sessionID, &requestID, &message, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Type = EventType(eventType)
		e.Status = EventStatus(status)
		if tenantID.Valid {
			id := tenantID.Int64
			e.TenantID = &id
		}
		if targetTenantID.Valid {
			id := targetTenantID.Int64
			e.TargetTenantID = &id
		}
		e.SessionID = sessionID.String
		e.RequestID = requestID.String
		e.Message = message.String
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return events, nil
}
