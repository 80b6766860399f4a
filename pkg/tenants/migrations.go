package tenants

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

// Migrations returns the tenants and assignments schema. The rbac set must
// already be applied.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					type VARCHAR(20) NOT NULL DEFAULT 'BUSINESS',
					status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
					branding JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CONSTRAINT tenants_type_check CHECK (type IN ('CORE', 'BUSINESS', 'STARTUP', 'ENTERPRISE', 'RETAIL', 'TRIAL')),
					CONSTRAINT tenants_status_check CHECK (status IN ('ACTIVE', 'SUSPENDED', 'ARCHIVED'))
				);
			`,
		},
		{
			Version:     2,
			Description: "Create user_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
					is_primary BOOLEAN NOT NULL DEFAULT FALSE,
					expires_at TIMESTAMP,
					assigned_by BIGINT,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CONSTRAINT user_assignments_status_check CHECK (status IN ('PENDING', 'ACTIVE', 'INACTIVE', 'SUSPENDED', 'EXPIRED', 'ARCHIVED'))
				);

				CREATE INDEX IF NOT EXISTS idx_user_assignments_user ON user_assignments(user_id, status);
				CREATE INDEX IF NOT EXISTS idx_user_assignments_tenant ON user_assignments(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_user_assignments_expires_at ON user_assignments(expires_at) WHERE expires_at IS NOT NULL;
			`,
		},
	}
}

// RunMigrations applies the tenants schema
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return storage.Migrate(ctx, db, "tenants", Migrations(), logger)
}
