package rbac

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

// Migrations returns the schema for roles and permissions. It must run
// before the tenants set, whose assignments reference roles.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					resource VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL,
					scope VARCHAR(20) NOT NULL DEFAULT 'TENANT',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					description TEXT NOT NULL DEFAULT '',
					CONSTRAINT permissions_scope_check CHECK (scope IN ('OWN', 'TENANT', 'ALL'))
				);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					level VARCHAR(20) NOT NULL DEFAULT 'USER',
					type VARCHAR(20) NOT NULL DEFAULT 'CUSTOM',
					tenant_id BIGINT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					trashed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by BIGINT,
					CONSTRAINT roles_level_check CHECK (level IN ('GUEST', 'USER', 'MANAGER', 'ADMIN', 'SUPER_ADMIN')),
					CONSTRAINT roles_type_check CHECK (type IN ('SYSTEM', 'TENANT', 'CUSTOM'))
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name_tenant ON roles(name, COALESCE(tenant_id, 0));
				CREATE INDEX IF NOT EXISTS idx_roles_tenant_id ON roles(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_roles_trashed_at ON roles(trashed_at);
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					position INT NOT NULL DEFAULT 0,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id);
			`,
		},
	}
}

// RunMigrations applies the rbac schema and makes sure the system
// permissions exist.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := storage.Migrate(ctx, db, "rbac", Migrations(), logger); err != nil {
		return err
	}
	return NewStore(db).EnsurePermissions(ctx, SystemPermissions())
}
