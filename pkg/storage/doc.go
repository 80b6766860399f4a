// Package storage holds the schema migration runner shared by the
// Postgres-backed packages.
//
// Each package owns a migration set and a tracking table named after it
// (rbac_migrations, tenants_migrations, audit_migrations). Sets are applied
// at startup in dependency order:
//
//	rbac.RunMigrations(ctx, db, logger)
//	tenants.RunMigrations(ctx, db, logger)
//	audit.RunMigrations(ctx, db, logger)
//
// Integration tests get a migrated database from storagetest.SetupPostgres,
// which uses TEST_POSTGRES_PRIMARY when set and a testcontainers Postgres
// otherwise.
package storage
