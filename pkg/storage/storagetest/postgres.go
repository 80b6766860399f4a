//go:build integration

// Package storagetest starts a throwaway Postgres for integration tests.
package storagetest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MigrateFunc applies one package's schema
type MigrateFunc func(ctx context.Context, db *sql.DB) error

// SetupPostgres returns a migrated database. TEST_POSTGRES_PRIMARY wins when
// set; otherwise a postgres container is started, and the test is skipped
// when no container runtime is available.
func SetupPostgres(t *testing.T, migrations ...MigrateFunc) (*sql.DB, func()) {
	t.Helper()
	ctx := context.Background()

	if dbURL := os.Getenv("TEST_POSTGRES_PRIMARY"); dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		require.NoError(t, err)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			t.Skipf("Database not reachable: %v", err)
		}
		migrate(t, db, migrations)
		return db, func() { db.Close() }
	}

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tenantgate_test"),
		postgres.WithUsername("tenantgate"),
		postgres.WithPassword("tenantgate_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	migrate(t, db, migrations)

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}

		// the test context may already be cancelled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}
	return db, cleanup
}

func migrate(t *testing.T, db *sql.DB, migrations []MigrateFunc) {
	t.Helper()
	for _, m := range migrations {
		require.NoError(t, m(context.Background(), db), "failed to run migrations")
	}
}
