// Package testutil starts a throwaway Postgres for adapter tests.
//
// Tests using it are skipped unless ITEST_POSTGRES=1, so the default test run needs no Docker.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
)

const image = "postgres:16-alpine"

// OpenMigratedPool starts a Postgres container, applies all migrations and returns a pool.
// The container and pool are torn down when t finishes.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("ITEST_POSTGRES") != "1" {
		t.Skip("set ITEST_POSTGRES=1 to run postgres adapter tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		image,
		tcpostgres.WithDatabase("riders"),
		tcpostgres.WithUsername("riders"),
		tcpostgres.WithPassword("riders"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		if container != nil {
			_ = container.Terminate(context.Background())
		}
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 8})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := postgres.Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
