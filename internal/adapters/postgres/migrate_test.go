package postgres_test

import (
	"context"
	"strings"
	"testing"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/testutil"
)

func TestMigrations_OrderedAndNonEmpty(t *testing.T) {
	t.Parallel()

	ms, err := postgres.Migrations()
	if err != nil {
		t.Fatalf("Migrations() err=%v", err)
	}
	if len(ms) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for i, m := range ms {
		if strings.TrimSpace(m.SQL) == "" {
			t.Fatalf("migration %s is empty", m.Version)
		}
		if i > 0 && ms[i-1].Version >= m.Version {
			t.Fatalf("migrations out of order: %s then %s", ms[i-1].Version, m.Version)
		}
	}
	if ms[0].Version != "0001_members" {
		t.Fatalf("first migration=%s, want 0001_members", ms[0].Version)
	}
}

func TestMigrate_SecondRunIsNoop(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	applied, err := postgres.Migrate(context.Background(), pool, nil)
	if err != nil {
		t.Fatalf("Migrate() err=%v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("applied=%v, want none", applied)
	}
}
