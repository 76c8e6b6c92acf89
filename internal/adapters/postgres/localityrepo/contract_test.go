package localityrepo

import (
	"testing"

	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/contracttest"
	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/testutil"
	localityrepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
)

func TestContract_PostgresLocalityRepo(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunLocalityRepo(t, func(t *testing.T) (localityrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(pool), nil
	})
}
