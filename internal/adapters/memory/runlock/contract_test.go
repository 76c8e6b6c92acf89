package runlock

import (
	"testing"

	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/contracttest"
	runlockport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
)

func TestContract_RunLockStore(t *testing.T) {
	contracttest.RunRunLockStore(t, func(t *testing.T) (runlockport.Store, func()) {
		t.Helper()
		return NewStore(), nil
	})
}
