package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
)

func TestStore_AcquireIsExclusiveUntilRelease(t *testing.T) {
	t.Parallel()

	s := NewStore()
	now := time.Unix(1000, 0).UTC()

	lease, ok, err := s.Acquire(context.Background(), "placement:all", "run-a", now, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire(run-a) ok=%v err=%v, want ok", ok, err)
	}
	if !lease.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("ExpiresAt=%v, want %v", lease.ExpiresAt, now.Add(time.Minute))
	}

	held, ok, err := s.Acquire(context.Background(), "placement:all", "run-b", now.Add(time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Acquire(run-b) err=%v", err)
	}
	if ok {
		t.Fatalf("Acquire(run-b) ok=true, want false while run-a holds the lease")
	}
	if held.Owner != "run-a" {
		t.Fatalf("holder=%q, want run-a", held.Owner)
	}

	if err := s.Release(context.Background(), "placement:all", "run-b"); err != runlock.ErrNotHeld {
		t.Fatalf("Release(run-b) err=%v, want %v", err, runlock.ErrNotHeld)
	}
	if err := s.Release(context.Background(), "placement:all", "run-a"); err != nil {
		t.Fatalf("Release(run-a) err=%v", err)
	}
	if _, ok, _ := s.Acquire(context.Background(), "placement:all", "run-b", now.Add(2*time.Second), time.Minute); !ok {
		t.Fatalf("Acquire(run-b) after release ok=false, want true")
	}
}

func TestStore_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	t.Parallel()

	s := NewStore()
	now := time.Unix(1000, 0).UTC()

	if _, ok, _ := s.Acquire(context.Background(), "placement:Manresa", "run-a", now, time.Minute); !ok {
		t.Fatalf("Acquire(run-a) ok=false")
	}
	lease, ok, err := s.Acquire(context.Background(), "placement:Manresa", "run-b", now.Add(2*time.Minute), time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire(run-b) after expiry ok=%v err=%v, want ok", ok, err)
	}
	if lease.Owner != "run-b" {
		t.Fatalf("owner=%q, want run-b", lease.Owner)
	}
}

func TestStore_DistinctNamesDoNotConflict(t *testing.T) {
	t.Parallel()

	s := NewStore()
	now := time.Unix(1000, 0).UTC()
	if _, ok, _ := s.Acquire(context.Background(), "placement:Manresa", "run-a", now, time.Minute); !ok {
		t.Fatalf("Acquire(Manresa) ok=false")
	}
	if _, ok, _ := s.Acquire(context.Background(), "placement:Girona", "run-b", now, time.Minute); !ok {
		t.Fatalf("Acquire(Girona) ok=false, want true")
	}
}
