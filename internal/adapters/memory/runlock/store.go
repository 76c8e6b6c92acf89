package runlock

import (
	"context"
	"sync"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
)

// Store is an in-memory implementation of runlock.Store.
// It is safe for concurrent use; leases only exclude callers sharing the same process.
type Store struct {
	mu sync.Mutex
	m  map[string]runlock.Lease
}

func NewStore() *Store {
	return &Store{
		m: make(map[string]runlock.Lease),
	}
}

func (s *Store) Acquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (runlock.Lease, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.m[name]; ok && cur.Owner != owner && now.Before(cur.ExpiresAt) {
		return cur, false, nil
	}
	lease := runlock.Lease{
		Name:       name,
		Owner:      owner,
		AcquiredAt: now.UTC(),
		ExpiresAt:  now.Add(ttl).UTC(),
	}
	s.m[name] = lease
	return lease, true, nil
}

func (s *Store) Release(ctx context.Context, name, owner string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.m[name]
	if !ok || cur.Owner != owner {
		return runlock.ErrNotHeld
	}
	delete(s.m, name)
	return nil
}
