package runlock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the lock is not held by the given owner.
var ErrNotHeld = errors.New("run lock not held by owner")

// Lease describes a held lock.
type Lease struct {
	Name       string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Store grants named, expiring, exclusive leases.
//
// It guards batch runs that must not overlap (e.g. two placement runs over the same locality would
// compute orderings from different snapshots). A lease whose ExpiresAt has passed may be taken over by
// another owner, so a crashed run cannot block the batch forever.
type Store interface {
	// Acquire takes the lease if it is free or expired. ok=false means another owner holds it.
	Acquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (lease Lease, ok bool, err error)
	Release(ctx context.Context, name, owner string) error
}
