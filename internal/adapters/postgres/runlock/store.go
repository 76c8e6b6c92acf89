package runlock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
)

// Store is a Postgres implementation of runlock.Store. Leases exclude every process sharing the database.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Acquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (runlock.Lease, bool, error) {
	if s.pool == nil {
		return runlock.Lease{}, false, postgres.ErrNilPool
	}
	now = now.UTC()
	expires := now.Add(ttl)

	// The upsert only overwrites a row that is expired or already ours; otherwise RETURNING yields nothing.
	var lease runlock.Lease
	err := s.pool.QueryRow(ctx, `
		INSERT INTO run_locks (name, owner, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at
		WHERE run_locks.owner = EXCLUDED.owner
		   OR run_locks.expires_at <= EXCLUDED.acquired_at
		RETURNING name, owner, acquired_at, expires_at
	`, name, owner, now, expires).Scan(&lease.Name, &lease.Owner, &lease.AcquiredAt, &lease.ExpiresAt)
	if err == nil {
		lease.AcquiredAt = lease.AcquiredAt.UTC()
		lease.ExpiresAt = lease.ExpiresAt.UTC()
		return lease, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return runlock.Lease{}, false, err
	}

	cur, err := s.current(ctx, name)
	if err != nil {
		return runlock.Lease{}, false, err
	}
	return cur, false, nil
}

func (s *Store) Release(ctx context.Context, name, owner string) error {
	if s.pool == nil {
		return postgres.ErrNilPool
	}
	ct, err := s.pool.Exec(ctx, `DELETE FROM run_locks WHERE name = $1 AND owner = $2`, name, owner)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return runlock.ErrNotHeld
	}
	return nil
}

func (s *Store) current(ctx context.Context, name string) (runlock.Lease, error) {
	var lease runlock.Lease
	err := s.pool.QueryRow(ctx, `
		SELECT name, owner, acquired_at, expires_at
		FROM run_locks
		WHERE name = $1
	`, name).Scan(&lease.Name, &lease.Owner, &lease.AcquiredAt, &lease.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Released between the two statements; report it as held so the caller retries later.
			return runlock.Lease{Name: name}, nil
		}
		return runlock.Lease{}, err
	}
	lease.AcquiredAt = lease.AcquiredAt.UTC()
	lease.ExpiresAt = lease.ExpiresAt.UTC()
	return lease, nil
}
