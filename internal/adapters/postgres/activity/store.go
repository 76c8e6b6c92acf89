package activity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/activity"
)

// Store is a Postgres implementation of activity.Store over ride_enrollments and ride_comments.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) RecordRideEnrollment(ctx context.Context, ride activity.RideID, member domain.MemberID, at time.Time) error {
	if s.pool == nil {
		return postgres.ErrNilPool
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ride_enrollments (ride_id, member_id, enrolled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (ride_id, member_id) DO NOTHING
	`, string(ride), int64(member), at.UTC())
	return err
}

func (s *Store) RecordRideComment(ctx context.Context, ride activity.RideID, member domain.MemberID, at time.Time) error {
	if s.pool == nil {
		return postgres.ErrNilPool
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ride_comments (ride_id, member_id, created_at)
		VALUES ($1, $2, $3)
	`, string(ride), int64(member), at.UTC())
	return err
}

func (s *Store) CountRideEnrollments(ctx context.Context, id domain.MemberID) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM ride_enrollments WHERE member_id = $1`, id)
}

func (s *Store) CountRideComments(ctx context.Context, id domain.MemberID) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM ride_comments WHERE member_id = $1`, id)
}

func (s *Store) count(ctx context.Context, sql string, id domain.MemberID) (int, error) {
	if s.pool == nil {
		return 0, postgres.ErrNilPool
	}
	var n int
	if err := s.pool.QueryRow(ctx, sql, int64(id)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
