package scorerepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

// Repo is a Postgres implementation of scorerepo.Repository over member_scores.
// Rows are inserted by the member repository in the member's own transaction.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Get(ctx context.Context, id domain.MemberID) (domain.MemberScore, error) {
	if r.pool == nil {
		return domain.MemberScore{}, postgres.ErrNilPool
	}
	row := r.pool.QueryRow(ctx, `
		SELECT member_id, initial_score, current_score, tier_code, tier_label, computed_at
		FROM member_scores
		WHERE member_id = $1
	`, int64(id))
	return scanScore(row)
}

func (r *Repo) List(ctx context.Context) ([]domain.MemberScore, error) {
	if r.pool == nil {
		return nil, postgres.ErrNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT member_id, initial_score, current_score, tier_code, tier_label, computed_at
		FROM member_scores
		ORDER BY member_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.MemberScore, 0)
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateCurrent(ctx context.Context, id domain.MemberID, current float64, computedAt time.Time) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE member_scores
		SET current_score = $2,
		    computed_at = $3
		WHERE member_id = $1
	`, int64(id), current, computedAt.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return scorerepo.ErrNotFound
	}
	return nil
}

func scanScore(row interface {
	Scan(dest ...any) error
}) (domain.MemberScore, error) {
	var (
		memberID   int64
		initial    float64
		current    float64
		tierCode   int16
		tierLabel  string
		computedAt time.Time
	)
	if err := row.Scan(&memberID, &initial, &current, &tierCode, &tierLabel, &computedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MemberScore{}, scorerepo.ErrNotFound
		}
		return domain.MemberScore{}, err
	}
	return domain.MemberScore{
		MemberID:     domain.MemberID(memberID),
		InitialScore: initial,
		CurrentScore: current,
		Tier:         domain.Tier{Code: domain.TierCode(tierCode), Label: tierLabel},
		ComputedAt:   computedAt.UTC(),
	}, nil
}
