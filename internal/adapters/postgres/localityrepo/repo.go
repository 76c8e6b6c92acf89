package localityrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
)

// Repo is a Postgres implementation of localityrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Lookup(ctx context.Context, name domain.LocalityName) (domain.Locality, error) {
	if r.pool == nil {
		return domain.Locality{}, postgres.ErrNilPool
	}
	row := r.pool.QueryRow(ctx, `
		SELECT name, comarca, province, x, y
		FROM localities
		WHERE name = $1
	`, string(name))
	return scanLocality(row)
}

func (r *Repo) List(ctx context.Context) ([]domain.Locality, error) {
	if r.pool == nil {
		return nil, postgres.ErrNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT name, comarca, province, x, y
		FROM localities
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Locality, 0)
	for rows.Next() {
		l, err := scanLocality(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Upsert(ctx context.Context, l domain.Locality) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO localities (name, comarca, province, x, y)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET comarca = EXCLUDED.comarca,
		    province = EXCLUDED.province,
		    x = EXCLUDED.x,
		    y = EXCLUDED.y
	`, string(l.Name), l.Comarca, l.Province, l.X, l.Y)
	return err
}

func scanLocality(row interface {
	Scan(dest ...any) error
}) (domain.Locality, error) {
	var (
		name     string
		comarca  string
		province string
		x, y     float64
	)
	if err := row.Scan(&name, &comarca, &province, &x, &y); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Locality{}, localityrepo.ErrNotFound
		}
		return domain.Locality{}, err
	}
	return domain.Locality{
		Name:     domain.LocalityName(name),
		Comarca:  comarca,
		Province: province,
		X:        x,
		Y:        y,
	}, nil
}
