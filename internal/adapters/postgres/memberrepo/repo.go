package memberrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
)

// Repo is a Postgres implementation of memberrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const memberColumns = `
	m.id,
	m.subject,
	m.display_name,
	m.email,
	m.locality,
	m.comarca,
	m.province,
	m.approved,
	m.latitude,
	m.longitude,
	m.created_at,
	m.updated_at
`

func (r *Repo) CreateWithScore(ctx context.Context, m memberrepo.Member, score domain.MemberScore) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, postgres.ErrNilPool
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO members (
				subject,
				display_name,
				email,
				locality,
				comarca,
				province,
				approved,
				latitude,
				longitude,
				created_at,
				updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`,
			string(m.Subject),
			m.DisplayName,
			m.Email,
			string(m.Locality),
			m.Comarca,
			m.Province,
			m.Approved,
			m.Latitude,
			m.Longitude,
			m.CreatedAt.UTC(),
			m.UpdatedAt.UTC(),
		).Scan(&m.ID)
		if err != nil {
			return mapUniqueViolation(err)
		}

		// Same transaction: a failed score insert rolls the member back.
		_, err = tx.Exec(ctx, `
			INSERT INTO member_scores (
				member_id,
				initial_score,
				current_score,
				tier_code,
				tier_label,
				computed_at
			) VALUES ($1, $2, $3, $4, $5, $6)
		`,
			int64(m.ID),
			score.InitialScore,
			score.CurrentScore,
			int16(score.Tier.Code),
			score.Tier.Label,
			score.ComputedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return memberrepo.Member{}, err
	}
	return m, nil
}

func (r *Repo) Update(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		existing, err := getMemberByID(ctx, tx, m.ID, true)
		if err != nil {
			return err
		}
		if existing.Subject != m.Subject {
			return memberrepo.ErrSubjectAlreadyBound
		}

		ct, err := tx.Exec(ctx, `
			UPDATE members
			SET display_name = $2,
			    email = $3,
			    locality = $4,
			    comarca = $5,
			    province = $6,
			    approved = $7,
			    latitude = CASE WHEN locality = $4 THEN latitude END,
			    longitude = CASE WHEN locality = $4 THEN longitude END,
			    updated_at = $8
			WHERE id = $1
		`,
			int64(m.ID),
			m.DisplayName,
			m.Email,
			string(m.Locality),
			m.Comarca,
			m.Province,
			m.Approved,
			m.UpdatedAt.UTC(),
		)
		if err != nil {
			return mapUniqueViolation(err)
		}
		if ct.RowsAffected() == 0 {
			return memberrepo.ErrNotFound
		}
		return nil
	})
}

// Delete removes the member; member_scores and activity rows go with it via ON DELETE CASCADE.
func (r *Repo) Delete(ctx context.Context, id domain.MemberID) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, postgres.ErrNilPool
	}
	return getMemberByID(ctx, r.pool, id, false)
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, postgres.ErrNilPool
	}
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members m WHERE m.subject = $1`, string(subject))
	return scanMember(row)
}

func (r *Repo) List(ctx context.Context, filter memberrepo.ListFilter) ([]memberrepo.Member, error) {
	if r.pool == nil {
		return nil, postgres.ErrNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+`
		FROM members m
		WHERE ($1 = false OR m.approved = true)
		  AND ($2 = '' OR m.locality = $2)
		ORDER BY m.id ASC
	`, filter.ApprovedOnly, string(filter.Locality))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memberrepo.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListIDsByLocality(ctx context.Context, locality domain.LocalityName, approvedOnly bool) ([]domain.MemberID, error) {
	if r.pool == nil {
		return nil, postgres.ErrNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM members
		WHERE locality = $1
		  AND ($2 = false OR approved = true)
		ORDER BY id ASC
	`, string(locality), approvedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.MemberID, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.MemberID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SetCoordinates(ctx context.Context, id domain.MemberID, c domain.Coordinates) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE members
		SET latitude = $2,
		    longitude = $3
		WHERE id = $1
	`, int64(id), c.Latitude, c.Longitude)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

// --- helpers ---

func mapUniqueViolation(err error) error {
	pe, ok := postgres.AsPgError(err)
	if !ok || pe.Code != postgres.UniqueViolationCode {
		return err
	}
	switch pe.ConstraintName {
	case "members_subject_unique":
		return memberrepo.ErrSubjectAlreadyBound
	case "members_email_lower_unique":
		return memberrepo.ErrEmailInUse
	default:
		return err
	}
}

func scanMember(row interface {
	Scan(dest ...any) error
}) (memberrepo.Member, error) {
	var (
		id          int64
		sub         string
		displayName string
		email       string
		locality    string
		comarca     string
		province    string
		approved    bool
		latitude    *float64
		longitude   *float64
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(
		&id,
		&sub,
		&displayName,
		&email,
		&locality,
		&comarca,
		&province,
		&approved,
		&latitude,
		&longitude,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memberrepo.Member{}, memberrepo.ErrNotFound
		}
		return memberrepo.Member{}, err
	}
	return memberrepo.Member{
		ID:          domain.MemberID(id),
		Subject:     domain.SubjectID(sub),
		DisplayName: displayName,
		Email:       email,
		Locality:    domain.LocalityName(locality),
		Comarca:     comarca,
		Province:    province,
		Approved:    approved,
		Latitude:    latitude,
		Longitude:   longitude,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   updatedAt.UTC(),
	}, nil
}

func getMemberByID(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id domain.MemberID, forUpdate bool) (memberrepo.Member, error) {
	sql := `SELECT ` + memberColumns + ` FROM members m WHERE m.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanMember(q.QueryRow(ctx, sql, int64(id)))
}
