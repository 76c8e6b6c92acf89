package localityrepo

import (
	"context"
	"errors"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// ErrNotFound indicates the locality has no reference row.
var ErrNotFound = errors.New("locality not found")

// Repository is the locality reference table: one base coordinate pair per locality name.
type Repository interface {
	Lookup(ctx context.Context, name domain.LocalityName) (domain.Locality, error)
	// List returns all localities ordered by name.
	List(ctx context.Context) ([]domain.Locality, error)
	// Upsert inserts or replaces the row keyed by l.Name.
	Upsert(ctx context.Context, l domain.Locality) error
}
