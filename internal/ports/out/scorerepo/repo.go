package scorerepo

import (
	"context"
	"errors"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// ErrNotFound indicates the member has no score record.
var ErrNotFound = errors.New("member score not found")

// Repository reads and updates score records. Records are created together with their member
// (memberrepo.Repository.CreateWithScore), never through this interface.
type Repository interface {
	Get(ctx context.Context, id domain.MemberID) (domain.MemberScore, error)
	// List returns every score ordered by member ID ascending.
	List(ctx context.Context) ([]domain.MemberScore, error)
	// UpdateCurrent overwrites CurrentScore and ComputedAt; InitialScore and Tier are immutable.
	UpdateCurrent(ctx context.Context, id domain.MemberID, current float64, computedAt time.Time) error
}
