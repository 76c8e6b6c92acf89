package memberrepo

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// Member is the persistence shape used by the member repository.
// It's used as an internal record, not an HTTP DTO.
type Member struct {
	// ID is assigned by the repository on create; callers leave it zero.
	ID      domain.MemberID
	Subject domain.SubjectID
	// DisplayName is the member's preferred display name.
	DisplayName string
	// Email is stored for the member profile; uniqueness is case-insensitive.
	Email string

	Locality domain.LocalityName
	Comarca  string
	Province string

	Approved bool

	// Latitude/Longitude are the rider-map placement; nil means unplaced.
	Latitude  *float64
	Longitude *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows List results.
type ListFilter struct {
	ApprovedOnly bool
	// Locality restricts results to one locality when non-empty.
	Locality domain.LocalityName
}

// Repository provides access to persisted members.
//
// Result ordering expectations:
// - List and ListIDsByLocality return results ordered by ID ascending. Placement relies on this order
//   being stable between calls.
type Repository interface {
	// CreateWithScore stores a new member and its score record atomically: either both rows exist
	// afterwards or neither does. The score's MemberID is overwritten with the assigned member ID.
	CreateWithScore(ctx context.Context, m Member, score domain.MemberScore) (Member, error)
	// Update writes the profile fields. Coordinates are owned by SetCoordinates: the stored position
	// is kept as is, or cleared when the locality changes, whatever m.Latitude and m.Longitude hold.
	Update(ctx context.Context, m Member) error
	// Delete removes the member together with its score record.
	Delete(ctx context.Context, id domain.MemberID) error

	GetByID(ctx context.Context, id domain.MemberID) (Member, error)
	GetBySubject(ctx context.Context, subject domain.SubjectID) (Member, error)

	List(ctx context.Context, filter ListFilter) ([]Member, error)
	ListIDsByLocality(ctx context.Context, locality domain.LocalityName, approvedOnly bool) ([]domain.MemberID, error)

	// SetCoordinates writes the placement fields only.
	SetCoordinates(ctx context.Context, id domain.MemberID, c domain.Coordinates) error
}
