package members

import "github.com/Overland-East-Bay/rider-standings-api/internal/app/scoring"

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

type RegisterMemberInput struct {
	DisplayName string
	Email       string
	Locality    string
	Comarca     string
	Province    string
	// Onboarding is parsed with scoring.ParseOnboardingProfile; bad values default to 0.
	Onboarding scoring.RawProfile
}

// UpdateMemberInput is an admin patch. The onboarding profile is not editable: the initial score and
// tier are fixed at registration.
type UpdateMemberInput struct {
	DisplayName Optional[string] // cannot be null
	Email       Optional[string] // cannot be null
	Locality    Optional[string] // cannot be null; a change clears the map placement
	Comarca     Optional[string] // null clears
	Province    Optional[string] // null clears
	Approved    Optional[bool]   // cannot be null
}
