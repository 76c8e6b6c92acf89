package domain

import "time"

// Member is the domain representation of a club member.
type Member struct {
	ID      MemberID
	Subject SubjectID

	DisplayName string
	Email       string

	Locality LocalityName
	Comarca  string
	Province string

	Approved bool

	// Latitude/Longitude are the member's placement on the rider map; nil means unplaced.
	Latitude  *float64
	Longitude *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPlacement reports whether both coordinates are set.
func (m Member) HasPlacement() bool {
	return m.Latitude != nil && m.Longitude != nil
}
