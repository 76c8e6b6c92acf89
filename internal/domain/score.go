package domain

import "time"

// OnboardingProfile holds the self-reported attributes collected at registration.
// All fields are non-negative; see scoring.ParseOnboardingProfile for the parse-and-default boundary.
type OnboardingProfile struct {
	LicenseType     int
	LicenseYears    int
	LifetimeKm      int
	PriorRideCount  int
	SportinessGrade int
}

// TierCode is the ordinal rider tier. TierUnknown is the catch-all for scores outside every band.
type TierCode int

const (
	TierUnknown     TierCode = 0
	TierBeginner    TierCode = 1
	TierNovice      TierCode = 2
	TierAdvanced    TierCode = 3
	TierExperienced TierCode = 4
	TierExpert      TierCode = 5
)

// Tier pairs a TierCode with its label.
type Tier struct {
	Code  TierCode
	Label string
}

// String renders the code the way it is shown to members ("1".."5" or "Unknown").
func (c TierCode) String() string {
	switch c {
	case TierBeginner:
		return "1"
	case TierNovice:
		return "2"
	case TierAdvanced:
		return "3"
	case TierExperienced:
		return "4"
	case TierExpert:
		return "5"
	default:
		return "Unknown"
	}
}

// MemberScore is the score record owned by a member.
//
// InitialScore and Tier are fixed at creation; only CurrentScore and ComputedAt move afterwards.
type MemberScore struct {
	MemberID     MemberID
	InitialScore float64
	CurrentScore float64
	Tier         Tier
	ComputedAt   time.Time
}
