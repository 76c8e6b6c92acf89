// Package scoring computes member scores and tiers.
//
// Everything here is pure arithmetic over already-parsed inputs: no I/O, no clock reads, no shared state.
package scoring

import (
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// Onboarding weights.
const (
	licenseTypeWeight     = 10
	licenseYearsWeight    = 2
	lifetimeKmWeight      = 4
	priorRideCountWeight  = 6
	sportinessGradeWeight = 5
)

// Activity weights used by RecomputeCurrentScore.
const (
	rideEnrollmentWeight = 2.0
	rideCommentWeight    = 0.2
)

// ComputeInitialScore returns the weighted onboarding score.
//
// Negative fields are treated as 0 so callers that bypass ParseOnboardingProfile still get a
// non-negative result.
func ComputeInitialScore(p domain.OnboardingProfile) float64 {
	sum := nonNegative(p.LicenseType)*licenseTypeWeight +
		nonNegative(p.LicenseYears)*licenseYearsWeight +
		nonNegative(p.LifetimeKm)*lifetimeKmWeight +
		nonNegative(p.PriorRideCount)*priorRideCountWeight +
		nonNegative(p.SportinessGrade)*sportinessGradeWeight
	return float64(sum)
}

// RecomputeCurrentScore adds lifetime activity on top of the initial score.
// The tier is not reclassified.
func RecomputeCurrentScore(initialScore float64, rideCount, commentCount int) float64 {
	return initialScore +
		float64(nonNegative(rideCount))*rideEnrollmentWeight +
		float64(nonNegative(commentCount))*rideCommentWeight
}

// NewScoreRecord builds the score record created alongside a new member.
func NewScoreRecord(memberID domain.MemberID, p domain.OnboardingProfile, now time.Time) domain.MemberScore {
	initial := ComputeInitialScore(p)
	return domain.MemberScore{
		MemberID:     memberID,
		InitialScore: initial,
		CurrentScore: initial,
		Tier:         ClassifyTier(initial),
		ComputedAt:   now.UTC(),
	}
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
