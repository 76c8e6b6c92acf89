package scoring

import (
	"strings"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// RawProfile is the onboarding form as received: every field is free text.
type RawProfile struct {
	LicenseType     string
	LicenseYears    string
	LifetimeKm      string
	PriorRideCount  string
	SportinessGrade string
}

// ParseOnboardingProfile converts raw form input into a typed profile.
//
// It never fails: blank, non-numeric and negative values become 0. A leading run of digits is
// accepted and the rest ignored ("12000 km" is 12000), matching how the values were historically
// stored and read back.
func ParseOnboardingProfile(raw RawProfile) domain.OnboardingProfile {
	return domain.OnboardingProfile{
		LicenseType:     parseCount(raw.LicenseType),
		LicenseYears:    parseCount(raw.LicenseYears),
		LifetimeKm:      parseCount(raw.LifetimeKm),
		PriorRideCount:  parseCount(raw.PriorRideCount),
		SportinessGrade: parseCount(raw.SportinessGrade),
	}
}

// maxCount bounds parsed values so absurd input cannot overflow the weighted sum.
const maxCount = 100_000_000

func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s[0] == '-' {
		return 0
	}
	if s[0] == '+' {
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i > 0 && i+1 < len(s) && isDigit(s[i-1]) && isDigit(s[i+1]) {
			continue
		}
		if !isDigit(c) {
			break
		}
		n = n*10 + int(c-'0')
		if n > maxCount {
			return maxCount
		}
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
