package scoring

import "github.com/Overland-East-Bay/rider-standings-api/internal/domain"

// UnknownLevelLabel is paired with domain.TierUnknown.
const UnknownLevelLabel = "Unknown Level"

type tierBand struct {
	min, max int
	tier     domain.Tier
}

// Bands are inclusive on both ends and checked top to bottom.
// Scores above 100 or below 0 intentionally match nothing.
var tierBands = []tierBand{
	{min: 0, max: 22, tier: domain.Tier{Code: domain.TierBeginner, Label: "Beginner"}},
	{min: 23, max: 49, tier: domain.Tier{Code: domain.TierNovice, Label: "Novice"}},
	{min: 50, max: 74, tier: domain.Tier{Code: domain.TierAdvanced, Label: "Advanced"}},
	{min: 75, max: 89, tier: domain.Tier{Code: domain.TierExperienced, Label: "Experienced"}},
	{min: 90, max: 100, tier: domain.Tier{Code: domain.TierExpert, Label: "Expert"}},
}

// ClassifyTier maps a score to its tier.
//
// A fractional score inside a band belongs to it (10.5 is Beginner); one that falls in the gap
// between two bands (22.5) is Unknown, the same as any score outside [0, 100].
func ClassifyTier(score float64) domain.Tier {
	for _, b := range tierBands {
		if score >= float64(b.min) && score <= float64(b.max) {
			return b.tier
		}
	}
	return domain.Tier{Code: domain.TierUnknown, Label: UnknownLevelLabel}
}

// TierFromCode returns the tier for a persisted code. Codes outside 1..5 map to Unknown.
func TierFromCode(code domain.TierCode) domain.Tier {
	for _, b := range tierBands {
		if b.tier.Code == code {
			return b.tier
		}
	}
	return domain.Tier{Code: domain.TierUnknown, Label: UnknownLevelLabel}
}
