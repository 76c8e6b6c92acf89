package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// It is used for displayName and locality normalization.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLocalityName applies NormalizeHumanName to a locality key.
// Matching against the reference table is exact (case-sensitive) after normalization.
func NormalizeLocalityName(s string) LocalityName {
	return LocalityName(NormalizeHumanName(s))
}
