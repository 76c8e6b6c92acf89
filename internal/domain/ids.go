package domain

// SubjectID is the authenticated subject extracted from JWT claims (typically "sub").
// We model it as an opaque identifier: its format is controlled by the token issuer.
type SubjectID string

// MemberID is the internal identifier for a member record.
//
// IDs are assigned in ascending order at creation and never reused, so ascending ID order is the
// stable ordering key used wherever members sharing a locality must be ranked deterministically.
type MemberID int64

// LocalityName keys the locality reference table (town/municipality name).
type LocalityName string
