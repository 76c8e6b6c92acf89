package httpapi

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/members"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/scoring"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// formValue is an onboarding answer as typed into the form. JSON strings and numbers are both accepted
// verbatim; parsing and defaulting happen in the scoring package. Any other JSON value (bool, array,
// object) is treated as a blank answer so it scores as the field's default.
type formValue string

func (v *formValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = formValue(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			*v = ""
			return nil
		}
		*v = formValue(n.String())
		return nil
	}
}

type OnboardingRequest struct {
	LicenseType     formValue `json:"licenseType"`
	LicenseYears    formValue `json:"licenseYears"`
	LifetimeKm      formValue `json:"lifetimeKm"`
	PriorRideCount  formValue `json:"priorRideCount"`
	SportinessGrade formValue `json:"sportinessGrade"`
}

type RegisterMemberRequest struct {
	DisplayName string              `json:"displayName"`
	Email       openapi_types.Email `json:"email"`
	Locality    string              `json:"locality"`
	Comarca     string              `json:"comarca,omitempty"`
	Province    string              `json:"province,omitempty"`
	Onboarding  OnboardingRequest   `json:"onboarding"`
}

func (r RegisterMemberRequest) toInput() members.RegisterMemberInput {
	return members.RegisterMemberInput{
		DisplayName: r.DisplayName,
		Email:       string(r.Email),
		Locality:    r.Locality,
		Comarca:     r.Comarca,
		Province:    r.Province,
		Onboarding: scoring.RawProfile{
			LicenseType:     string(r.Onboarding.LicenseType),
			LicenseYears:    string(r.Onboarding.LicenseYears),
			LifetimeKm:      string(r.Onboarding.LifetimeKm),
			PriorRideCount:  string(r.Onboarding.PriorRideCount),
			SportinessGrade: string(r.Onboarding.SportinessGrade),
		},
	}
}

// UpdateMemberRequest distinguishes omitted fields from explicit nulls.
type UpdateMemberRequest struct {
	DisplayName nullable.Nullable[string]              `json:"displayName,omitempty"`
	Email       nullable.Nullable[openapi_types.Email] `json:"email,omitempty"`
	Locality    nullable.Nullable[string]              `json:"locality,omitempty"`
	Comarca     nullable.Nullable[string]              `json:"comarca,omitempty"`
	Province    nullable.Nullable[string]              `json:"province,omitempty"`
	Approved    nullable.Nullable[bool]                `json:"approved,omitempty"`
}

func (r UpdateMemberRequest) toInput() members.UpdateMemberInput {
	email := optionalFromNullable(r.Email)
	in := members.UpdateMemberInput{
		DisplayName: optionalFromNullable(r.DisplayName),
		Locality:    optionalFromNullable(r.Locality),
		Comarca:     optionalFromNullable(r.Comarca),
		Province:    optionalFromNullable(r.Province),
		Approved:    optionalFromNullable(r.Approved),
	}
	switch {
	case email.IsNull():
		in.Email = members.Null[string]()
	case email.IsSpecified():
		in.Email = members.Some(string(email.Value()))
	}
	return in
}

func optionalFromNullable[T any](n nullable.Nullable[T]) members.Optional[T] {
	if !n.IsSpecified() {
		return members.Unspecified[T]()
	}
	if n.IsNull() {
		return members.Null[T]()
	}
	return members.Some(n.MustGet())
}

type PositionResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type MemberResponse struct {
	MemberID    int64             `json:"memberId"`
	DisplayName string            `json:"displayName"`
	Email       string            `json:"email"`
	Locality    string            `json:"locality"`
	Comarca     string            `json:"comarca"`
	Province    string            `json:"province"`
	Approved    bool              `json:"approved"`
	Position    *PositionResponse `json:"position"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func memberFromDomain(m domain.Member) MemberResponse {
	out := MemberResponse{
		MemberID:    int64(m.ID),
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Locality:    string(m.Locality),
		Comarca:     m.Comarca,
		Province:    m.Province,
		Approved:    m.Approved,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.HasPlacement() {
		out.Position = &PositionResponse{Latitude: *m.Latitude, Longitude: *m.Longitude}
	}
	return out
}

type TierResponse struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type ScoreResponse struct {
	MemberID     int64        `json:"memberId"`
	InitialScore float64      `json:"initialScore"`
	CurrentScore float64      `json:"currentScore"`
	Tier         TierResponse `json:"tier"`
	ComputedAt   time.Time    `json:"computedAt"`
}

func scoreFromDomain(s domain.MemberScore) ScoreResponse {
	return ScoreResponse{
		MemberID:     int64(s.MemberID),
		InitialScore: s.InitialScore,
		CurrentScore: s.CurrentScore,
		Tier:         TierResponse{Code: s.Tier.Code.String(), Label: s.Tier.Label},
		ComputedAt:   s.ComputedAt,
	}
}

type RegisterMemberResponse struct {
	Member MemberResponse `json:"member"`
	Score  ScoreResponse  `json:"score"`
}

type MemberListResponse struct {
	Members []MemberResponse `json:"members"`
}

type StandingResponse struct {
	Rank         int          `json:"rank"`
	MemberID     int64        `json:"memberId"`
	DisplayName  string       `json:"displayName"`
	Locality     string       `json:"locality"`
	InitialScore float64      `json:"initialScore"`
	CurrentScore float64      `json:"currentScore"`
	Tier         TierResponse `json:"tier"`
}

type StandingsResponse struct {
	Standings []StandingResponse `json:"standings"`
}

func standingsFromApp(rows []standings.Standing) StandingsResponse {
	out := StandingsResponse{Standings: make([]StandingResponse, 0, len(rows))}
	for _, s := range rows {
		out.Standings = append(out.Standings, StandingResponse{
			Rank:         s.Rank,
			MemberID:     int64(s.MemberID),
			DisplayName:  s.DisplayName,
			Locality:     string(s.Locality),
			InitialScore: s.InitialScore,
			CurrentScore: s.CurrentScore,
			Tier:         TierResponse{Code: s.Tier.Code.String(), Label: s.Tier.Label},
		})
	}
	return out
}

type PlacementSummaryResponse struct {
	RunID      string    `json:"runId"`
	Scope      string    `json:"scope"`
	Total      int       `json:"total"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func placementSummaryFromApp(s ridermap.Summary) PlacementSummaryResponse {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return PlacementSummaryResponse{
		RunID:      s.RunID.String(),
		Scope:      s.Scope,
		Total:      s.Total,
		Updated:    s.Updated,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Errors:     errs,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

type RecomputeSummaryResponse struct {
	Total      int       `json:"total"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func recomputeSummaryFromApp(s standings.RecomputeSummary) RecomputeSummaryResponse {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return RecomputeSummaryResponse{
		Total:      s.Total,
		Updated:    s.Updated,
		Failed:     s.Failed,
		Errors:     errs,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

type VerifyReportResponse struct {
	Total           int     `json:"total"`
	Placed          int     `json:"placed"`
	Unplaced        int     `json:"unplaced"`
	UnknownLocality int     `json:"unknownLocality"`
	OffGrid         []int64 `json:"offGrid"`
}

func verifyReportFromApp(r ridermap.VerifyReport) VerifyReportResponse {
	out := VerifyReportResponse{
		Total:           r.Total,
		Placed:          r.Placed,
		Unplaced:        r.Unplaced,
		UnknownLocality: r.UnknownLocality,
		OffGrid:         make([]int64, 0, len(r.OffGrid)),
	}
	for _, id := range r.OffGrid {
		out.OffGrid = append(out.OffGrid, int64(id))
	}
	return out
}

type LocalityResponse struct {
	Name      string  `json:"name"`
	Comarca   string  `json:"comarca"`
	Province  string  `json:"province"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func localityFromDomain(l domain.Locality) LocalityResponse {
	base := l.Base()
	return LocalityResponse{
		Name:      string(l.Name),
		Comarca:   l.Comarca,
		Province:  l.Province,
		Latitude:  base.Latitude,
		Longitude: base.Longitude,
	}
}
