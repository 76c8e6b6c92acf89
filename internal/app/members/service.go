package members

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/scoring"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/metrics"
	clockport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
)

// Options carries the service's ambient dependencies. Zero values fall back to slog.Default,
// no metrics, and the global otel tracer.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

type Service struct {
	repo memberrepo.Repository
	clk  clockport.Clock

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewService(repo memberrepo.Repository, clk clockport.Clock, opts Options) *Service {
	s := &Service{
		repo:    repo,
		clk:     clk,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "members")
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/Overland-East-Bay/rider-standings-api/internal/app/members")
	}
	return s
}

// RegisterMember binds a new member to subject and creates its score record in the same write.
// Nothing is stored when either insert fails.
func (s *Service) RegisterMember(ctx context.Context, subject domain.SubjectID, in RegisterMemberInput) (domain.Member, domain.MemberScore, error) {
	ctx, span := s.tracer.Start(ctx, "MembersService.RegisterMember")
	defer span.End()

	if _, err := s.repo.GetBySubject(ctx, subject); err == nil {
		return domain.Member{}, domain.MemberScore{}, errMemberAlreadyExists()
	} else if !errors.Is(err, memberrepo.ErrNotFound) {
		return domain.Member{}, domain.MemberScore{}, err
	}

	displayName := domain.NormalizeHumanName(in.DisplayName)
	if displayName == "" {
		return domain.Member{}, domain.MemberScore{}, validationError("displayName", "must be non-empty")
	}
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return domain.Member{}, domain.MemberScore{}, validationError("email", err.Error())
	}
	locality := domain.NormalizeLocalityName(in.Locality)
	if locality == "" {
		return domain.Member{}, domain.MemberScore{}, validationError("locality", "must be non-empty")
	}

	now := s.clk.Now()
	profile := scoring.ParseOnboardingProfile(in.Onboarding)
	score := scoring.NewScoreRecord(0, profile, now)

	created, err := s.repo.CreateWithScore(ctx, memberrepo.Member{
		Subject:     subject,
		DisplayName: displayName,
		Email:       email,
		Locality:    locality,
		Comarca:     domain.NormalizeHumanName(in.Comarca),
		Province:    domain.NormalizeHumanName(in.Province),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, score)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create member")
		switch {
		case errors.Is(err, memberrepo.ErrSubjectAlreadyBound):
			return domain.Member{}, domain.MemberScore{}, errMemberAlreadyExists()
		case errors.Is(err, memberrepo.ErrEmailInUse):
			return domain.Member{}, domain.MemberScore{}, errEmailInUse()
		}
		s.logger.ErrorContext(ctx, "member registration failed", "subject", string(subject), "error", err)
		return domain.Member{}, domain.MemberScore{}, err
	}
	score.MemberID = created.ID

	span.SetAttributes(
		attribute.Int64("member.id", int64(created.ID)),
		attribute.Float64("score.initial", score.InitialScore),
		attribute.String("score.tier", score.Tier.Label),
	)
	s.metrics.ObserveScoreCreated(score.Tier.Label)
	s.logger.InfoContext(ctx, "member registered",
		"member_id", int64(created.ID),
		"locality", string(created.Locality),
		"initial_score", score.InitialScore,
		"tier", score.Tier.Label,
	)
	return toDomain(created), score, nil
}

func (s *Service) GetMember(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, errMemberNotFound()
		}
		return domain.Member{}, err
	}
	return toDomain(m), nil
}

func (s *Service) GetMyMember(ctx context.Context, subject domain.SubjectID) (domain.Member, error) {
	m, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, &Error{
				Status:  404,
				Code:    "MEMBER_NOT_PROVISIONED",
				Message: "No member profile exists for the authenticated subject.",
			}
		}
		return domain.Member{}, err
	}
	return toDomain(m), nil
}

// ListMembers returns the directory ordered by member ID.
func (s *Service) ListMembers(ctx context.Context, approvedOnly bool) ([]domain.Member, error) {
	ms, err := s.repo.List(ctx, memberrepo.ListFilter{ApprovedOnly: approvedOnly})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(ms))
	for _, m := range ms {
		out = append(out, toDomain(m))
	}
	return out, nil
}

func (s *Service) UpdateMember(ctx context.Context, id domain.MemberID, in UpdateMemberInput) (domain.Member, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, errMemberNotFound()
		}
		return domain.Member{}, err
	}

	if in.DisplayName.IsSpecified() {
		if in.DisplayName.IsNull() {
			return domain.Member{}, validationError("displayName", "cannot be null")
		}
		displayName := domain.NormalizeHumanName(in.DisplayName.Value())
		if displayName == "" {
			return domain.Member{}, validationError("displayName", "must be non-empty")
		}
		m.DisplayName = displayName
	}

	if in.Email.IsSpecified() {
		if in.Email.IsNull() {
			return domain.Member{}, validationError("email", "cannot be null")
		}
		email := strings.TrimSpace(in.Email.Value())
		if err := validateEmail(email); err != nil {
			return domain.Member{}, validationError("email", err.Error())
		}
		m.Email = email
	}

	if in.Locality.IsSpecified() {
		if in.Locality.IsNull() {
			return domain.Member{}, validationError("locality", "cannot be null")
		}
		locality := domain.NormalizeLocalityName(in.Locality.Value())
		if locality == "" {
			return domain.Member{}, validationError("locality", "must be non-empty")
		}
		if locality != m.Locality {
			m.Locality = locality
			// Old coordinates belong to the old locality grid.
			m.Latitude = nil
			m.Longitude = nil
		}
	}

	if in.Comarca.IsSpecified() {
		m.Comarca = ""
		if !in.Comarca.IsNull() {
			m.Comarca = domain.NormalizeHumanName(in.Comarca.Value())
		}
	}
	if in.Province.IsSpecified() {
		m.Province = ""
		if !in.Province.IsNull() {
			m.Province = domain.NormalizeHumanName(in.Province.Value())
		}
	}

	if in.Approved.IsSpecified() {
		if in.Approved.IsNull() {
			return domain.Member{}, validationError("approved", "cannot be null")
		}
		m.Approved = in.Approved.Value()
	}

	m.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, m); err != nil {
		switch {
		case errors.Is(err, memberrepo.ErrNotFound):
			return domain.Member{}, errMemberNotFound()
		case errors.Is(err, memberrepo.ErrEmailInUse):
			return domain.Member{}, errEmailInUse()
		}
		return domain.Member{}, err
	}
	return toDomain(m), nil
}

// DeleteMember removes the member and its score record.
func (s *Service) DeleteMember(ctx context.Context, id domain.MemberID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return errMemberNotFound()
		}
		return err
	}
	s.logger.InfoContext(ctx, "member deleted", "member_id", int64(id))
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if addr.Address != email {
		return errors.New("must be a bare email address")
	}
	return nil
}

func validationError(field, problem string) *Error {
	return &Error{
		Status:  422,
		Code:    "VALIDATION_ERROR",
		Message: "invalid " + field,
		Details: map[string]any{field: problem},
	}
}

func errMemberAlreadyExists() *Error {
	return &Error{
		Status:  409,
		Code:    "MEMBER_ALREADY_EXISTS",
		Message: "A member profile already exists for the authenticated subject.",
	}
}

func errEmailInUse() *Error {
	return &Error{
		Status:  409,
		Code:    "EMAIL_ALREADY_IN_USE",
		Message: "email address is already in use",
	}
}

func errMemberNotFound() *Error {
	return &Error{
		Status:  404,
		Code:    "MEMBER_NOT_FOUND",
		Message: "member not found",
	}
}

func toDomain(m memberrepo.Member) domain.Member {
	return domain.Member{
		ID:          m.ID,
		Subject:     m.Subject,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Locality:    m.Locality,
		Comarca:     m.Comarca,
		Province:    m.Province,
		Approved:    m.Approved,
		Latitude:    cloneFloatPtr(m.Latitude),
		Longitude:   cloneFloatPtr(m.Longitude),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
