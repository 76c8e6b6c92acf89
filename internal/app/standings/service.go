// Package standings owns the current-score side of member scoring: activity-driven recomputation and
// the ranked standings table.
package standings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/scoring"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/metrics"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/activity"
	clockport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

const batchKind = "score_recompute"

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

type Service struct {
	members  memberrepo.Repository
	scores   scorerepo.Repository
	activity activity.Counter
	clk      clockport.Clock

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewService(members memberrepo.Repository, scores scorerepo.Repository, counter activity.Counter, clk clockport.Clock, opts Options) *Service {
	s := &Service{
		members:  members,
		scores:   scores,
		activity: counter,
		clk:      clk,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "standings")
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/Overland-East-Bay/rider-standings-api/internal/app/standings")
	}
	return s
}

// Standing is one row of the standings table.
type Standing struct {
	Rank         int
	MemberID     domain.MemberID
	DisplayName  string
	Locality     domain.LocalityName
	InitialScore float64
	CurrentScore float64
	Tier         domain.Tier
	ComputedAt   time.Time
}

// RecomputeSummary reports a RecomputeAll run. Updated + Failed == Total.
type RecomputeSummary struct {
	Total   int
	Updated int
	Failed  int
	Errors  []string

	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *Service) GetScore(ctx context.Context, id domain.MemberID) (domain.MemberScore, error) {
	sc, err := s.scores.Get(ctx, id)
	if err != nil {
		if errors.Is(err, scorerepo.ErrNotFound) {
			return domain.MemberScore{}, errScoreNotFound()
		}
		return domain.MemberScore{}, err
	}
	return sc, nil
}

// RecomputeCurrentScore re-derives the current score from the member's lifetime activity and stores it.
// Running it twice without new activity stores the same value. The tier is left as assigned at registration.
func (s *Service) RecomputeCurrentScore(ctx context.Context, id domain.MemberID) (domain.MemberScore, error) {
	sc, err := s.recompute(ctx, id)
	s.metrics.ObserveScoreRecompute(err == nil)
	if err != nil {
		if errors.Is(err, scorerepo.ErrNotFound) {
			return domain.MemberScore{}, errScoreNotFound()
		}
		return domain.MemberScore{}, err
	}
	return sc, nil
}

func (s *Service) recompute(ctx context.Context, id domain.MemberID) (domain.MemberScore, error) {
	sc, err := s.scores.Get(ctx, id)
	if err != nil {
		return domain.MemberScore{}, err
	}
	rides, err := s.activity.CountRideEnrollments(ctx, id)
	if err != nil {
		return domain.MemberScore{}, fmt.Errorf("count ride enrollments: %w", err)
	}
	comments, err := s.activity.CountRideComments(ctx, id)
	if err != nil {
		return domain.MemberScore{}, fmt.Errorf("count ride comments: %w", err)
	}

	sc.CurrentScore = scoring.RecomputeCurrentScore(sc.InitialScore, rides, comments)
	sc.ComputedAt = s.clk.Now().UTC()
	if err := s.scores.UpdateCurrent(ctx, id, sc.CurrentScore, sc.ComputedAt); err != nil {
		return domain.MemberScore{}, fmt.Errorf("update current score: %w", err)
	}
	return sc, nil
}

// RecomputeAll recomputes every score record. A failure on one member is recorded and the run continues;
// only failing to list the records aborts.
func (s *Service) RecomputeAll(ctx context.Context) (RecomputeSummary, error) {
	ctx, span := s.tracer.Start(ctx, "StandingsService.RecomputeAll")
	defer span.End()

	sum := RecomputeSummary{StartedAt: s.clk.Now().UTC()}
	scores, err := s.scores.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list scores")
		return RecomputeSummary{}, err
	}

	sum.Total = len(scores)
	for _, sc := range scores {
		if _, err := s.recompute(ctx, sc.MemberID); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("member %d: %v", sc.MemberID, err))
			s.metrics.ObserveScoreRecompute(false)
			s.logger.WarnContext(ctx, "score recompute failed", "member_id", int64(sc.MemberID), "error", err)
			continue
		}
		sum.Updated++
		s.metrics.ObserveScoreRecompute(true)
	}
	sum.FinishedAt = s.clk.Now().UTC()

	span.SetAttributes(
		attribute.Int("recompute.total", sum.Total),
		attribute.Int("recompute.updated", sum.Updated),
		attribute.Int("recompute.failed", sum.Failed),
	)
	s.metrics.ObserveBatch(batchKind, sum.FinishedAt.Sub(sum.StartedAt))
	s.logger.InfoContext(ctx, "score recompute finished",
		"total", sum.Total,
		"updated", sum.Updated,
		"failed", sum.Failed,
	)
	return sum, nil
}

// Standings returns approved members ranked by current score, highest first. Ties keep ascending member ID
// order and share no rank: Rank is the 1-based row number.
func (s *Service) Standings(ctx context.Context) ([]Standing, error) {
	ms, err := s.members.List(ctx, memberrepo.ListFilter{ApprovedOnly: true})
	if err != nil {
		return nil, err
	}
	scores, err := s.scores.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[domain.MemberID]domain.MemberScore, len(scores))
	for _, sc := range scores {
		byID[sc.MemberID] = sc
	}

	out := make([]Standing, 0, len(ms))
	for _, m := range ms {
		sc, ok := byID[m.ID]
		if !ok {
			continue
		}
		out = append(out, Standing{
			MemberID:     m.ID,
			DisplayName:  m.DisplayName,
			Locality:     m.Locality,
			InitialScore: sc.InitialScore,
			CurrentScore: sc.CurrentScore,
			Tier:         sc.Tier,
			ComputedAt:   sc.ComputedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CurrentScore != out[j].CurrentScore {
			return out[i].CurrentScore > out[j].CurrentScore
		}
		return out[i].MemberID < out[j].MemberID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func errScoreNotFound() *Error {
	return &Error{
		Status:  404,
		Code:    "SCORE_NOT_FOUND",
		Message: "member score not found",
	}
}
