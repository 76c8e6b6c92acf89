// Package ridermap places members on the club map and serves the rider layer.
//
// Single-member placement is synchronous; batch runs (PlaceAll, PlaceLocality) are guarded by a named
// run lock so two runs over the same scope never interleave their coordinate writes.
package ridermap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/placement"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/metrics"
	clockport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

const (
	batchKind = "placement"

	// DefaultLockTTL bounds how long a crashed batch run can block the next one.
	DefaultLockTTL = 15 * time.Minute
)

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	LockTTL time.Duration
}

// Deps groups the ports the service reads and writes.
type Deps struct {
	Members    memberrepo.Repository
	Scores     scorerepo.Repository
	Localities localityrepo.Repository
	Locks      runlock.Store
	Clock      clockport.Clock
}

type Service struct {
	members    memberrepo.Repository
	scores     scorerepo.Repository
	localities localityrepo.Repository
	locks      runlock.Store
	clk        clockport.Clock
	engine     *placement.Engine

	lockTTL time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		members:    deps.Members,
		scores:     deps.Scores,
		localities: deps.Localities,
		locks:      deps.Locks,
		clk:        deps.Clock,
		engine:     placement.NewEngine(deps.Localities),
		lockTTL:    opts.LockTTL,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "ridermap")
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap")
	}
	return s
}

// Summary reports a batch placement run. Updated + Failed + Skipped == Total.
type Summary struct {
	RunID uuid.UUID
	// Scope is "all" or the locality name.
	Scope string

	Total   int
	Updated int
	Failed  int
	Skipped int
	// Errors has one "member <id>: <err>" entry per failed member.
	Errors []string

	StartedAt  time.Time
	FinishedAt time.Time
}

// ScopeAll is the Summary.Scope of a whole-directory run.
const ScopeAll = "all"

// PlaceMember recomputes and stores one member's map position among all members of its locality.
// The ordering matches the one batch runs use, so single and batch placement never share a cell.
// When the locality has no reference coordinates the stored position is left untouched.
func (s *Service) PlaceMember(ctx context.Context, id domain.MemberID) (domain.Coordinates, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Coordinates{}, errMemberNotFound()
		}
		return domain.Coordinates{}, err
	}

	ids, err := s.members.ListIDsByLocality(ctx, m.Locality, false)
	if err != nil {
		return domain.Coordinates{}, err
	}
	c, err := s.engine.PlaceMember(ctx, m.Locality, m.ID, placement.SortedIDs(append(ids, m.ID)))
	if err != nil {
		if errors.Is(err, placement.ErrLocalityNotFound) {
			return domain.Coordinates{}, errLocalityNotFound(m.Locality)
		}
		return domain.Coordinates{}, err
	}
	if err := s.members.SetCoordinates(ctx, m.ID, c); err != nil {
		return domain.Coordinates{}, err
	}
	s.logger.InfoContext(ctx, "member placed",
		"member_id", int64(m.ID),
		"locality", string(m.Locality),
		"lat", c.Latitude,
		"lng", c.Longitude,
	)
	return c, nil
}

// PlaceAll places every approved member, one locality at a time in name order.
// Each locality is placed under its own run lock, so a concurrent PlaceLocality over the same locality
// is refused while this run holds it and vice versa.
// Per-member and per-locality problems are counted in the summary; only a directory read failure aborts.
func (s *Service) PlaceAll(ctx context.Context) (Summary, error) {
	return s.runBatch(ctx, ScopeAll, func(ctx context.Context, sum *Summary) error {
		ms, err := s.members.List(ctx, memberrepo.ListFilter{ApprovedOnly: true})
		if err != nil {
			return err
		}
		groups := make(map[domain.LocalityName][]domain.MemberID)
		for _, m := range ms {
			groups[m.Locality] = append(groups[m.Locality], m.ID)
		}
		names := make([]domain.LocalityName, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

		owner := sum.RunID.String()
		for _, name := range names {
			lockName := localityLockName(name)
			_, ok, err := s.locks.Acquire(ctx, lockName, owner, s.clk.Now().UTC(), s.lockTTL)
			if err != nil || !ok {
				reason := fmt.Errorf("placement for %q already running", string(name))
				if err != nil {
					reason = fmt.Errorf("acquire %s: %w", lockName, err)
				}
				s.failGroup(ctx, name, groups[name], reason, sum)
				continue
			}
			s.placeGroup(ctx, name, groups[name], sum)
			if err := s.locks.Release(context.WithoutCancel(ctx), lockName, owner); err != nil {
				s.logger.ErrorContext(ctx, "release run lock failed", "lock", lockName, "error", err)
			}
		}
		return nil
	})
}

// PlaceLocality is PlaceAll restricted to one locality.
func (s *Service) PlaceLocality(ctx context.Context, name string) (Summary, error) {
	locality := domain.NormalizeLocalityName(name)
	if locality == "" {
		return Summary{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid locality",
			Details: map[string]any{"locality": "must be non-empty"},
		}
	}
	return s.runBatch(ctx, string(locality), func(ctx context.Context, sum *Summary) error {
		ids, err := s.members.ListIDsByLocality(ctx, locality, true)
		if err != nil {
			return err
		}
		s.placeGroup(ctx, locality, ids, sum)
		return nil
	})
}

func (s *Service) runBatch(ctx context.Context, scope string, body func(context.Context, *Summary) error) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "RiderMapService.PlaceBatch", trace.WithAttributes(attribute.String("placement.scope", scope)))
	defer span.End()

	sum := Summary{
		RunID:     uuid.New(),
		Scope:     scope,
		StartedAt: s.clk.Now().UTC(),
	}
	logger := s.logger.With("run_id", sum.RunID.String(), "scope", scope)

	lockName := "placement:" + scope
	if scope != ScopeAll {
		lockName = localityLockName(domain.LocalityName(scope))
	}
	owner := sum.RunID.String()
	lease, ok, err := s.locks.Acquire(ctx, lockName, owner, sum.StartedAt, s.lockTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire run lock")
		return Summary{}, fmt.Errorf("acquire %s: %w", lockName, err)
	}
	if !ok {
		s.metrics.IncBatchRefused(batchKind)
		logger.WarnContext(ctx, "placement batch refused: already running", "held_until", lease.ExpiresAt)
		return Summary{}, &Error{
			Status:  409,
			Code:    "BATCH_ALREADY_RUNNING",
			Message: "a placement batch for this scope is already running",
			Details: map[string]any{
				"scope":     scope,
				"heldUntil": lease.ExpiresAt.Format(time.RFC3339),
			},
		}
	}
	defer func() {
		// Release on a fresh context so a canceled request still frees the lock.
		if err := s.locks.Release(context.WithoutCancel(ctx), lockName, owner); err != nil {
			logger.ErrorContext(ctx, "release run lock failed", "error", err)
		}
	}()

	if err := body(ctx, &sum); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "placement batch")
		logger.ErrorContext(ctx, "placement batch aborted", "error", err)
		return Summary{}, err
	}
	sum.FinishedAt = s.clk.Now().UTC()

	span.SetAttributes(
		attribute.Int("placement.total", sum.Total),
		attribute.Int("placement.updated", sum.Updated),
		attribute.Int("placement.failed", sum.Failed),
		attribute.Int("placement.skipped", sum.Skipped),
	)
	s.metrics.AddPlacements("updated", sum.Updated)
	s.metrics.AddPlacements("failed", sum.Failed)
	s.metrics.AddPlacements("skipped", sum.Skipped)
	s.metrics.ObserveBatch(batchKind, sum.FinishedAt.Sub(sum.StartedAt))
	logger.InfoContext(ctx, "placement batch finished",
		"total", sum.Total,
		"updated", sum.Updated,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
	)
	return sum, nil
}

func localityLockName(name domain.LocalityName) string {
	return "placement:" + string(name)
}

// placeGroup places the target members of one locality and folds the outcome into sum.
// Grid positions come from the ordering of every member in the locality, approved or not,
// so a later single placement of any member lands on the same cell a batch would give it.
func (s *Service) placeGroup(ctx context.Context, locality domain.LocalityName, targets []domain.MemberID, sum *Summary) {
	all, err := s.members.ListIDsByLocality(ctx, locality, false)
	if err != nil {
		s.failGroup(ctx, locality, targets, err, sum)
		return
	}
	ordering := placement.SortedIDs(append(all, targets...))
	ordered := placement.SortedIDs(targets)

	coords, err := s.engine.PlaceAllInLocality(ctx, locality, ordering)
	if err != nil {
		if errors.Is(err, placement.ErrLocalityNotFound) {
			sum.Total += len(ordered)
			sum.Skipped += len(ordered)
			s.logger.InfoContext(ctx, "locality skipped", "locality", string(locality), "members", len(ordered))
			return
		}
		s.failGroup(ctx, locality, ordered, err, sum)
		return
	}

	sum.Total += len(ordered)
	for _, id := range ordered {
		if err := s.members.SetCoordinates(ctx, id, coords[id]); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("member %d: %v", id, err))
			s.logger.WarnContext(ctx, "coordinate write failed", "member_id", int64(id), "error", err)
			continue
		}
		sum.Updated++
	}
}

// failGroup counts every target of a locality as failed with the same cause.
func (s *Service) failGroup(ctx context.Context, locality domain.LocalityName, targets []domain.MemberID, cause error, sum *Summary) {
	ordered := placement.SortedIDs(targets)
	sum.Total += len(ordered)
	for _, id := range ordered {
		sum.Failed++
		sum.Errors = append(sum.Errors, fmt.Sprintf("member %d: %v", id, cause))
	}
	s.logger.ErrorContext(ctx, "locality placement failed", "locality", string(locality), "members", len(ordered), "error", cause)
}

// LocalityPosition returns the base coordinates of a locality.
func (s *Service) LocalityPosition(ctx context.Context, name string) (domain.Locality, error) {
	locality := domain.NormalizeLocalityName(name)
	if locality == "" {
		return domain.Locality{}, errLocalityNotFound(locality)
	}
	l, err := s.localities.Lookup(ctx, locality)
	if err != nil {
		if errors.Is(err, localityrepo.ErrNotFound) {
			return domain.Locality{}, errLocalityNotFound(locality)
		}
		return domain.Locality{}, err
	}
	return l, nil
}

func errMemberNotFound() *Error {
	return &Error{
		Status:  404,
		Code:    "MEMBER_NOT_FOUND",
		Message: "member not found",
	}
}

func errLocalityNotFound(name domain.LocalityName) *Error {
	return &Error{
		Status:  404,
		Code:    "LOCALITY_NOT_FOUND",
		Message: "locality has no reference coordinates",
		Details: map[string]any{"locality": string(name)},
	}
}
