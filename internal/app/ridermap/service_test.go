package ridermap

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"

	memclock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/clock"
	memlocalityrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/localityrepo"
	memmemberrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/memberrepo"
	memrunlock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/runlock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/placement"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/scoring"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/logging"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/metrics"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
)

var manresa = domain.Locality{Name: "Manresa", Comarca: "Bages", Province: "Barcelona", X: 1.8262, Y: 41.7286}
var vic = domain.Locality{Name: "Vic", Comarca: "Osona", Province: "Barcelona", X: 2.2546, Y: 41.9301}

type fixture struct {
	members    *memmemberrepo.Repo
	localities *memlocalityrepo.Repo
	locks      *memrunlock.Store
	clk        *memclock.ManualClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		members:    memmemberrepo.NewRepo(),
		localities: memlocalityrepo.NewRepo(),
		locks:      memrunlock.NewStore(),
		clk:        memclock.NewManualClock(time.Unix(1_000, 0).UTC()),
	}
	for _, l := range []domain.Locality{manresa, vic} {
		if err := f.localities.Upsert(context.Background(), l); err != nil {
			t.Fatalf("Upsert(%s) err=%v", l.Name, err)
		}
	}
	return f
}

func (f fixture) service(members memberrepo.Repository) *Service {
	return NewService(Deps{
		Members:    members,
		Scores:     f.members.Scores(),
		Localities: f.localities,
		Locks:      f.locks,
		Clock:      f.clk,
	}, Options{
		Logger:  logging.Discard(),
		Metrics: metrics.New(prometheus.NewRegistry()),
		LockTTL: time.Minute,
	})
}

func (f fixture) addMember(t *testing.T, sub string, locality domain.LocalityName, approved bool) domain.MemberID {
	t.Helper()
	m, err := f.members.CreateWithScore(context.Background(), memberrepo.Member{
		Subject:     domain.SubjectID(sub),
		DisplayName: "Rider " + sub,
		Email:       sub + "@example.com",
		Locality:    locality,
		Comarca:     "Bages",
		Approved:    approved,
	}, scoring.NewScoreRecord(0, domain.OnboardingProfile{LicenseType: 3}, f.clk.Now()))
	if err != nil {
		t.Fatalf("CreateWithScore(%s) err=%v", sub, err)
	}
	return m.ID
}

func (f fixture) coordinates(t *testing.T, id domain.MemberID) (domain.Coordinates, bool) {
	t.Helper()
	m, err := f.members.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d) err=%v", id, err)
	}
	if m.Latitude == nil || m.Longitude == nil {
		return domain.Coordinates{}, false
	}
	return domain.Coordinates{Latitude: *m.Latitude, Longitude: *m.Longitude}, true
}

func near(a, b domain.Coordinates) bool {
	return math.Abs(a.Latitude-b.Latitude) < 1e-9 && math.Abs(a.Longitude-b.Longitude) < 1e-9
}

func TestService_PlaceMember_AloneSitsOnBase(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.addMember(t, "a", "Vic", true)

	got, err := f.service(f.members).PlaceMember(context.Background(), id)
	if err != nil {
		t.Fatalf("PlaceMember err=%v", err)
	}
	if !near(got, vic.Base()) {
		t.Fatalf("PlaceMember=%+v, want base %+v", got, vic.Base())
	}
	if stored, ok := f.coordinates(t, id); !ok || !near(stored, got) {
		t.Fatalf("stored=%+v ok=%v, want %+v", stored, ok, got)
	}
}

func TestService_PlaceMember_SharedLocalityUsesGrid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ids := []domain.MemberID{
		f.addMember(t, "a", "Manresa", true),
		f.addMember(t, "b", "Manresa", true),
		f.addMember(t, "c", "Manresa", true),
		f.addMember(t, "d", "Manresa", true),
	}
	svc := f.service(f.members)

	first, err := svc.PlaceMember(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("PlaceMember err=%v", err)
	}
	want := domain.Coordinates{Latitude: manresa.Y - placement.GridStep, Longitude: manresa.X - placement.GridStep}
	if !near(first, want) {
		t.Fatalf("first=%+v, want %+v", first, want)
	}

	last, err := svc.PlaceMember(context.Background(), ids[3])
	if err != nil {
		t.Fatalf("PlaceMember err=%v", err)
	}
	if !near(last, manresa.Base()) {
		t.Fatalf("last=%+v, want base %+v", last, manresa.Base())
	}
}

func TestService_PlaceMember_UnknownLocalityLeavesCoordinates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.addMember(t, "a", "Atlantis", true)
	if err := f.members.SetCoordinates(context.Background(), id, domain.Coordinates{Latitude: 41, Longitude: 2}); err != nil {
		t.Fatalf("SetCoordinates err=%v", err)
	}

	_, err := f.service(f.members).PlaceMember(context.Background(), id)
	var ae *Error
	if !errors.As(err, &ae) || ae.Status != 404 || ae.Code != "LOCALITY_NOT_FOUND" {
		t.Fatalf("err=%v, want LOCALITY_NOT_FOUND 404", err)
	}
	if stored, ok := f.coordinates(t, id); !ok || !near(stored, domain.Coordinates{Latitude: 41, Longitude: 2}) {
		t.Fatalf("stored=%+v ok=%v, want untouched", stored, ok)
	}

	_, err = f.service(f.members).PlaceMember(context.Background(), 999)
	if !errors.As(err, &ae) || ae.Code != "MEMBER_NOT_FOUND" {
		t.Fatalf("err=%v, want MEMBER_NOT_FOUND", err)
	}
}

type failingWrites struct {
	memberrepo.Repository
	failFor domain.MemberID
}

func (r failingWrites) SetCoordinates(ctx context.Context, id domain.MemberID, c domain.Coordinates) error {
	if id == r.failFor {
		return errors.New("disk full")
	}
	return r.Repository.SetCoordinates(ctx, id, c)
}

func TestService_PlaceAll_CountsEveryOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m1 := f.addMember(t, "m1", "Manresa", true)
	m2 := f.addMember(t, "m2", "Manresa", true)
	_ = f.addMember(t, "m3", "Manresa", false)
	v1 := f.addMember(t, "v1", "Vic", true)
	a1 := f.addMember(t, "a1", "Atlantis", true)
	_ = f.addMember(t, "a2", "Atlantis", true)
	_ = f.addMember(t, "blank", "", true)

	sum, err := f.service(failingWrites{Repository: f.members, failFor: m2}).PlaceAll(context.Background())
	if err != nil {
		t.Fatalf("PlaceAll err=%v", err)
	}

	want := Summary{
		Scope:   ScopeAll,
		Total:   6,
		Updated: 2,
		Failed:  1,
		Skipped: 3,
		Errors:  []string{"member 2: disk full"},
	}
	if diff := cmp.Diff(want, sum, cmpopts.IgnoreFields(Summary{}, "RunID", "StartedAt", "FinishedAt")); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if sum.Updated+sum.Failed+sum.Skipped != sum.Total {
		t.Fatalf("updated+failed+skipped=%d, want %d", sum.Updated+sum.Failed+sum.Skipped, sum.Total)
	}
	if sum.RunID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("RunID not set")
	}

	if c, ok := f.coordinates(t, m1); !ok || !near(c, domain.Coordinates{Latitude: manresa.Y - placement.GridStep, Longitude: manresa.X - placement.GridStep}) {
		t.Fatalf("m1=%+v ok=%v", c, ok)
	}
	if _, ok := f.coordinates(t, m2); ok {
		t.Fatalf("m2 placed despite failed write")
	}
	if c, ok := f.coordinates(t, v1); !ok || !near(c, vic.Base()) {
		t.Fatalf("v1=%+v ok=%v", c, ok)
	}
	if _, ok := f.coordinates(t, a1); ok {
		t.Fatalf("a1 placed without reference coordinates")
	}

	// The lock is released once the run finishes.
	if _, ok, _ := f.locks.Acquire(context.Background(), "placement:all", "next-run", f.clk.Now(), time.Minute); !ok {
		t.Fatalf("placement:all still held after run")
	}
}

func TestService_PlaceAll_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var ids []domain.MemberID
	for _, sub := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, f.addMember(t, sub, "Manresa", true))
	}
	svc := f.service(f.members)

	if _, err := svc.PlaceAll(context.Background()); err != nil {
		t.Fatalf("PlaceAll err=%v", err)
	}
	first := make(map[domain.MemberID]domain.Coordinates)
	for _, id := range ids {
		first[id], _ = f.coordinates(t, id)
	}

	if _, err := svc.PlaceAll(context.Background()); err != nil {
		t.Fatalf("PlaceAll(second) err=%v", err)
	}
	seen := make(map[domain.Coordinates]domain.MemberID)
	for _, id := range ids {
		c, _ := f.coordinates(t, id)
		if c != first[id] {
			t.Fatalf("member %d moved: %+v -> %+v", id, first[id], c)
		}
		if other, dup := seen[c]; dup {
			t.Fatalf("members %d and %d share %+v", other, id, c)
		}
		seen[c] = id
	}
}

func TestService_PlaceBatch_RefusedWhileLockHeld(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_ = f.addMember(t, "a", "Manresa", true)
	svc := f.service(f.members)
	ctx := context.Background()

	if _, ok, err := f.locks.Acquire(ctx, "placement:all", "other-run", f.clk.Now(), time.Minute); err != nil || !ok {
		t.Fatalf("Acquire ok=%v err=%v", ok, err)
	}

	_, err := svc.PlaceAll(ctx)
	var ae *Error
	if !errors.As(err, &ae) || ae.Status != 409 || ae.Code != "BATCH_ALREADY_RUNNING" {
		t.Fatalf("err=%v, want BATCH_ALREADY_RUNNING 409", err)
	}

	// Other scopes are independent.
	sum, err := svc.PlaceLocality(ctx, " Manresa ")
	if err != nil {
		t.Fatalf("PlaceLocality err=%v", err)
	}
	if sum.Scope != "Manresa" || sum.Updated != 1 {
		t.Fatalf("summary=%+v", sum)
	}

	// An expired lease is taken over.
	f.clk.Advance(2 * time.Minute)
	if _, err := svc.PlaceAll(ctx); err != nil {
		t.Fatalf("PlaceAll after expiry err=%v", err)
	}
}

func TestService_PlaceAll_SkipsLocalityHeldByAnotherRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m1 := f.addMember(t, "m1", "Manresa", true)
	m2 := f.addMember(t, "m2", "Manresa", true)
	v1 := f.addMember(t, "v1", "Vic", true)
	svc := f.service(f.members)
	ctx := context.Background()

	if _, ok, err := f.locks.Acquire(ctx, "placement:Manresa", "other-run", f.clk.Now(), time.Minute); err != nil || !ok {
		t.Fatalf("Acquire ok=%v err=%v", ok, err)
	}

	sum, err := svc.PlaceAll(ctx)
	if err != nil {
		t.Fatalf("PlaceAll err=%v", err)
	}
	want := Summary{
		Scope:   ScopeAll,
		Total:   3,
		Updated: 1,
		Failed:  2,
		Errors: []string{
			`member 1: placement for "Manresa" already running`,
			`member 2: placement for "Manresa" already running`,
		},
	}
	if diff := cmp.Diff(want, sum, cmpopts.IgnoreFields(Summary{}, "RunID", "StartedAt", "FinishedAt")); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []domain.MemberID{m1, m2} {
		if _, ok := f.coordinates(t, id); ok {
			t.Fatalf("member %d written while its locality was locked", id)
		}
	}
	if c, ok := f.coordinates(t, v1); !ok || !near(c, vic.Base()) {
		t.Fatalf("v1=%+v ok=%v", c, ok)
	}

	// A locality run over the held locality is refused outright.
	_, err = svc.PlaceLocality(ctx, "Manresa")
	var ae *Error
	if !errors.As(err, &ae) || ae.Status != 409 || ae.Code != "BATCH_ALREADY_RUNNING" {
		t.Fatalf("err=%v, want BATCH_ALREADY_RUNNING 409", err)
	}

	// PlaceAll releases the locality locks it took.
	if _, ok, _ := f.locks.Acquire(ctx, "placement:Vic", "next-run", f.clk.Now(), time.Minute); !ok {
		t.Fatalf("placement:Vic still held after run")
	}
}

func TestService_PlaceMember_MatchesBatchGridWithPendingMembers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.addMember(t, "a", "Manresa", true)
	b := f.addMember(t, "b", "Manresa", true)
	pending := f.addMember(t, "pending", "Manresa", false)
	svc := f.service(f.members)
	ctx := context.Background()

	if _, err := svc.PlaceAll(ctx); err != nil {
		t.Fatalf("PlaceAll err=%v", err)
	}
	if _, ok := f.coordinates(t, pending); ok {
		t.Fatalf("pending member placed by batch run")
	}
	if _, err := svc.PlaceMember(ctx, pending); err != nil {
		t.Fatalf("PlaceMember err=%v", err)
	}

	seen := make(map[domain.Coordinates]domain.MemberID)
	for _, id := range []domain.MemberID{a, b, pending} {
		c, ok := f.coordinates(t, id)
		if !ok {
			t.Fatalf("member %d unplaced", id)
		}
		if other, dup := seen[c]; dup {
			t.Fatalf("members %d and %d share %+v", other, id, c)
		}
		seen[c] = id
	}

	// Re-placing an approved member one at a time keeps the batch position.
	before, _ := f.coordinates(t, b)
	after, err := svc.PlaceMember(ctx, b)
	if err != nil {
		t.Fatalf("PlaceMember err=%v", err)
	}
	if !near(before, after) {
		t.Fatalf("member %d moved: %+v -> %+v", b, before, after)
	}
}

func TestService_PlaceLocality_UnknownIsSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_ = f.addMember(t, "a", "Atlantis", true)

	sum, err := f.service(f.members).PlaceLocality(context.Background(), "Atlantis")
	if err != nil {
		t.Fatalf("PlaceLocality err=%v", err)
	}
	if sum.Total != 1 || sum.Skipped != 1 || sum.Updated != 0 || len(sum.Errors) != 0 {
		t.Fatalf("summary=%+v, want one skipped", sum)
	}

	_, err = f.service(f.members).PlaceLocality(context.Background(), "   ")
	var ae *Error
	if !errors.As(err, &ae) || ae.Status != 422 {
		t.Fatalf("err=%v, want 422", err)
	}
}

func TestService_Riders_FiltersUnmappablePositions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	placed := f.addMember(t, "placed", "Manresa", true)
	_ = f.addMember(t, "unplaced", "Manresa", true)
	zero := f.addMember(t, "zero", "Manresa", true)
	outOfRange := f.addMember(t, "far", "Manresa", true)
	hidden := f.addMember(t, "pending", "Manresa", false)

	set := func(id domain.MemberID, lat, lng float64) {
		if err := f.members.SetCoordinates(ctx, id, domain.Coordinates{Latitude: lat, Longitude: lng}); err != nil {
			t.Fatalf("SetCoordinates(%d) err=%v", id, err)
		}
	}
	set(placed, 41.7286, 1.8262)
	set(zero, 0, 1.8)
	set(outOfRange, 95, 1.8)
	set(hidden, 41.7, 1.8)

	fc, err := f.service(f.members).Riders(ctx)
	if err != nil {
		t.Fatalf("Riders err=%v", err)
	}
	want := FeatureCollection{
		Type: "FeatureCollection",
		Features: []Feature{{
			Type:     "Feature",
			Geometry: Point{Type: "Point", Coordinates: [2]float64{1.8262, 41.7286}},
			Properties: RiderProperties{
				ID:       int64(placed),
				Name:     "Rider placed",
				Locality: "Manresa",
				Comarca:  "Bages",
				Level:    "Novice",
			},
		}},
	}
	if diff := cmp.Diff(want, fc); diff != "" {
		t.Fatalf("riders mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Verify_FlagsOffGridPositions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for _, sub := range []string{"a", "b", "c"} {
		_ = f.addMember(t, sub, "Manresa", true)
	}
	lost := f.addMember(t, "lost", "Atlantis", true)
	_ = f.addMember(t, "fresh", "Vic", true)
	svc := f.service(f.members)

	if _, err := svc.PlaceLocality(ctx, "Manresa"); err != nil {
		t.Fatalf("PlaceLocality err=%v", err)
	}
	if err := f.members.SetCoordinates(ctx, lost, domain.Coordinates{Latitude: 40, Longitude: 1}); err != nil {
		t.Fatalf("SetCoordinates err=%v", err)
	}

	rep, err := svc.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify err=%v", err)
	}
	if rep.Total != 5 || rep.Placed != 4 || rep.Unplaced != 1 || rep.UnknownLocality != 1 || len(rep.OffGrid) != 0 {
		t.Fatalf("report=%+v", rep)
	}

	// Move one Manresa rider well outside its grid.
	if err := f.members.SetCoordinates(ctx, 1, domain.Coordinates{Latitude: manresa.Y + 0.01, Longitude: manresa.X}); err != nil {
		t.Fatalf("SetCoordinates err=%v", err)
	}
	rep, err = svc.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify err=%v", err)
	}
	if len(rep.OffGrid) != 1 || rep.OffGrid[0] != 1 {
		t.Fatalf("OffGrid=%v, want [1]", rep.OffGrid)
	}
}

func TestService_LocalityPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := f.service(f.members)

	got, err := svc.LocalityPosition(context.Background(), "  Vic ")
	if err != nil {
		t.Fatalf("LocalityPosition err=%v", err)
	}
	if got != vic {
		t.Fatalf("LocalityPosition=%+v, want %+v", got, vic)
	}

	_, err = svc.LocalityPosition(context.Background(), "Atlantis")
	var ae *Error
	if !errors.As(err, &ae) || ae.Code != "LOCALITY_NOT_FOUND" {
		t.Fatalf("err=%v, want LOCALITY_NOT_FOUND", err)
	}
}
