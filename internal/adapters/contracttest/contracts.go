package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	activityport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/activity"
	localityrepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
	memberrepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	runlockport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
	scorerepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

type CleanupFunc = func()

// MemberRepoFactory returns a member repository and the score repository that shares its storage.
type MemberRepoFactory func(t *testing.T) (memberrepoport.Repository, scorerepoport.Repository, CleanupFunc)
type LocalityRepoFactory func(t *testing.T) (localityrepoport.Repository, CleanupFunc)
type RunLockStoreFactory func(t *testing.T) (runlockport.Store, CleanupFunc)

// ActivityStoreFactory returns an activity store plus two member IDs that already exist in its backing store.
type ActivityStoreFactory func(t *testing.T) (activityport.Store, [2]domain.MemberID, CleanupFunc)

func newScore(initial float64, code domain.TierCode, label string, at time.Time) domain.MemberScore {
	return domain.MemberScore{
		InitialScore: initial,
		CurrentScore: initial,
		Tier:         domain.Tier{Code: code, Label: label},
		ComputedAt:   at,
	}
}

func RunMemberRepo(t *testing.T, newRepo MemberRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, scores, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	sub := domain.SubjectID("sub-a")
	a, err := repo.CreateWithScore(ctx, memberrepoport.Member{
		Subject:     sub,
		DisplayName: "Anna Puig",
		Email:       "anna@example.com",
		Locality:    "Vic",
		Comarca:     "Osona",
		Province:    "Barcelona",
		Approved:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, newScore(18, domain.TierBeginner, "Beginner", now))
	if err != nil {
		t.Fatalf("CreateWithScore a: %v", err)
	}
	if a.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", a.ID)
	}
	if _, err := repo.GetByID(ctx, a.ID); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got, err := repo.GetBySubject(ctx, sub)
	if err != nil {
		t.Fatalf("GetBySubject: %v", err)
	}
	if got.ID != a.ID || got.Locality != "Vic" || !got.Approved || got.Latitude != nil {
		t.Fatalf("unexpected member: %#v", got)
	}
	sc, err := scores.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("scores.Get: %v", err)
	}
	if sc.MemberID != a.ID || sc.InitialScore != 18 || sc.CurrentScore != 18 || sc.Tier.Code != domain.TierBeginner || sc.Tier.Label != "Beginner" {
		t.Fatalf("unexpected score: %#v", sc)
	}

	// Subject uniqueness leaves no orphan score behind.
	if _, err := repo.CreateWithScore(ctx, memberrepoport.Member{
		Subject:     sub,
		DisplayName: "Anna 2",
		Email:       "anna2@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}, newScore(1, domain.TierBeginner, "Beginner", now)); !errors.Is(err, memberrepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("expected ErrSubjectAlreadyBound, got %v", err)
	}
	if all, err := scores.List(ctx); err != nil || len(all) != 1 {
		t.Fatalf("expected one score after rejected create, got %d err=%v", len(all), err)
	}

	// Email uniqueness is case-insensitive.
	if _, err := repo.CreateWithScore(ctx, memberrepoport.Member{
		Subject:     "sub-x",
		DisplayName: "Other",
		Email:       "ANNA@example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}, newScore(1, domain.TierBeginner, "Beginner", now)); !errors.Is(err, memberrepoport.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}

	b, err := repo.CreateWithScore(ctx, memberrepoport.Member{
		Subject:     "sub-b",
		DisplayName: "Bernat",
		Email:       "bernat@example.com",
		Locality:    "Vic",
		Approved:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, newScore(60, domain.TierAdvanced, "Advanced", now))
	if err != nil {
		t.Fatalf("CreateWithScore b: %v", err)
	}
	c, err := repo.CreateWithScore(ctx, memberrepoport.Member{
		Subject:     "sub-c",
		DisplayName: "Carla",
		Email:       "carla@example.com",
		Locality:    "Vic",
		Approved:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, newScore(95, domain.TierExpert, "Expert", now))
	if err != nil {
		t.Fatalf("CreateWithScore c: %v", err)
	}
	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Fatalf("expected ascending ids, got %d %d %d", a.ID, b.ID, c.ID)
	}

	// Ordering by id, approval filtering.
	ids, err := repo.ListIDsByLocality(ctx, "Vic", true)
	if err != nil {
		t.Fatalf("ListIDsByLocality: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != c.ID {
		t.Fatalf("unexpected approved ids: %v", ids)
	}
	ids, err = repo.ListIDsByLocality(ctx, "Vic", false)
	if err != nil || len(ids) != 3 {
		t.Fatalf("unexpected all ids: %v err=%v", ids, err)
	}
	list, err := repo.List(ctx, memberrepoport.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != a.ID || list[2].ID != c.ID {
		t.Fatalf("unexpected list ordering: %#v", list)
	}
	list, err = repo.List(ctx, memberrepoport.ListFilter{ApprovedOnly: true})
	if err != nil || len(list) != 2 {
		t.Fatalf("unexpected approved list: %d err=%v", len(list), err)
	}

	// Update.
	b.Approved = true
	b.DisplayName = "Bernat Soler"
	b.UpdatedAt = now.Add(time.Minute)
	if err := repo.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	gotB, err := repo.GetByID(ctx, b.ID)
	if err != nil || !gotB.Approved || gotB.DisplayName != "Bernat Soler" {
		t.Fatalf("unexpected updated member: %#v err=%v", gotB, err)
	}
	if err := repo.Update(ctx, memberrepoport.Member{ID: c.ID + 1000, Subject: "nobody"}); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing update, got %v", err)
	}

	// Coordinates.
	if err := repo.SetCoordinates(ctx, c.ID, domain.Coordinates{Latitude: 41.93, Longitude: 2.25}); err != nil {
		t.Fatalf("SetCoordinates: %v", err)
	}
	gotC, err := repo.GetByID(ctx, c.ID)
	if err != nil || gotC.Latitude == nil || gotC.Longitude == nil || *gotC.Latitude != 41.93 || *gotC.Longitude != 2.25 {
		t.Fatalf("unexpected coordinates: %#v err=%v", gotC, err)
	}
	if err := repo.SetCoordinates(ctx, c.ID+1000, domain.Coordinates{}); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing coordinates, got %v", err)
	}

	// Update leaves stored coordinates alone, even from a copy read before placement.
	stale := c
	stale.DisplayName = "Carla Vidal"
	stale.UpdatedAt = now.Add(2 * time.Minute)
	if err := repo.Update(ctx, stale); err != nil {
		t.Fatalf("Update stale: %v", err)
	}
	gotC, err = repo.GetByID(ctx, c.ID)
	if err != nil || gotC.DisplayName != "Carla Vidal" || gotC.Latitude == nil || gotC.Longitude == nil || *gotC.Latitude != 41.93 || *gotC.Longitude != 2.25 {
		t.Fatalf("coordinates lost on update: %#v err=%v", gotC, err)
	}
	// A locality change clears them.
	stale.Locality = "Manresa"
	if err := repo.Update(ctx, stale); err != nil {
		t.Fatalf("Update locality: %v", err)
	}
	gotC, err = repo.GetByID(ctx, c.ID)
	if err != nil || gotC.Locality != "Manresa" || gotC.Latitude != nil || gotC.Longitude != nil {
		t.Fatalf("coordinates kept across locality change: %#v err=%v", gotC, err)
	}

	// Current score update keeps initial score and tier.
	later := now.Add(time.Hour)
	if err := scores.UpdateCurrent(ctx, c.ID, 99.4, later); err != nil {
		t.Fatalf("UpdateCurrent: %v", err)
	}
	sc, err = scores.Get(ctx, c.ID)
	if err != nil || sc.CurrentScore != 99.4 || sc.InitialScore != 95 || sc.Tier.Code != domain.TierExpert || !sc.ComputedAt.Equal(later) {
		t.Fatalf("unexpected score after update: %#v err=%v", sc, err)
	}
	if err := scores.UpdateCurrent(ctx, c.ID+1000, 1, later); !errors.Is(err, scorerepoport.ErrNotFound) {
		t.Fatalf("expected scorerepo.ErrNotFound, got %v", err)
	}

	// Delete cascades to the score.
	if err := repo.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, b.ID); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := scores.Get(ctx, b.ID); !errors.Is(err, scorerepoport.ErrNotFound) {
		t.Fatalf("expected score removed with member, got %v", err)
	}
	if err := repo.Delete(ctx, b.ID); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	all, err := scores.List(ctx)
	if err != nil || len(all) != 2 || all[0].MemberID != a.ID || all[1].MemberID != c.ID {
		t.Fatalf("unexpected scores: %#v err=%v", all, err)
	}
}

func RunLocalityRepo(t *testing.T, newRepo LocalityRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	if _, err := repo.Lookup(ctx, "Vic"); !errors.Is(err, localityrepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	vic := domain.Locality{Name: "Vic", Comarca: "Osona", Province: "Barcelona", X: 2.2546, Y: 41.9301}
	abrera := domain.Locality{Name: "Abrera", Comarca: "Baix Llobregat", Province: "Barcelona", X: 1.9014, Y: 41.5168}
	for _, l := range []domain.Locality{vic, abrera} {
		if err := repo.Upsert(ctx, l); err != nil {
			t.Fatalf("Upsert %s: %v", l.Name, err)
		}
	}
	got, err := repo.Lookup(ctx, "Vic")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != vic {
		t.Fatalf("Lookup=%#v, want %#v", got, vic)
	}

	// Upsert replaces.
	vic.X = 2.26
	if err := repo.Upsert(ctx, vic); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	got, _ = repo.Lookup(ctx, "Vic")
	if got.X != 2.26 {
		t.Fatalf("expected replaced x, got %v", got.X)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Abrera" || list[1].Name != "Vic" {
		t.Fatalf("unexpected ordering: %#v", list)
	}
}

func RunRunLockStore(t *testing.T, newStore RunLockStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	name := "placement:" + uuid.NewString()
	ownerA := uuid.NewString()
	ownerB := uuid.NewString()
	now := time.Unix(5000, 0).UTC()

	lease, ok, err := store.Acquire(ctx, name, ownerA, now, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire A: ok=%v err=%v", ok, err)
	}
	if lease.Owner != ownerA || !lease.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected lease: %#v", lease)
	}

	// Held by A.
	cur, ok, err := store.Acquire(ctx, name, ownerB, now.Add(30*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Acquire B: %v", err)
	}
	if ok {
		t.Fatalf("expected B to be refused while A holds the lease")
	}
	if cur.Owner != ownerA {
		t.Fatalf("expected current holder A, got %q", cur.Owner)
	}

	// Wrong owner cannot release.
	if err := store.Release(ctx, name, ownerB); !errors.Is(err, runlockport.ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}

	// Expired lease can be taken over.
	_, ok, err = store.Acquire(ctx, name, ownerB, now.Add(2*time.Minute), time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire B after expiry: ok=%v err=%v", ok, err)
	}
	if err := store.Release(ctx, name, ownerA); !errors.Is(err, runlockport.ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld for previous owner, got %v", err)
	}
	if err := store.Release(ctx, name, ownerB); err != nil {
		t.Fatalf("Release B: %v", err)
	}

	// Free again.
	if _, ok, err := store.Acquire(ctx, name, ownerA, now.Add(3*time.Minute), time.Minute); err != nil || !ok {
		t.Fatalf("Acquire after release: ok=%v err=%v", ok, err)
	}

	// Independent names do not interfere.
	if _, ok, err := store.Acquire(ctx, name+":other", ownerB, now.Add(3*time.Minute), time.Minute); err != nil || !ok {
		t.Fatalf("Acquire other name: ok=%v err=%v", ok, err)
	}
}

func RunActivityStore(t *testing.T, newStore ActivityStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, members, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	m1, m2 := members[0], members[1]
	at := time.Unix(3000, 0).UTC()

	for _, ride := range []activityport.RideID{"ride-1", "ride-2", "ride-1"} {
		if err := store.RecordRideEnrollment(ctx, ride, m1, at); err != nil {
			t.Fatalf("RecordRideEnrollment %s: %v", ride, err)
		}
	}
	if err := store.RecordRideEnrollment(ctx, "ride-1", m2, at); err != nil {
		t.Fatalf("RecordRideEnrollment m2: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := store.RecordRideComment(ctx, "ride-1", m1, at.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordRideComment: %v", err)
		}
	}

	if n, err := store.CountRideEnrollments(ctx, m1); err != nil || n != 2 {
		t.Fatalf("CountRideEnrollments m1: n=%d err=%v", n, err)
	}
	if n, err := store.CountRideEnrollments(ctx, m2); err != nil || n != 1 {
		t.Fatalf("CountRideEnrollments m2: n=%d err=%v", n, err)
	}
	if n, err := store.CountRideComments(ctx, m1); err != nil || n != 5 {
		t.Fatalf("CountRideComments m1: n=%d err=%v", n, err)
	}
	if n, err := store.CountRideComments(ctx, m2); err != nil || n != 0 {
		t.Fatalf("CountRideComments m2: n=%d err=%v", n, err)
	}
}
