package memberrepo

import (
	"context"
	"testing"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

func score(initial float64) domain.MemberScore {
	return domain.MemberScore{
		InitialScore: initial,
		CurrentScore: initial,
		Tier:         domain.Tier{Code: domain.TierBeginner, Label: "Beginner"},
		ComputedAt:   time.Unix(100, 0).UTC(),
	}
}

func TestRepo_CreateWithScoreAssignsAscendingIDs(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	now := time.Unix(100, 0).UTC()

	a, err := r.CreateWithScore(context.Background(), memberrepo.Member{
		Subject:     "sub-1",
		DisplayName: "Anna Puig",
		Email:       "anna@example.com",
		Locality:    "Manresa",
		CreatedAt:   now,
		UpdatedAt:   now,
	}, score(18))
	if err != nil {
		t.Fatalf("CreateWithScore(a) err=%v", err)
	}
	b, err := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "sub-2", DisplayName: "Bernat", Email: "b@example.com"}, score(30))
	if err != nil {
		t.Fatalf("CreateWithScore(b) err=%v", err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids=(%d,%d), want (1,2)", a.ID, b.ID)
	}

	sc, err := r.Scores().Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Scores().Get() err=%v", err)
	}
	if sc.MemberID != b.ID || sc.InitialScore != 30 {
		t.Fatalf("score=%+v, want member %d initial 30", sc, b.ID)
	}

	got, err := r.GetBySubject(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetBySubject() err=%v", err)
	}
	if got.ID != a.ID || got.Locality != "Manresa" {
		t.Fatalf("GetBySubject()=%+v, want %+v", got, a)
	}
}

func TestRepo_CreateRejectsDuplicateSubjectWithoutScore(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	if _, err := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "sub-1", Email: "a@example.com"}, score(1)); err != nil {
		t.Fatalf("CreateWithScore(first) err=%v", err)
	}
	if _, err := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "sub-1", Email: "other@example.com"}, score(2)); err != memberrepo.ErrSubjectAlreadyBound {
		t.Fatalf("CreateWithScore(dup) err=%v, want %v", err, memberrepo.ErrSubjectAlreadyBound)
	}
	scores, _ := r.Scores().List(context.Background())
	if len(scores) != 1 {
		t.Fatalf("scores=%d, want 1 (rejected member must not leave a score)", len(scores))
	}
}

func TestRepo_CreateRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	_, _ = r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "s1", Email: "Rider@Example.com"}, score(1))
	if _, err := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "s2", Email: "rider@example.com"}, score(1)); err != memberrepo.ErrEmailInUse {
		t.Fatalf("err=%v, want %v", err, memberrepo.ErrEmailInUse)
	}
}

func TestRepo_UpdateRequiresExistingAndImmutableSubject(t *testing.T) {
	t.Parallel()

	r := NewRepo()

	if err := r.Update(context.Background(), memberrepo.Member{ID: 1, Subject: "sub-1"}); err != memberrepo.ErrNotFound {
		t.Fatalf("Update(nonexistent) err=%v, want %v", err, memberrepo.ErrNotFound)
	}

	m, err := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "sub-1", DisplayName: "Anna"}, score(1))
	if err != nil {
		t.Fatalf("CreateWithScore() err=%v", err)
	}

	changed := m
	changed.Subject = "sub-2"
	if err := r.Update(context.Background(), changed); err != memberrepo.ErrSubjectAlreadyBound {
		t.Fatalf("Update(changed subject) err=%v, want %v", err, memberrepo.ErrSubjectAlreadyBound)
	}

	m.DisplayName = "Anna Z"
	m.Approved = true
	if err := r.Update(context.Background(), m); err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	got, _ := r.GetByID(context.Background(), m.ID)
	if got.DisplayName != "Anna Z" || !got.Approved {
		t.Fatalf("GetByID() after update=%+v", got)
	}
}

func TestRepo_DeleteRemovesScore(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	m, _ := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "sub-1"}, score(5))

	if err := r.Delete(context.Background(), m.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if _, err := r.GetByID(context.Background(), m.ID); err != memberrepo.ErrNotFound {
		t.Fatalf("GetByID() err=%v, want %v", err, memberrepo.ErrNotFound)
	}
	if _, err := r.Scores().Get(context.Background(), m.ID); err != scorerepo.ErrNotFound {
		t.Fatalf("Scores().Get() err=%v, want %v", err, scorerepo.ErrNotFound)
	}
	if err := r.Delete(context.Background(), m.ID); err != memberrepo.ErrNotFound {
		t.Fatalf("Delete(again) err=%v, want %v", err, memberrepo.ErrNotFound)
	}
	// Subject is free again.
	if _, err := r.CreateWithScore(context.Background(), memberrepo.Member{Subject: "sub-1"}, score(5)); err != nil {
		t.Fatalf("CreateWithScore(after delete) err=%v", err)
	}
}

func TestRepo_ListIDsByLocalityOrdersAscendingAndFiltersApproval(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	mk := func(sub string, loc domain.LocalityName, approved bool) domain.MemberID {
		m, err := r.CreateWithScore(ctx, memberrepo.Member{Subject: domain.SubjectID(sub), Locality: loc, Approved: approved}, score(1))
		if err != nil {
			t.Fatalf("CreateWithScore(%s) err=%v", sub, err)
		}
		return m.ID
	}
	a := mk("a", "Girona", true)
	_ = mk("b", "Manresa", true)
	c := mk("c", "Girona", false)
	d := mk("d", "Girona", true)

	got, err := r.ListIDsByLocality(ctx, "Girona", true)
	if err != nil {
		t.Fatalf("ListIDsByLocality() err=%v", err)
	}
	if len(got) != 2 || got[0] != a || got[1] != d {
		t.Fatalf("approved Girona=%v, want [%d %d]", got, a, d)
	}

	all, _ := r.ListIDsByLocality(ctx, "Girona", false)
	if len(all) != 3 || all[1] != c {
		t.Fatalf("all Girona=%v, want [%d %d %d]", all, a, c, d)
	}

	listed, _ := r.List(ctx, memberrepo.ListFilter{ApprovedOnly: true, Locality: "Girona"})
	if len(listed) != 2 || listed[0].ID != a {
		t.Fatalf("List(approved Girona)=%v", listed)
	}
}

func TestRepo_SetCoordinatesAndUpdateCurrentScore(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	m, _ := r.CreateWithScore(ctx, memberrepo.Member{Subject: "sub-1"}, score(10))

	if err := r.SetCoordinates(ctx, m.ID, domain.Coordinates{Latitude: 41.7, Longitude: 1.8}); err != nil {
		t.Fatalf("SetCoordinates() err=%v", err)
	}
	got, _ := r.GetByID(ctx, m.ID)
	if got.Latitude == nil || *got.Latitude != 41.7 || got.Longitude == nil || *got.Longitude != 1.8 {
		t.Fatalf("coordinates=(%v,%v)", got.Latitude, got.Longitude)
	}
	if err := r.SetCoordinates(ctx, 999, domain.Coordinates{}); err != memberrepo.ErrNotFound {
		t.Fatalf("SetCoordinates(missing) err=%v, want %v", err, memberrepo.ErrNotFound)
	}

	at := time.Unix(500, 0).UTC()
	if err := r.Scores().UpdateCurrent(ctx, m.ID, 17, at); err != nil {
		t.Fatalf("UpdateCurrent() err=%v", err)
	}
	sc, _ := r.Scores().Get(ctx, m.ID)
	if sc.CurrentScore != 17 || sc.InitialScore != 10 || !sc.ComputedAt.Equal(at) {
		t.Fatalf("score=%+v", sc)
	}
}
