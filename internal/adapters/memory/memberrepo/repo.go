package memberrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

// Repo is an in-memory implementation of memberrepo.Repository.
// Score records live under the same lock so member creation and deletion stay atomic;
// Scores exposes them as a scorerepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	nextID  domain.MemberID
	byID    map[domain.MemberID]memberrepo.Member
	idBySub map[domain.SubjectID]domain.MemberID
	scores  map[domain.MemberID]domain.MemberScore
}

func NewRepo() *Repo {
	return &Repo{
		nextID:  1,
		byID:    make(map[domain.MemberID]memberrepo.Member),
		idBySub: make(map[domain.SubjectID]domain.MemberID),
		scores:  make(map[domain.MemberID]domain.MemberScore),
	}
}

func (r *Repo) CreateWithScore(ctx context.Context, m memberrepo.Member, score domain.MemberScore) (memberrepo.Member, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.idBySub[m.Subject]; ok {
		return memberrepo.Member{}, memberrepo.ErrSubjectAlreadyBound
	}
	if r.emailTakenLocked(m.Email, 0) {
		return memberrepo.Member{}, memberrepo.ErrEmailInUse
	}

	m.ID = r.nextID
	r.nextID++
	score.MemberID = m.ID

	r.byID[m.ID] = cloneMember(m)
	r.idBySub[m.Subject] = m.ID
	r.scores[m.ID] = score
	return cloneMember(m), nil
}

func (r *Repo) Update(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[m.ID]
	if !ok {
		return memberrepo.ErrNotFound
	}
	// Subject binding is immutable.
	if existing.Subject != m.Subject {
		return memberrepo.ErrSubjectAlreadyBound
	}
	if r.emailTakenLocked(m.Email, m.ID) {
		return memberrepo.ErrEmailInUse
	}

	m.Latitude, m.Longitude = existing.Latitude, existing.Longitude
	if existing.Locality != m.Locality {
		m.Latitude, m.Longitude = nil, nil
	}
	r.byID[m.ID] = cloneMember(m)
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.MemberID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return memberrepo.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.idBySub, m.Subject)
	delete(r.scores, id)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idBySub[subject]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *Repo) List(ctx context.Context, filter memberrepo.ListFilter) ([]memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]memberrepo.Member, 0, len(r.byID))
	for _, m := range r.byID {
		if filter.ApprovedOnly && !m.Approved {
			continue
		}
		if filter.Locality != "" && m.Locality != filter.Locality {
			continue
		}
		out = append(out, cloneMember(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repo) ListIDsByLocality(ctx context.Context, locality domain.LocalityName, approvedOnly bool) ([]domain.MemberID, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.MemberID, 0)
	for id, m := range r.byID {
		if m.Locality != locality {
			continue
		}
		if approvedOnly && !m.Approved {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *Repo) SetCoordinates(ctx context.Context, id domain.MemberID, c domain.Coordinates) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return memberrepo.ErrNotFound
	}
	lat, lng := c.Latitude, c.Longitude
	m.Latitude = &lat
	m.Longitude = &lng
	r.byID[id] = m
	return nil
}

// Scores returns a scorerepo.Repository view over this repo's score records.
func (r *Repo) Scores() *ScoreRepo {
	return &ScoreRepo{r: r}
}

// ScoreRepo implements scorerepo.Repository on top of Repo.
type ScoreRepo struct {
	r *Repo
}

func (s *ScoreRepo) Get(ctx context.Context, id domain.MemberID) (domain.MemberScore, error) {
	_ = ctx
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	sc, ok := s.r.scores[id]
	if !ok {
		return domain.MemberScore{}, scorerepo.ErrNotFound
	}
	return sc, nil
}

func (s *ScoreRepo) List(ctx context.Context) ([]domain.MemberScore, error) {
	_ = ctx
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	out := make([]domain.MemberScore, 0, len(s.r.scores))
	for _, sc := range s.r.scores {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s *ScoreRepo) UpdateCurrent(ctx context.Context, id domain.MemberID, current float64, computedAt time.Time) error {
	_ = ctx
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	sc, ok := s.r.scores[id]
	if !ok {
		return scorerepo.ErrNotFound
	}
	sc.CurrentScore = current
	sc.ComputedAt = computedAt.UTC()
	s.r.scores[id] = sc
	return nil
}

func (r *Repo) emailTakenLocked(email string, exclude domain.MemberID) bool {
	if email == "" {
		return false
	}
	for id, m := range r.byID {
		if id == exclude {
			continue
		}
		if strings.EqualFold(m.Email, email) {
			return true
		}
	}
	return false
}

func cloneMember(m memberrepo.Member) memberrepo.Member {
	out := m
	out.Latitude = cloneFloatPtr(m.Latitude)
	out.Longitude = cloneFloatPtr(m.Longitude)
	return out
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
