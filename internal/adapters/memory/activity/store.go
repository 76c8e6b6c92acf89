package activity

import (
	"context"
	"sync"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/activity"
)

type enrollmentKey struct {
	ride   activity.RideID
	member domain.MemberID
}

// Store is an in-memory implementation of activity.Store.
// It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	enrollments map[enrollmentKey]time.Time
	comments    map[domain.MemberID]int
}

func NewStore() *Store {
	return &Store{
		enrollments: make(map[enrollmentKey]time.Time),
		comments:    make(map[domain.MemberID]int),
	}
}

func (s *Store) RecordRideEnrollment(ctx context.Context, ride activity.RideID, member domain.MemberID, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	k := enrollmentKey{ride: ride, member: member}
	if _, ok := s.enrollments[k]; ok {
		return nil
	}
	s.enrollments[k] = at.UTC()
	return nil
}

func (s *Store) RecordRideComment(ctx context.Context, ride activity.RideID, member domain.MemberID, at time.Time) error {
	_, _, _ = ctx, ride, at
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[member]++
	return nil
}

func (s *Store) CountRideEnrollments(ctx context.Context, id domain.MemberID) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.enrollments {
		if k.member == id {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountRideComments(ctx context.Context, id domain.MemberID) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.comments[id], nil
}
