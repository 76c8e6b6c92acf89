package activity

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
)

// RideID identifies a club ride. Rides are owned by another system; only the reference is kept here.
type RideID string

// Counter reports lifetime activity used to recompute a member's current score.
// Counts are read fresh on every call.
type Counter interface {
	CountRideEnrollments(ctx context.Context, id domain.MemberID) (int, error)
	CountRideComments(ctx context.Context, id domain.MemberID) (int, error)
}

// Recorder writes activity rows.
//
// Enrollments are keyed by (ride, member): recording the same pair twice counts once.
// Every comment counts.
type Recorder interface {
	RecordRideEnrollment(ctx context.Context, ride RideID, member domain.MemberID, at time.Time) error
	RecordRideComment(ctx context.Context, ride RideID, member domain.MemberID, at time.Time) error
}

// Store is both sides of the activity port.
type Store interface {
	Counter
	Recorder
}
