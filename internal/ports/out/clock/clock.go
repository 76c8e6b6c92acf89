package clock

import "time"

// Clock provides time to services and batch runs.
// Score timestamps and run-lock expiry read it, so tests can pin both with a manual clock.
type Clock interface {
	Now() time.Time
}
