// Package clock computes pick deadlines. Deadlines are anchored to the moment
// the previous pick committed (or the draft started), never to when a sweep
// happened to observe the draft.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source used across the engine.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock = clockwork.Clock

// DeadlineFor returns pickStart+duration, or the zero time when duration is 0.
func DeadlineFor(pickStart time.Time, duration time.Duration) time.Time {
	if duration <= 0 {
		return time.Time{}
	}
	return pickStart.Add(duration)
}

// IsExpired reports whether now is strictly past deadline. A zero deadline
// never expires.
func IsExpired(deadline, now time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	return now.After(deadline)
}

// Remaining is the time left before deadline, floored at zero.
// A zero deadline reports zero.
func Remaining(deadline, now time.Time) time.Duration {
	if deadline.IsZero() {
		return 0
	}
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ResumeDeadline gives back the unused part of a paused clock. An untimed
// draft stays untimed.
func ResumeDeadline(now time.Time, remaining time.Duration, untimed bool) time.Time {
	if untimed {
		return time.Time{}
	}
	return now.Add(remaining)
}
