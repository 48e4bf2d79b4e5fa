// Package cooldown gates lifecycle actions behind a fixed wait since the
// previous transition. Remaining time is recomputed on demand from the
// persisted transition timestamp, so correctness survives process restarts
// and there is no drifting countdown to maintain.
package cooldown

import "time"

// Gate computes the remaining wait for one gated action.
type Gate struct {
	duration time.Duration
	now      func() time.Time
}

// NewGate returns a gate with the given duration, using wall-clock time.
func NewGate(d time.Duration) Gate {
	return Gate{duration: d, now: time.Now}
}

// NewGateWithClock lets tests substitute the clock.
func NewGateWithClock(d time.Duration, now func() time.Time) Gate {
	return Gate{duration: d, now: now}
}

// Duration returns the configured cooldown length.
func (g Gate) Duration() time.Duration { return g.duration }

// Remaining reports the wait left before the gated action is permitted,
// floored at zero. A zero startedAt means the originating transition never
// happened, so nothing is gated yet.
func (g Gate) Remaining(startedAt time.Time) time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	left := g.duration - g.now().Sub(startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Open reports whether the cooldown has fully elapsed.
func (g Gate) Open(startedAt time.Time) bool {
	return g.Remaining(startedAt) == 0
}
