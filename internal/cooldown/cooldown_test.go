package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateRemaining(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Full duration right after start", func(t *testing.T) {
		g := NewGateWithClock(60*time.Second, func() time.Time { return started })
		assert.Equal(t, 60*time.Second, g.Remaining(started))
		assert.False(t, g.Open(started))
	})

	t.Run("Monotonically non-increasing", func(t *testing.T) {
		now := started
		g := NewGateWithClock(60*time.Second, func() time.Time { return now })

		prev := g.Remaining(started)
		for i := 0; i < 90; i++ {
			now = now.Add(time.Second)
			cur := g.Remaining(started)
			assert.LessOrEqual(t, cur, prev)
			prev = cur
		}
		assert.Equal(t, time.Duration(0), prev)
	})

	t.Run("Closed until the configured duration has fully elapsed", func(t *testing.T) {
		now := started.Add(59*time.Second + 999*time.Millisecond)
		g := NewGateWithClock(60*time.Second, func() time.Time { return now })
		assert.False(t, g.Open(started))

		now = started.Add(60 * time.Second)
		assert.True(t, g.Open(started))
		assert.Equal(t, time.Duration(0), g.Remaining(started))
	})

	t.Run("Floored at zero long after expiry", func(t *testing.T) {
		g := NewGateWithClock(time.Minute, func() time.Time { return started.Add(time.Hour) })
		assert.Equal(t, time.Duration(0), g.Remaining(started))
	})

	t.Run("Zero start time means nothing is gated", func(t *testing.T) {
		g := NewGateWithClock(time.Minute, func() time.Time { return started })
		assert.Equal(t, time.Duration(0), g.Remaining(time.Time{}))
		assert.True(t, g.Open(time.Time{}))
	})

	t.Run("Restart resets the wait", func(t *testing.T) {
		now := started.Add(2 * time.Minute)
		g := NewGateWithClock(time.Minute, func() time.Time { return now })
		assert.True(t, g.Open(started))

		// gated transition completes again at 'now'
		restarted := now
		assert.Equal(t, time.Minute, g.Remaining(restarted))
	})
}
