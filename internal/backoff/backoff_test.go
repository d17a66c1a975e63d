package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_GrowsAndCaps(t *testing.T) {
	p := DefaultPolicy()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Base(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, p.Initial, p.Base(0), "attempt below 1 clamps to the first delay")
	assert.Equal(t, p.Max, p.Base(5000), "huge attempts must not overflow")
}

func TestDelay_WithinJitterBounds(t *testing.T) {
	p := DefaultPolicy()

	for attempt := 1; attempt <= 12; attempt++ {
		base := float64(p.Base(attempt))
		// one nanosecond of slack for float truncation
		lo := time.Duration(base*(1-p.Jitter)) - time.Nanosecond
		hi := time.Duration(base*(1+p.Jitter)) + time.Nanosecond

		assert.InDelta(t, base*(1-p.Jitter), float64(p.Delay(attempt, 0)), 2)
		assert.Equal(t, time.Duration(base), p.Delay(attempt, 0.5))

		for i := 0; i < 200; i++ {
			d := p.Next(attempt)
			require.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
			require.LessOrEqual(t, d, hi, "attempt %d", attempt)
			require.LessOrEqual(t, d, time.Duration(float64(p.Max)*(1+p.Jitter))+time.Nanosecond)
		}
	}
}

func TestExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.False(t, Policy{}.Exhausted(100), "zero MaxAttempts means unbounded")
}
