// Package backoff computes reconnect delays: capped exponential growth with
// symmetric jitter so a fleet of clients does not retry in lockstep.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the base delay, applied as ±
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		Initial:     time.Second,
		Max:         30 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
		MaxAttempts: 10,
	}
}

// Base is the un-jittered delay for attempt n (1-based).
func (p Policy) Base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.Max
	}
	return time.Duration(d)
}

// Delay perturbs Base(attempt) by jitter. u is a uniform sample in [0, 1);
// u = 0.5 yields the base delay exactly.
func (p Policy) Delay(attempt int, u float64) time.Duration {
	base := float64(p.Base(attempt))
	d := base + (2*u-1)*p.Jitter*base
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (p Policy) Next(attempt int) time.Duration {
	return p.Delay(attempt, rand.Float64())
}

func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
