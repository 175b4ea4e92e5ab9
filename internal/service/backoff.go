package service

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential poll intervals. With Jitter set, each interval
// is drawn from the upper half of the exponential value.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool

	rand func() float64
}

func NewBackoff(min, max time.Duration, factor float64) *Backoff {
	return &Backoff{
		Min:    min,
		Max:    max,
		Factor: factor,
		Jitter: true,
		rand:   rand.Float64,
	}
}

// Duration returns the interval for the given step; step 0 is Min.
func (b *Backoff) Duration(step int) time.Duration {
	if step <= 0 {
		return b.Min
	}

	duration := float64(b.Min) * math.Pow(b.Factor, float64(step))
	if duration > float64(b.Max) || math.IsInf(duration, 0) {
		duration = float64(b.Max)
	}

	if b.Jitter {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		duration = duration * (0.5 + r()*0.5)
	}

	return time.Duration(duration)
}
