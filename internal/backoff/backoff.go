// Package backoff computes retry delays for work items and broker reconnects.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(e.Initial, e.Max, attempt)
}

// Jittered picks a random delay in [base/2, base] where base is the exponential delay,
// so redeliveries of a burst of failed items do not land on the queue together.
type Jittered struct {
	Initial time.Duration
	Max     time.Duration
}

func NewJittered(initial, maxDelay time.Duration) *Jittered {
	return &Jittered{Initial: initial, Max: maxDelay}
}

func (j *Jittered) Delay(attempt int) time.Duration {
	base := capped(j.Initial, j.Max, attempt)
	half := base / 2
	return half + time.Duration(rand.Float64()*float64(base-half)) //nolint:gosec // jitter does not need crypto rand
}

func capped(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}
