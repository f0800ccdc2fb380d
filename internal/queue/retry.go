package queue

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides how long a transiently failed task waits before
// re-entering the pending pool. Delays grow exponentially with the attempt
// count and are capped to avoid unbounded waits; jitter desynchronizes
// concurrent retries against the rate-limited provider.
type RetryPolicy struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth
	MaxDelay time.Duration

	// Jitter is the maximum randomized fraction added to each delay,
	// in [0, 1). Zero disables jitter (useful for deterministic tests).
	Jitter float64
}

// DefaultRetryPolicy returns a RetryPolicy with reasonable defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay: 2 * time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    0.25,
	}
}

// NextDelay returns the backoff delay after the given number of completed
// attempts: BaseDelay * 2^(attempts-1), capped at MaxDelay, plus a random
// jitter fraction.
func (p RetryPolicy) NextDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	// compare in float space so large attempt counts cannot overflow
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempts-1))
	if ceiling := float64(p.MaxDelay); delay > ceiling {
		delay = ceiling
	}

	if p.Jitter > 0 {
		delay *= 1 + rand.Float64()*p.Jitter
	}

	return time.Duration(delay)
}
