package queue

import "time"

// Default seed for the rolling service-time average, used until real
// completions are observed.
const defaultServiceTime = 10 * time.Second

// ewmaAlpha is the weight of the newest observation in the rolling average.
const ewmaAlpha = 0.2

// estimator derives advisory wait-time figures from queue occupancy and a
// rolling average of observed service times. It never influences admission
// or dispatch; estimates are approximate by design.
type estimator struct {
	avg time.Duration
}

func newEstimator(seed time.Duration) *estimator {
	if seed <= 0 {
		seed = defaultServiceTime
	}
	return &estimator{avg: seed}
}

// observe folds one completed call's service time into the rolling average.
func (e *estimator) observe(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	e.avg = time.Duration((1-ewmaAlpha)*float64(e.avg) + ewmaAlpha*float64(elapsed))
}

// estimate returns the expected wait for a hypothetical new task with the
// given number of equal-or-higher-priority tasks ahead of it, spread over
// the available concurrency slots.
func (e *estimator) estimate(ahead, slots int) time.Duration {
	if ahead <= 0 {
		return 0
	}
	if slots < 1 {
		slots = 1
	}
	rounds := (ahead + slots - 1) / slots
	return time.Duration(rounds) * e.avg
}
