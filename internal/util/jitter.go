package util

import (
	"math/rand"
	"time"
)

// JitteredTTL returns base plus a uniform random duration in [0, jitter).
func JitteredTTL(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(jitter)))
}

// Backoff computes the exponential-backoff-with-jitter delay for attempt n
// (0-indexed): initial * 2^n, capped at max, with up to ±20% jitter.
func Backoff(initial, max time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	jitterRange := float64(d) * 0.2
	delta := (rand.Float64()*2 - 1) * jitterRange
	result := time.Duration(float64(d) + delta)
	if result < 0 {
		result = initial
	}
	return result
}
