package connection

import (
	"math"
	"time"
)

// BackoffCeiling is the un-jittered delay for a reconnect attempt:
// base * 2^attempt, capped at max.
func BackoffCeiling(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// Backoff applies 50-100% jitter to the ceiling. r must be in [0, 1).
func Backoff(base, max time.Duration, attempt int, r float64) time.Duration {
	ceiling := BackoffCeiling(base, max, attempt)
	return time.Duration(float64(ceiling) * (0.5 + r*0.5))
}
