package infra

import (
	"time"
)

// Backoff is an exponential schedule with a cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns Base * 2^retryCount, capped at Max.
// If retryCount is negative, it returns Base.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		return b.Base
	}

	// 2^30 * Base already exceeds any sensible cap.
	if retryCount > 30 {
		return b.Max
	}

	d := b.Base * time.Duration(1<<retryCount)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
