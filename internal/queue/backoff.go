package queue

import "time"

const maxBackoffShift = 20

// ExponentialBackoff returns base * 2^(attempt-1), the wait after the given failed attempt.
func ExponentialBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << shift
}
