package queue

import (
	"math/rand"
	"time"
)

// Backoff returns the delay before retry attempt+1 given the attempt
// that just failed (1-based). The delay doubles per attempt with up to
// 10% jitter so synchronized failures do not retry in lockstep.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}

	jitter := time.Duration(rand.Int63n(int64(d)/10 + 1))
	return d + jitter
}

const maxBackoff = 10 * time.Minute
