package transport

import (
	"math"
	"time"
)

// #region backoff

// Backoff computes reconnect delays. After an online connection drops the
// next attempt waits Base. After the Nth consecutive failed dial it waits
// min(Base*Factor^N, Max). A successful open resets the failure count.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64

	failures int
}

// Failed records a failed dial and returns the delay before the next one.
func (b *Backoff) Failed() time.Duration {
	b.failures++
	return b.delay(b.failures)
}

// Dropped returns the delay after an established connection closed.
func (b *Backoff) Dropped() time.Duration {
	return b.delay(0)
}

// Reset clears the failure count.
func (b *Backoff) Reset() { b.failures = 0 }

// Failures returns the number of consecutive failed dials.
func (b *Backoff) Failures() int { return b.failures }

func (b *Backoff) delay(n int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(n))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// #endregion backoff
