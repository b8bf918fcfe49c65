package websocket

import (
	"math/rand"
	"time"
)

// Backoff defines how the reconnect delay grows between failed attempts.
type Backoff struct {
	// Min is the delay before the first retry and a lower bound for every retry.
	Min time.Duration
	// Max caps the grown delay. Values below Min keep the delay fixed at Min.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt. Values <= 1 keep it fixed.
	Factor float64
	// Jitter adds up to this fraction of the delay (0-1). It is never subtracted.
	Jitter float64
}

// FixedBackoff retries after the same delay every time.
func FixedBackoff(delay time.Duration) Backoff {
	return Backoff{Min: delay, Max: delay, Factor: 1}
}

// Enabled reports whether retries should be scheduled at all.
func (b Backoff) Enabled() bool {
	return b.Min > 0
}

// Next returns the backoff duration for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if b.Min <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}

	wait := b.Min
	if b.Factor > 1 && b.Max > b.Min {
		for i := 1; i < attempt; i++ {
			next := time.Duration(float64(wait) * b.Factor)
			if next >= b.Max {
				wait = b.Max
				break
			}
			wait = next
		}
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	return wait + time.Duration(rand.Float64()*jitter*float64(wait))
}
