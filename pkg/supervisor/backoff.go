package supervisor

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is a bounded exponential reconnect delay policy.
type Backoff struct {
	// Initial is the delay before the first reconnect attempt.
	Initial time.Duration

	// Max caps every delay. Zero means the default cap.
	Max time.Duration

	// Multiplier grows the delay between consecutive attempts.
	Multiplier float64

	// Jitter draws each delay uniformly from [0, delay].
	Jitter bool
}

// DefaultBackoff returns 500ms doubling up to 30s, with jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns the wait before reconnect attempt n, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = DefaultBackoff().Max
	}

	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}

	delay := time.Duration(d)
	if b.Jitter && delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}
