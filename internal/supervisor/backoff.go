package supervisor

import (
	"math/rand"
	"time"
)

// Backoff tracks the reconnect delay: start at base,
// double on each failure up to max, reset to base on a successful
// Authenticated transition. A uniform +/-20% jitter is applied.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	current time.Duration
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max, current: base}
}

// Next returns the delay to sleep before the next connect attempt and
// doubles the internal counter for the following call.
func (b *Backoff) Next() time.Duration {
	d := jitter(b.current)
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return d
}

// Reset returns the counter to Base; called after a successful
// Authenticated transition.
func (b *Backoff) Reset() {
	b.current = b.Base
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
