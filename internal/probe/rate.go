package probe

import "time"

// rateTracker derives per-second rates from monotonically increasing raw
// counters, keyed by a stable per-probe identifier (disk name, NIC name,
// ...). Each counter-based probe stores (identifier -> prev_raw,
// prev_timestamp) and on each collect computes
// rate = saturating_sub(curr, prev) / max(0.001, now-prev).
//
// Not safe for concurrent use from multiple goroutines; each probe owns
// its rateTracker exclusively.
type rateTracker struct {
	prev map[string]counterState
}

type counterState struct {
	raw uint64
	at  time.Time
}

func newRateTracker() *rateTracker {
	return &rateTracker{prev: make(map[string]counterState)}
}

// Rate returns the per-second rate of change of curr for identifier id,
// observed at now. On first observation for id, or when curr < prev (counter
// wraparound or the identifier's source disappeared and reappeared), the
// rate is 0, never negative.
func (t *rateTracker) Rate(id string, curr uint64, now time.Time) float64 {
	prev, ok := t.prev[id]
	t.prev[id] = counterState{raw: curr, at: now}
	if !ok {
		return 0
	}
	if curr < prev.raw {
		return 0 // saturating subtraction: wraparound / counter reset
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed < 0.001 {
		elapsed = 0.001
	}
	rate := float64(curr-prev.raw) / elapsed
	if rate < 0 {
		return 0
	}
	return rate
}

// Forget drops tracked state for identifiers no longer present, so a
// reappearing identifier is treated as a first observation rather than
// computing a rate against stale state.
func (t *rateTracker) Forget(keep map[string]bool) {
	for id := range t.prev {
		if !keep[id] {
			delete(t.prev, id)
		}
	}
}
