// Package ratelimit implements a per-source-IP-per-endpoint token bucket
// guarding the management API, built on golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter owns one token bucket per "<source_ip>:<endpoint_path>" key, with
// a global default rate/burst and optional per-endpoint overrides.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*entry
	defaultRPM  int
	defaultBurst int
	overrides   map[string]Rate

	idleEvictAfter time.Duration
}

// Rate is a requests-per-minute/burst pair.
type Rate struct {
	RequestsPerMinute int
	Burst             int
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// New constructs a Limiter with a global default; per-endpoint overrides may
// be added with SetOverride.
func New(defaultRPM, defaultBurst int) *Limiter {
	return &Limiter{
		buckets:        make(map[string]*entry),
		defaultRPM:     defaultRPM,
		defaultBurst:   defaultBurst,
		overrides:      make(map[string]Rate),
		idleEvictAfter: 10 * time.Minute,
	}
}

// SetOverride configures a non-default rate for one endpoint path (e.g.
// "/api/servers").
func (l *Limiter) SetOverride(path string, r Rate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[path] = r
}

// Allow consumes one token for key "sourceIP:endpointPath", creating its
// bucket on first use. It returns (true, 0) if permitted, or (false,
// retryAfter) naming how long the caller should wait before retrying.
func (l *Limiter) Allow(sourceIP, endpointPath string) (bool, time.Duration) {
	key := sourceIP + ":" + endpointPath

	l.mu.Lock()
	e, ok := l.buckets[key]
	if !ok {
		rpm, burst := l.defaultRPM, l.defaultBurst
		if r, ok := l.overrides[endpointPath]; ok {
			rpm, burst = r.RequestsPerMinute, r.Burst
		}
		e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
		l.buckets[key] = e
	}
	e.lastAccess = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	if limiter.Allow() {
		return true, 0
	}
	// reserve a token to compute an accurate wait, then cancel the
	// reservation so it doesn't double-consume
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

// Evict removes buckets untouched for longer than idleEvictAfter. Intended
// to be called periodically (every 5 minutes).
func (l *Limiter) Evict() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.idleEvictAfter)
	for key, e := range l.buckets {
		if e.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// RunEvictionLoop runs Evict on a 5-minute cadence until stop fires.
func (l *Limiter) RunEvictionLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}
