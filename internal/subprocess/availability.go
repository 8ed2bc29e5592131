package subprocess

import (
	"context"
	"sync"
)

// AvailabilityCache probes each vendor tool once and remembers the result,
// so repeated HostProbe.collect_realtime calls skip the probe.
type AvailabilityCache struct {
	mu    sync.Mutex
	known map[string]bool
}

// NewAvailabilityCache returns an empty cache.
func NewAvailabilityCache() *AvailabilityCache {
	return &AvailabilityCache{known: make(map[string]bool)}
}

// Available reports whether tool is runnable, probing with probeArgs (or
// `--version` when none are given) and caching the result per tool for the
// lifetime of the cache.
func (c *AvailabilityCache) Available(ctx context.Context, tool string, probeArgs ...string) bool {
	c.mu.Lock()
	if v, ok := c.known[tool]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	if len(probeArgs) == 0 {
		probeArgs = []string{"--version"}
	}
	res, err := Run(ctx, tool, probeArgs, CheckTimeout)
	ok := err == nil && res.Outcome != NotFound

	c.mu.Lock()
	c.known[tool] = ok
	c.mu.Unlock()
	return ok
}
