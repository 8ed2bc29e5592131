package runtime

import (
	"sync"

	"github.com/nanoagent/nanoagent/internal/model"
)

// fanout republishes every Sample the Sampler emits to each currently
// subscribed Supervisor. The Sampler itself has exactly one Out channel
// (internal/sampler.Sampler.Out); AgentRuntime needs one independent feed
// per endpoint so that a slow supervisor never starves another's delivery,
// and so a supervisor added after startup (ManagementAPI EventAdd) can
// subscribe without disturbing the others -- this is the many-reader
// fan-out describes as "RingBuffer: many-reader-one-writer
// lock", generalized here to the live feed rather than the replay buffer.
type fanout struct {
	in <-chan model.Sample

	mu   sync.Mutex
	subs map[chan model.Sample]struct{}
}

func newFanout(in <-chan model.Sample) *fanout {
	return &fanout{in: in, subs: make(map[chan model.Sample]struct{})}
}

// run drains in until it is closed (the Sampler's shutdown signal),
// republishing each sample to every current subscriber, then closes every
// subscriber channel so each Supervisor's sendLoop observes "sample source
// closed" and exits cleanly.
func (f *fanout) run() {
	for sample := range f.in {
		f.mu.Lock()
		for ch := range f.subs {
			select {
			case ch <- sample:
			default:
				// A full subscriber channel never blocks the fan-out; the
				// durable record for that endpoint's catch-up is the
				// RingBuffer, replayed via Since() on its next reconnect.
			}
		}
		f.mu.Unlock()
	}

	f.mu.Lock()
	for ch := range f.subs {
		close(ch)
	}
	f.subs = make(map[chan model.Sample]struct{})
	f.mu.Unlock()
}

// subscribe registers and returns a new per-subscriber channel.
func (f *fanout) subscribe() chan model.Sample {
	ch := make(chan model.Sample, 64)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// unsubscribe forgets ch; safe to call after run has already closed it.
func (f *fanout) unsubscribe(ch chan model.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
	}
}
