// Package buffer implements the bounded offline ring buffer: a FIFO of
// recent samples that survives short outages without unbounded memory
// growth, shared by one writer (the sampler) and many readers (the
// connection supervisors).
package buffer

import (
	"sync"

	"github.com/nanoagent/nanoagent/internal/model"
)

// RingBuffer is a bounded FIFO of model.Sample. Overflow policy is
// tail-wins: the oldest entry is evicted to make room, silently -- no error
// is ever surfaced for overflow.
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []model.Sample
	capacity int
	head     int // index of oldest entry
	size     int
}

// New creates a RingBuffer with the given positive capacity.
func New(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		entries:  make([]model.Sample, capacity),
		capacity: capacity,
	}
}

// Push appends a sample, evicting the oldest entry first if the buffer is full.
func (r *RingBuffer) Push(s model.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.size) % r.capacity
	if r.size == r.capacity {
		// Full: overwrite the oldest slot and advance head.
		r.entries[r.head] = s
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.entries[idx] = s
	r.size++
}

// Latest returns the most recently pushed sample, if any.
func (r *RingBuffer) Latest() (model.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return model.Sample{}, false
	}
	idx := (r.head + r.size - 1) % r.capacity
	return r.entries[idx], true
}

// Since returns all samples with TimestampMs strictly greater than ts, in
// insertion order.
func (r *RingBuffer) Since(ts int64) []model.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Sample, 0, r.size)
	for i := 0; i < r.size; i++ {
		s := r.entries[(r.head+i)%r.capacity]
		if s.TimestampMs > ts {
			out = append(out, s)
		}
	}
	return out
}

// OldestTimestamp returns the timestamp of the oldest surviving entry.
func (r *RingBuffer) OldestTimestamp() (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return 0, false
	}
	return r.entries[r.head].TimestampMs, true
}

// NewestTimestamp returns the timestamp of the most recently pushed entry.
func (r *RingBuffer) NewestTimestamp() (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return 0, false
	}
	idx := (r.head + r.size - 1) % r.capacity
	return r.entries[idx].TimestampMs, true
}

// Len returns the current number of entries.
func (r *RingBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// IsEmpty reports whether the buffer has no entries.
func (r *RingBuffer) IsEmpty() bool {
	return r.Len() == 0
}

// Clear empties the buffer.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}

// UsagePercent returns how full the buffer is, 0-100.
func (r *RingBuffer) UsagePercent() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.capacity == 0 {
		return 0
	}
	return 100 * float64(r.size) / float64(r.capacity)
}
