package buffer

import (
	"testing"

	"github.com/nanoagent/nanoagent/internal/model"
)

func sampleAt(ts int64) model.Sample {
	return model.Sample{TimestampMs: ts, Kind: model.KindRealtime}
}

func TestOverflowKeepsLastN(t *testing.T) {
	rb := New(3)
	for _, ts := range []int64{100, 200, 300, 400} {
		rb.Push(sampleAt(ts))
	}
	if rb.Len() != 3 {
		t.Fatalf("expected len 3, got %d", rb.Len())
	}
	got := rb.Since(0)
	want := []int64{200, 300, 400}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, ts := range want {
		if got[i].TimestampMs != ts {
			t.Fatalf("index %d: expected ts %d, got %d", i, ts, got[i].TimestampMs)
		}
	}
}

func TestSinceExcludesAtOrBefore(t *testing.T) {
	rb := New(10)
	rb.Push(sampleAt(100))
	rb.Push(sampleAt(200))
	rb.Push(sampleAt(300))

	got := rb.Since(200)
	if len(got) != 1 || got[0].TimestampMs != 300 {
		t.Fatalf("expected only ts=300, got %+v", got)
	}
}

func TestCapacityOne(t *testing.T) {
	rb := New(1)
	rb.Push(sampleAt(1))
	rb.Push(sampleAt(2))
	latest, ok := rb.Latest()
	if !ok || latest.TimestampMs != 2 {
		t.Fatalf("expected latest ts=2, got %+v ok=%v", latest, ok)
	}
	got := rb.Since(-1)
	if len(got) != 1 || got[0].TimestampMs != 2 {
		t.Fatalf("expected since(-inf) to return only the latest, got %+v", got)
	}
}

func TestOfflineCatchUpScenario(t *testing.T) {
	// Scenario 1 from spec
	rb := New(3)
	rb.Push(sampleAt(100))
	rb.Push(sampleAt(200))
	rb.Push(sampleAt(300))

	replay := rb.Since(0)
	if len(replay) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(replay))
	}
	newest, _ := rb.NewestTimestamp()
	if newest != 300 {
		t.Fatalf("expected newest=300, got %d", newest)
	}

	rb.Push(sampleAt(400))
	replay2 := rb.Since(0) // last_sync_timestamp still 0 in this sub-scenario variant
	_ = replay2
	replay3 := rb.Since(newest)
	if len(replay3) != 1 || replay3[0].TimestampMs != 400 {
		t.Fatalf("expected only ts=400 after advancing sync point, got %+v", replay3)
	}
}

func TestClear(t *testing.T) {
	rb := New(5)
	rb.Push(sampleAt(1))
	rb.Clear()
	if !rb.IsEmpty() {
		t.Fatalf("expected empty after Clear")
	}
}
