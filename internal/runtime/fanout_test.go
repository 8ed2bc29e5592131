package runtime

import (
	"testing"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
)

func TestFanoutDeliversToEverySubscriber(t *testing.T) {
	in := make(chan model.Sample, 1)
	f := newFanout(in)
	go f.run()

	a := f.subscribe()
	b := f.subscribe()

	in <- model.Sample{Kind: model.KindRealtime, TimestampMs: 1}

	for _, ch := range []chan model.Sample{a, b} {
		select {
		case sample := <-ch:
			if sample.TimestampMs != 1 {
				t.Fatalf("expected timestamp 1, got %d", sample.TimestampMs)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive sample")
		}
	}
}

func TestFanoutClosesSubscribersOnShutdown(t *testing.T) {
	in := make(chan model.Sample)
	f := newFanout(in)
	done := make(chan struct{})
	go func() { f.run(); close(done) }()

	ch := f.subscribe()
	close(in)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after input closed")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was never closed")
	}
}

func TestFanoutUnsubscribeStopsDelivery(t *testing.T) {
	in := make(chan model.Sample, 1)
	f := newFanout(in)
	go f.run()

	ch := f.subscribe()
	f.unsubscribe(ch)

	in <- model.Sample{Kind: model.KindRealtime, TimestampMs: 2}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected no further delivery after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// no delivery within the window is the expected outcome
	}
}
