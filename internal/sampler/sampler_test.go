package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/nanoagent/nanoagent/internal/buffer"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/probe"
)

func testSampler(cfg Config) (*Sampler, *buffer.RingBuffer) {
	ring := buffer.New(64)
	p := probe.New(probe.DefaultRoots())
	return New(p, cfg, ring), ring
}

func TestSamplerEmitsInitialFullWhenConfigured(t *testing.T) {
	s, _ := testSampler(Config{RealtimeIntervalMs: 50, SendInitialFull: true})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	first := <-s.Out
	if first.Kind != model.KindStatic {
		t.Fatalf("expected first emission to be Static, got %v", first.Kind)
	}
	second := <-s.Out
	if second.Kind != model.KindFull {
		t.Fatalf("expected second emission to be Full, got %v", second.Kind)
	}
}

func TestSamplerServesDataRequest(t *testing.T) {
	s, _ := testSampler(Config{RealtimeIntervalMs: int(time.Hour.Milliseconds())})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	reply := make(chan model.Sample, 1)
	s.Requests <- DataRequest{Kind: RequestStatic, Reply: reply}

	select {
	case sample := <-reply:
		if sample.Kind != model.KindStatic {
			t.Errorf("expected Static reply, got %v", sample.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request reply")
	}
}

func TestSamplerTicksProduceRealtimeAndBufferThem(t *testing.T) {
	s, ring := testSampler(Config{RealtimeIntervalMs: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	timeout := time.After(time.Second)
	for {
		select {
		case sample, ok := <-s.Out:
			if !ok {
				goto checkRing
			}
			if sample.Kind == model.KindRealtime {
				goto checkRing
			}
		case <-timeout:
			t.Fatal("timed out waiting for a realtime sample")
		}
	}

checkRing:
	<-done
	if ring.IsEmpty() {
		t.Error("expected ring buffer to contain at least one pushed sample")
	}
}
