package supervisor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nanoagent/nanoagent/internal/buffer"
	"github.com/nanoagent/nanoagent/internal/executor"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/wire"
)

func TestResolveTokenLiteral(t *testing.T) {
	got, err := ResolveToken("plain-token")
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain-token" {
		t.Errorf("got %q", got)
	}
}

func TestResolveTokenEnv(t *testing.T) {
	t.Setenv("NANOAGENT_TEST_TOKEN", "env-value")
	got, err := ResolveToken("${NANOAGENT_TEST_TOKEN}")
	if err != nil {
		t.Fatal(err)
	}
	if got != "env-value" {
		t.Errorf("got %q", got)
	}
}

func TestResolveTokenEnvMissing(t *testing.T) {
	if _, err := ResolveToken("${NANOAGENT_DOES_NOT_EXIST}"); err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestResolveTokenFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/token.txt"
	if err := os.WriteFile(path, []byte("file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveToken("file://" + path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "file-token" {
		t.Errorf("got %q", got)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 4*time.Second)
	d1 := b.Next()
	if d1 < 800*time.Millisecond || d1 > 1200*time.Millisecond {
		t.Errorf("first delay out of jitter range: %s", d1)
	}
	b.Next() // now current is 4s (capped)
	d3 := b.Next()
	if d3 < 3200*time.Millisecond || d3 > 4800*time.Millisecond {
		t.Errorf("capped delay out of jitter range: %s", d3)
	}
}

func TestBackoffResetsToBase(t *testing.T) {
	b := NewBackoff(time.Second, 300*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	d := b.Next()
	if d < 800*time.Millisecond || d > 1200*time.Millisecond {
		t.Errorf("expected reset delay near base, got %s", d)
	}
}

func TestSupervisorAuthenticatesAndStreams(t *testing.T) {
	ring := buffer.New(16)
	ring.Push(model.Sample{TimestampMs: 100, Kind: model.KindRealtime})

	stream := wire.NewMemStream()
	transport := &wire.MemTransport{
		AuthFunc: func(ctx context.Context, req wire.AuthRequest) (wire.AuthResponse, error) {
			return wire.AuthResponse{Success: true, PermissionLevel: model.BasicWrite}, nil
		},
		OpenFunc: func(ctx context.Context) (wire.Stream, error) { return stream, nil },
	}

	dial := func(ctx context.Context, ep model.Endpoint) (wire.Transport, error) { return transport, nil }
	samples := make(chan model.Sample)
	d := executor.NewDispatcher(nil)

	s := New(model.Endpoint{Host: "example.com", Port: 9000, Token: "t"}, dial, ring, d, samples, nil)
	s.heartbeatInterval = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	<-ctx.Done()

	if s.EffectivePermission() != model.BasicWrite {
		t.Errorf("expected effective permission BasicWrite, got %v", s.EffectivePermission())
	}

	if stream.SentCount() == 0 {
		t.Error("expected at least the sync-on-reconnect replay to be sent")
	}
}

func TestSyncOnReconnectBatchesReplay(t *testing.T) {
	ring := buffer.New(3)
	for _, ts := range []int64{100, 200, 300} {
		ring.Push(model.Sample{TimestampMs: ts, Kind: model.KindRealtime})
	}

	dial := func(ctx context.Context, ep model.Endpoint) (wire.Transport, error) { return &wire.MemTransport{}, nil }
	s := New(model.Endpoint{Host: "example.com", Port: 9000}, dial, ring, executor.NewDispatcher(nil), nil, nil)

	stream := wire.NewMemStream()
	if err := s.syncOnReconnect(context.Background(), stream); err != nil {
		t.Fatal(err)
	}
	if stream.SentCount() != 1 {
		t.Fatalf("expected one batched replay frame, got %d", stream.SentCount())
	}
	frame := stream.Sent[0]
	if frame.Kind != wire.OutboundSyncReplay || frame.Replay == nil {
		t.Fatalf("expected a sync-replay frame, got %+v", frame)
	}
	if len(frame.Replay.Samples) != 3 || frame.Replay.Samples[2].TimestampMs != 300 {
		t.Fatalf("expected [100,200,300] replay, got %+v", frame.Replay.Samples)
	}
	if s.syncTimestamp() != 300 {
		t.Fatalf("expected last_sync_timestamp=300, got %d", s.syncTimestamp())
	}

	// A fourth push evicts ts=100; the next sync replays only what is newer
	// than the advanced sync point.
	ring.Push(model.Sample{TimestampMs: 400, Kind: model.KindRealtime})
	stream2 := wire.NewMemStream()
	if err := s.syncOnReconnect(context.Background(), stream2); err != nil {
		t.Fatal(err)
	}
	frame2 := stream2.Sent[0]
	if len(frame2.Replay.Samples) != 1 || frame2.Replay.Samples[0].TimestampMs != 400 {
		t.Fatalf("expected only ts=400 in second replay, got %+v", frame2.Replay.Samples)
	}
	if s.syncTimestamp() != 400 {
		t.Fatalf("expected last_sync_timestamp=400, got %d", s.syncTimestamp())
	}
}

func TestSyncOnReconnectSkipsEmptyBuffer(t *testing.T) {
	dial := func(ctx context.Context, ep model.Endpoint) (wire.Transport, error) { return &wire.MemTransport{}, nil }
	s := New(model.Endpoint{Host: "example.com", Port: 9000}, dial, buffer.New(4), executor.NewDispatcher(nil), nil, nil)

	stream := wire.NewMemStream()
	if err := s.syncOnReconnect(context.Background(), stream); err != nil {
		t.Fatal(err)
	}
	if stream.SentCount() != 0 {
		t.Fatalf("expected no frames for an empty buffer, got %d", stream.SentCount())
	}
}
