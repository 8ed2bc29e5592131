package wire

import (
	"context"
	"testing"
	"time"
)

func TestMemStreamSendRecordsFrames(t *testing.T) {
	s := NewMemStream()
	if err := s.Send(context.Background(), OutboundFrame{Kind: OutboundHeartbeat, Heartbeat: &Heartbeat{TimestampMs: 1}}); err != nil {
		t.Fatal(err)
	}
	if len(s.Sent) != 1 {
		t.Fatalf("expected 1 sent frame, got %d", len(s.Sent))
	}
}

func TestMemStreamRecvDeliversInbox(t *testing.T) {
	s := NewMemStream()
	s.Inbox <- InboundFrame{Kind: InboundHeartbeatAck, HeartbeatAck: &HeartbeatAck{ServerTimestampMs: 42}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := s.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Kind != InboundHeartbeatAck || frame.HeartbeatAck.ServerTimestampMs != 42 {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestMemStreamRecvRespectsContextCancel(t *testing.T) {
	s := NewMemStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Recv(ctx); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestMemStreamCloseThenRecvErrors(t *testing.T) {
	s := NewMemStream()
	s.Close()
	if _, err := s.Recv(context.Background()); err == nil {
		t.Fatal("expected error after close")
	}
}
