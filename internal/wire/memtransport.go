package wire

import (
	"context"
	"errors"
	"sync"
)

// MemTransport is an in-process Transport/Stream pair used by supervisor
// tests to exercise the authenticate/stream/reconnect state machine without
// a real network or gRPC server.
type MemTransport struct {
	mu          sync.Mutex
	AuthFunc    func(ctx context.Context, req AuthRequest) (AuthResponse, error)
	OpenFunc    func(ctx context.Context) (Stream, error)
	closed      bool
}

func (t *MemTransport) Authenticate(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	if t.AuthFunc != nil {
		return t.AuthFunc(ctx, req)
	}
	return AuthResponse{Success: true}, nil
}

func (t *MemTransport) OpenStream(ctx context.Context) (Stream, error) {
	if t.OpenFunc != nil {
		return t.OpenFunc(ctx)
	}
	return NewMemStream(), nil
}

func (t *MemTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// MemStream is a Stream backed by two buffered channels: Inbox feeds Recv,
// and every Send is appended to Sent for test assertions.
type MemStream struct {
	mu     sync.Mutex
	Inbox  chan InboundFrame
	Sent   []OutboundFrame
	closed bool
}

func NewMemStream() *MemStream {
	return &MemStream{Inbox: make(chan InboundFrame, 64)}
}

func (s *MemStream) Send(ctx context.Context, frame OutboundFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.Sent = append(s.Sent, frame)
	return nil
}

func (s *MemStream) Recv(ctx context.Context) (InboundFrame, error) {
	select {
	case f, ok := <-s.Inbox:
		if !ok {
			return InboundFrame{}, errors.New("stream closed")
		}
		return f, nil
	case <-ctx.Done():
		return InboundFrame{}, ctx.Err()
	}
}

// SentCount returns the number of frames sent so far, safe for concurrent
// use with Send.
func (s *MemStream) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

func (s *MemStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Inbox)
	}
	return nil
}
