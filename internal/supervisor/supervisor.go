// Package supervisor drives one connection per configured endpoint: a
// connect/authenticate/stream/backoff state machine that replays buffered
// samples after each successful authentication and dispatches inbound
// commands to the executor layer, echoing each reply on the same stream.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nanoagent/nanoagent/internal/buffer"
	"github.com/nanoagent/nanoagent/internal/executor"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/wire"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultMaxReconnectDelay = 300 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// TransportFactory opens a Transport to one endpoint; swappable in tests for
// wire.MemTransport.
type TransportFactory func(ctx context.Context, ep model.Endpoint) (wire.Transport, error)

// Supervisor drives the state machine for one Endpoint.
type Supervisor struct {
	mu       sync.RWMutex
	endpoint model.Endpoint
	state    model.ConnectionState
	effectivePermission model.PermissionLevel

	dial       TransportFactory
	ring       *buffer.RingBuffer
	dispatcher *executor.Dispatcher
	samples    <-chan model.Sample
	log        *zap.SugaredLogger

	heartbeatInterval time.Duration
	backoff           *Backoff

	lastSyncTimestamp int64

	updateCh chan model.Endpoint
	stopCh   chan struct{}
}

// New constructs a Supervisor for ep. samples is the channel the sampler
// publishes newly-produced Sample values on; the supervisor also drains
// historical entries from ring on reconnect.
func New(ep model.Endpoint, dial TransportFactory, ring *buffer.RingBuffer, dispatcher *executor.Dispatcher, samples <-chan model.Sample, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		endpoint:            ep,
		state:               model.StateDisconnected,
		effectivePermission: ep.Permission,
		dial:                dial,
		ring:                ring,
		dispatcher:          dispatcher,
		samples:             samples,
		log:                 log,
		heartbeatInterval:   DefaultHeartbeatInterval,
		backoff:             NewBackoff(DefaultReconnectDelay, DefaultMaxReconnectDelay),
		updateCh:            make(chan model.Endpoint, 1),
		stopCh:              make(chan struct{}),
	}
}

func (s *Supervisor) State() model.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st model.ConnectionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) syncTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncTimestamp
}

// advanceSyncTimestamp keeps lastSyncTimestamp non-decreasing across
// reconnect cycles.
func (s *Supervisor) advanceSyncTimestamp(ts int64) {
	s.mu.Lock()
	if ts > s.lastSyncTimestamp {
		s.lastSyncTimestamp = ts
	}
	s.mu.Unlock()
}

func (s *Supervisor) EffectivePermission() model.PermissionLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectivePermission
}

// Update signals the supervisor to re-authenticate with new endpoint
// credentials without tearing down unrelated endpoints.
func (s *Supervisor) Update(ep model.Endpoint) {
	select {
	case s.updateCh <- ep:
	default:
	}
}

// Stop signals the supervisor's Run loop to exit.
func (s *Supervisor) Stop() {
	close(s.stopCh)
}

// Run drives the Disconnected -> Connecting -> Authenticating -> Streaming
// -> Backoff cycle until ctx is cancelled or Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case ep := <-s.updateCh:
			s.mu.Lock()
			s.endpoint = ep
			s.mu.Unlock()
		default:
		}

		if err := s.attempt(ctx); err != nil {
			s.setState(model.StateBackoff)
			if s.log != nil {
				s.log.Warnw("connection attempt failed, backing off", "host", s.endpoint.Host, "port", s.endpoint.Port, "error", err)
			}
			delay := s.backoff.Next()
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(delay):
			}
			continue
		}
	}
}

// attempt runs one full connect-authenticate-stream cycle. It returns nil
// only when the caller should reconnect immediately without backoff (not
// currently used, reserved for a future graceful-reconnect signal); any
// error -- including a clean stream teardown -- triggers backoff.
func (s *Supervisor) attempt(ctx context.Context) error {
	connID := uuid.NewString()
	s.setState(model.StateConnecting)
	token, err := ResolveToken(s.endpoint.Token)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	transport, err := s.dial(ctx, s.endpoint)
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", s.endpoint.Host, s.endpoint.Port, err)
	}
	defer transport.Close()

	if s.log != nil {
		s.log.Debugw("connection attempt", "connection_id", connID, "host", s.endpoint.Host, "port", s.endpoint.Port)
	}

	s.setState(model.StateAuthenticating)
	authCtx, cancel := context.WithTimeout(ctx, wire.RequestTimeout)
	resp, err := transport.Authenticate(authCtx, wire.AuthRequest{
		Token:        token,
		Hostname:     s.endpoint.Host,
		AgentVersion: AgentVersion,
		OS:           agentOS(),
		Arch:         agentArch(),
	})
	cancel()
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("authentication rejected: %s", resp.ErrorMessage)
	}

	s.mu.Lock()
	s.effectivePermission = resp.PermissionLevel
	s.mu.Unlock()
	s.backoff.Reset()
	if s.log != nil {
		s.log.Infow("authenticated", "connection_id", connID, "host", s.endpoint.Host, "port", s.endpoint.Port, "permission", resp.PermissionLevel.String())
	}

	stream, err := transport.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	s.setState(model.StateStreaming)
	if err := s.syncOnReconnect(ctx, stream); err != nil {
		return fmt.Errorf("sync on reconnect: %w", err)
	}

	return s.streamLoop(ctx, stream)
}

// syncOnReconnect replays everything newer than lastSyncTimestamp in a
// single batched message. An empty buffer is skipped silently.
func (s *Supervisor) syncOnReconnect(ctx context.Context, stream wire.Stream) error {
	replay := s.ring.Since(s.syncTimestamp())
	if len(replay) == 0 {
		return nil
	}
	if err := stream.Send(ctx, wire.OutboundFrame{Kind: wire.OutboundSyncReplay, Replay: &wire.SyncReplay{Samples: replay}}); err != nil {
		return err
	}
	for _, sample := range replay {
		s.advanceSyncTimestamp(sample.TimestampMs)
	}
	return nil
}

// streamLoop runs the two cooperative send/receive tasks sharing stream
// until either exits with an error or a heartbeat timeout elapses.
func (s *Supervisor) streamLoop(ctx context.Context, stream wire.Stream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	lastInbound := make(chan time.Time, 1)
	lastInbound <- time.Now()

	go func() { errCh <- s.sendLoop(ctx, stream) }()
	go func() { errCh <- s.recvLoop(ctx, stream, lastInbound) }()

	timeout := 3 * s.heartbeatInterval
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ticker.C:
			select {
			case last := <-lastInbound:
				lastInbound <- last
				if time.Since(last) > timeout {
					return fmt.Errorf("heartbeat timeout: no inbound frame in %s", timeout)
				}
			default:
			}
		}
	}
}

func (s *Supervisor) sendLoop(ctx context.Context, stream wire.Stream) error {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-s.samples:
			if !ok {
				return fmt.Errorf("sample source closed")
			}
			if err := stream.Send(ctx, wire.OutboundFrame{Kind: wire.OutboundMetrics, Metrics: &sample}); err != nil {
				return err
			}
			s.advanceSyncTimestamp(sample.TimestampMs)
		case <-ticker.C:
			if err := stream.Send(ctx, wire.OutboundFrame{Kind: wire.OutboundHeartbeat, Heartbeat: &wire.Heartbeat{TimestampMs: time.Now().UnixMilli()}}); err != nil {
				return err
			}
		}
	}
}

func (s *Supervisor) recvLoop(ctx context.Context, stream wire.Stream, lastInbound chan time.Time) error {
	for {
		frame, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		select {
		case <-lastInbound:
		default:
		}
		lastInbound <- time.Now()

		switch frame.Kind {
		case wire.InboundCommand:
			if frame.Command == nil {
				continue
			}
			result := s.dispatcher.Dispatch(ctx, *frame.Command, s.EffectivePermission())
			if err := stream.Send(ctx, wire.OutboundFrame{Kind: wire.OutboundCommandResult, Result: &result}); err != nil {
				return err
			}
		case wire.InboundHeartbeatAck:
			// arrival alone reset the clock above; nothing else to do.
		case wire.InboundConfigUpdate:
			if frame.ConfigUpdate != nil && frame.ConfigUpdate.HeartbeatIntervalMs > 0 {
				s.heartbeatInterval = time.Duration(frame.ConfigUpdate.HeartbeatIntervalMs) * time.Millisecond
			}
		}
	}
}
