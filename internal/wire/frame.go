// Package wire defines the message and frame shapes exchanged between the
// agent and a server over a single bidirectional stream, and the Transport
// abstraction the connection supervisor drives. Generated protobuf service
// stubs are deliberately absent -- only the message shapes and streaming
// semantics live here.
package wire

import (
	"github.com/nanoagent/nanoagent/internal/model"
)

// OutboundKind distinguishes the four frame shapes the agent ever sends.
type OutboundKind int

const (
	OutboundMetrics OutboundKind = iota
	OutboundHeartbeat
	OutboundCommandResult
	OutboundSyncReplay
)

// OutboundFrame carries exactly one of Metrics, Heartbeat, Result, or
// Replay, selected by Kind.
type OutboundFrame struct {
	Kind      OutboundKind
	Metrics   *model.Sample
	Heartbeat *Heartbeat
	Result    *model.CommandResult
	Replay    *SyncReplay
}

// InboundKind distinguishes the three frame shapes the agent ever receives.
type InboundKind int

const (
	InboundCommand InboundKind = iota
	InboundHeartbeatAck
	InboundConfigUpdate
)

// InboundFrame carries exactly one of Command, HeartbeatAck, or
// ConfigUpdate, selected by Kind.
type InboundFrame struct {
	Kind         InboundKind
	Command      *model.Command
	HeartbeatAck *HeartbeatAck
	ConfigUpdate *ConfigUpdate
}

// Heartbeat is sent on the heartbeat_interval cadence to let the server
// detect a silently-dead link.
type Heartbeat struct {
	TimestampMs int64
}

// HeartbeatAck is the server's reply to a Heartbeat; its mere arrival resets
// the supervisor's heartbeat-timeout clock regardless of payload.
type HeartbeatAck struct {
	ServerTimestampMs int64
}

// ConfigUpdate signals the agent should reload sampler intervals or other
// server-pushed config without tearing down the stream.
type ConfigUpdate struct {
	RealtimeIntervalMs int
	HeartbeatIntervalMs int
}

// AuthRequest is the first message sent after the transport connects.
type AuthRequest struct {
	Token        string
	Hostname     string
	AgentVersion string
	OS           string
	Arch         string
}

// AuthResponse is the server's reply. Success==false means the connection
// must be torn down and the supervisor re-enters Backoff; PermissionLevel is
// authoritative for every subsequent authorization check, overriding the
// config-declared level.
type AuthResponse struct {
	Success         bool
	PermissionLevel model.PermissionLevel
	ErrorMessage    string
}

// SyncReplay batches buffered samples replayed immediately after a
// successful Authenticate's sync-on-reconnect step.
type SyncReplay struct {
	Samples []model.Sample
}
