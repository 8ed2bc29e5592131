package management

import "github.com/nanoagent/nanoagent/internal/model"

// EventKind distinguishes the three server-change broadcasts the
// AgentRuntime reacts to.
type EventKind int

const (
	EventAdd EventKind = iota
	EventUpdate
	EventRemove
)

// Event is broadcast on every successful /api/servers mutation. AgentRuntime
// consumes these to spawn, re-authenticate, or shut down a supervisor.
type Event struct {
	Kind     EventKind
	Endpoint model.Endpoint
}
