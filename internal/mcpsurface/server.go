// Package mcpsurface is a read-only companion to the management API: it
// exposes live agent state -- connected endpoints, the latest sample, ring
// buffer usage -- as MCP tools over stdio, so an AI coding/ops assistant
// attached to the host can inspect agent state without hitting the
// loopback HTTP surface. It never mutates configuration or dispatches
// commands; that remains exclusive to the executor and management layers.
package mcpsurface

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StateProvider is the read-only slice of AgentRuntime this surface queries.
// Implemented by *runtime.Runtime; kept as an interface here so mcpsurface
// never imports internal/runtime (it would be the only consumer-side
// dependency cycle risk in the tree).
type StateProvider interface {
	Status() []EndpointStatusView
	LatestSample() (SampleView, bool)
	RingBufferStats() RingStatsView
}

// Server wraps the MCP server instance.
type Server struct {
	mcpServer *server.MCPServer
	state     StateProvider
}

// NewServer creates a read-only MCP server bound to state.
func NewServer(version string, state StateProvider) *Server {
	s := server.NewMCPServer("nanoagentd", version, server.WithLogging())
	registerTools(s, state)
	return &Server{mcpServer: s, state: state}
}

// Start runs the server in stdio mode (blocking) until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func registerTools(s *server.MCPServer, state StateProvider) {
	s.AddTool(
		mcp.NewTool("get_agent_status",
			mcp.WithDescription("Summary of the agent process: number of configured endpoints and how many are currently streaming."),
		),
		handlerGetAgentStatus(state),
	)

	s.AddTool(
		mcp.NewTool("list_endpoints",
			mcp.WithDescription("List every configured server endpoint with its live connection state and effective permission level."),
		),
		handlerListEndpoints(state),
	)

	s.AddTool(
		mcp.NewTool("get_latest_sample",
			mcp.WithDescription("Return the most recently collected sample from the ring buffer (whichever of static/realtime/periodic it carries)."),
		),
		handlerGetLatestSample(state),
	)

	s.AddTool(
		mcp.NewTool("get_ring_buffer_stats",
			mcp.WithDescription("Report the offline ring buffer's current length, capacity, usage percentage, and oldest/newest timestamps."),
		),
		handlerGetRingBufferStats(state),
	)
}
