package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// handlerGetAgentStatus reports how many of the configured endpoints are
// currently in the Streaming state.
func handlerGetAgentStatus(state StateProvider) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statuses := state.Status()
		streaming := 0
		for _, st := range statuses {
			if st.State == "streaming" {
				streaming++
			}
		}
		summary := map[string]any{
			"configured_endpoints": len(statuses),
			"streaming_endpoints":  streaming,
		}
		return jsonResult(summary)
	}
}

// handlerListEndpoints lists every configured endpoint's live state.
func handlerListEndpoints(state StateProvider) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(state.Status())
	}
}

// handlerGetLatestSample returns the most recent ring buffer entry.
func handlerGetLatestSample(state StateProvider) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sample, ok := state.LatestSample()
		if !ok {
			return errResult("ring buffer is empty; no sample has been collected yet"), nil
		}
		return jsonResult(sample)
	}
}

// handlerGetRingBufferStats reports the offline ring buffer's fill level.
func handlerGetRingBufferStats(state StateProvider) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(state.RingBufferStats())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(data)), nil
}

func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true).
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
	}
}
