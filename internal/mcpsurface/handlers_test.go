package mcpsurface

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeState struct {
	statuses []EndpointStatusView
	sample   SampleView
	hasSample bool
	stats    RingStatsView
}

func (f fakeState) Status() []EndpointStatusView  { return f.statuses }
func (f fakeState) LatestSample() (SampleView, bool) { return f.sample, f.hasSample }
func (f fakeState) RingBufferStats() RingStatsView { return f.stats }

func firstText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected exactly one content block, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestHandlerGetAgentStatusCountsStreaming(t *testing.T) {
	state := fakeState{statuses: []EndpointStatusView{
		{Host: "a", State: "streaming"},
		{Host: "b", State: "backoff"},
		{Host: "c", State: "streaming"},
	}}
	res, err := handlerGetAgentStatus(state)(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", firstText(t, res))
	}
	var summary map[string]float64
	if err := json.Unmarshal([]byte(firstText(t, res)), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary["configured_endpoints"] != 3 || summary["streaming_endpoints"] != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHandlerGetLatestSampleReportsEmptyRing(t *testing.T) {
	res, err := handlerGetLatestSample(fakeState{hasSample: false})(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result when the ring buffer is empty")
	}
	if !strings.Contains(firstText(t, res), "empty") {
		t.Fatalf("expected message to mention the empty ring, got %q", firstText(t, res))
	}
}

func TestHandlerGetLatestSampleReturnsSample(t *testing.T) {
	state := fakeState{hasSample: true, sample: SampleView{TimestampMs: 42, Kind: "realtime"}}
	res, err := handlerGetLatestSample(state)(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got SampleView
	if err := json.Unmarshal([]byte(firstText(t, res)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TimestampMs != 42 || got.Kind != "realtime" {
		t.Fatalf("unexpected sample: %+v", got)
	}
}

func TestHandlerGetRingBufferStats(t *testing.T) {
	state := fakeState{stats: RingStatsView{Length: 10, Capacity: 100, UsagePercent: 10}}
	res, err := handlerGetRingBufferStats(state)(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got RingStatsView
	if err := json.Unmarshal([]byte(firstText(t, res)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Length != 10 || got.Capacity != 100 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}
