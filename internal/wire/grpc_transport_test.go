package wire

import "testing"

func TestJSONCodecRoundTrips(t *testing.T) {
	var codec jsonCodec
	want := OutboundFrame{Kind: OutboundHeartbeat, Heartbeat: &Heartbeat{TimestampMs: 123}}

	data, err := codec.Marshal(&want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got OutboundFrame
	if err := codec.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != want.Kind || got.Heartbeat == nil || got.Heartbeat.TimestampMs != 123 {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestJSONCodecName(t *testing.T) {
	var codec jsonCodec
	if codec.Name() != jsonCodecName {
		t.Fatalf("expected name %q, got %q", jsonCodecName, codec.Name())
	}
}
