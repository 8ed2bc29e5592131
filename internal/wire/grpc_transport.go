package wire

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered once at package init so every call against a
// ClientConn dialed by Dial can select it via grpc.CallContentSubtype,
// without requiring generated protobuf stubs. The wire messages already
// carry json tags (internal/model), so this codec is a direct reuse of
// that shape rather than a second one invented just for transport.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

// Fully-qualified method names for the unary Authenticate call and the
// bidirectional Stream call. No server-side handler is registered in this
// repo -- the service definition lives with the server; GRPCTransport is
// the client-side seam that a generated stub would otherwise fill.
const (
	methodAuthenticate = "/nanoagent.Agent/Authenticate"
	methodStream        = "/nanoagent.Agent/Stream"
)

// GRPCTransport is the production Transport: it drives the connect/
// authenticate/stream cycle over a real dialed *grpc.ClientConn using
// generic (codegen-free) unary and bidirectional-streaming calls.
type GRPCTransport struct {
	conn *grpc.ClientConn
}

// NewGRPCTransport wraps a ClientConn produced by Dial.
func NewGRPCTransport(conn *grpc.ClientConn) *GRPCTransport {
	return &GRPCTransport{conn: conn}
}

func (t *GRPCTransport) Authenticate(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := t.conn.Invoke(ctx, methodAuthenticate, &req, &resp, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return AuthResponse{}, fmt.Errorf("authenticate rpc: %w", err)
	}
	return resp, nil
}

func (t *GRPCTransport) OpenStream(ctx context.Context) (Stream, error) {
	desc := &grpc.StreamDesc{StreamName: "Stream", ServerStreams: true, ClientStreams: true}
	cs, err := t.conn.NewStream(ctx, desc, methodStream, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, fmt.Errorf("open stream rpc: %w", err)
	}
	return &grpcStream{cs: cs}, nil
}

func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

// grpcStream adapts grpc.ClientStream's generic SendMsg/RecvMsg to the
// wire.Stream interface's typed OutboundFrame/InboundFrame shapes.
type grpcStream struct {
	cs grpc.ClientStream
}

func (s *grpcStream) Send(ctx context.Context, frame OutboundFrame) error {
	return s.cs.SendMsg(&frame)
}

func (s *grpcStream) Recv(ctx context.Context) (InboundFrame, error) {
	var frame InboundFrame
	if err := s.cs.RecvMsg(&frame); err != nil {
		return InboundFrame{}, err
	}
	return frame, nil
}

func (s *grpcStream) Close() error {
	return s.cs.CloseSend()
}
