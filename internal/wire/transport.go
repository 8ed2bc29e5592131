package wire

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Dial timeouts and keepalive parameters.
const (
	ConnectTimeout = 10 * time.Second
	RequestTimeout = 30 * time.Second
	TCPKeepalive   = 30 * time.Second
)

// Stream is the bidirectional channel ConnectionSupervisor drives: one
// cooperative task sends (metrics, heartbeats, command results), another
// receives (commands, heartbeat acks, config updates). A concrete Stream is
// produced by dialing a Transport and invoking its streaming RPC; Stream
// is the seam a generated protobuf client would otherwise satisfy.
type Stream interface {
	Send(ctx context.Context, frame OutboundFrame) error
	Recv(ctx context.Context) (InboundFrame, error)
	Close() error
}

// Transport authenticates and opens a Stream against one endpoint.
type Transport interface {
	Authenticate(ctx context.Context, req AuthRequest) (AuthResponse, error)
	OpenStream(ctx context.Context) (Stream, error)
	Close() error
}

// DialOptions builds the grpc.DialOption set ConnectionSupervisor uses to
// reach an endpoint: TLS iff tlsEnabled (with certificate verification
// skippable only via tlsVerify=false, for self-signed lab deployments) and
// keepalive per the constants above; Dial adds the connect timeout.
// This wires google.golang.org/grpc's dial/credentials/keepalive surface
// without depending on generated protobuf service stubs.
func DialOptions(tlsEnabled, tlsVerify bool) []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                TCPKeepalive,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if tlsEnabled {
		tlsConfig := &tls.Config{InsecureSkipVerify: !tlsVerify}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return opts
}

// Dial opens a grpc.ClientConn to host:port with ConnectTimeout bounding the
// attempt. Callers wrap the returned conn with NewGRPCTransport to satisfy
// Transport.
func Dial(ctx context.Context, host string, port int, tlsEnabled, tlsVerify bool) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	target := fmt.Sprintf("%s:%d", host, port)
	opts := append(DialOptions(tlsEnabled, tlsVerify), grpc.WithBlock())
	return grpc.DialContext(dialCtx, target, opts...)
}
