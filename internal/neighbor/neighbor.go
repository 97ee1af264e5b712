// Package neighbor implements the gRPC-backed send-to-neighbor hook:
// peer-station delivery is a single send-to-neighbor call. No
// station-to-station .proto schema ships with this repository, so the
// client speaks a minimal, hand-declared method using the protobuf
// runtime's well-known wrapper types — real wire protobuf, no
// hand-written codegen stubs.
package neighbor

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dimchat/station/internal/envelope"
)

// forwardMethod is the fully-qualified gRPC method this client invokes
// on the neighboring station. Its counterpart service is out of scope
// for this repository (another station's core); the method name is
// this hook's half of that contract.
const forwardMethod = "/dim.station.Neighbor/Forward"

// ErrUnconfigured is returned by Forward when no neighbor address was
// configured, so dispatch can fail closed rather than block.
var ErrUnconfigured = errors.New("neighbor: no peer station configured")

// Forwarder is a gRPC client bound to one neighboring station. It
// satisfies dispatcher.NeighborForwarder.
type Forwarder struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial opens a gRPC client connection to addr. The connection is
// lazy (grpc.NewClient does not block on the initial handshake), so
// Dial returning successfully does not mean the peer is reachable —
// that surfaces on the first Forward call, bounded by timeout.
func Dial(addr string, timeout time.Duration) (*Forwarder, error) {
	if addr == "" {
		return &Forwarder{timeout: timeout}, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Forwarder{conn: conn, timeout: timeout}, nil
}

// Close releases the underlying gRPC connection.
func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

// Forward sends env's raw bytes to the neighboring station. The call
// is bounded by f.timeout so a dispatch never blocks indefinitely on
// an unreachable neighbor.
func (f *Forwarder) Forward(ctx context.Context, env envelope.Envelope) error {
	if f.conn == nil {
		return ErrUnconfigured
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req := wrapperspb.Bytes(env.Raw())
	resp := new(emptypb.Empty)
	return f.conn.Invoke(ctx, forwardMethod, req, resp)
}
