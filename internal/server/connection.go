package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionConfig configures a single accepted Connection.
type ConnectionConfig struct {
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	LogTransaction   bool
	Logger           *slog.Logger
}

// Connection wraps one accepted net.Conn with the idle/handshake deadline
// bookkeeping the station's per-connection loop needs. It exposes the
// raw net.Conn directly rather than a bufio line reader: DIM's
// transports are framed by internal/framer, and WebSocket and mars-TLV
// aren't line-oriented.
type Connection struct {
	conn   net.Conn
	cfg    ConnectionConfig
	closed atomic.Bool
	mu     sync.Mutex
}

// NewConnection wraps conn with cfg's deadlines.
func NewConnection(conn net.Conn, cfg ConnectionConfig) *Connection {
	return &Connection{conn: conn, cfg: cfg}
}

// Read implements io.Reader, satisfying framer.Conn.
func (c *Connection) Read(p []byte) (int, error) { return c.conn.Read(p) }

// Write implements io.Writer, satisfying framer.Conn.
func (c *Connection) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(p)
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// IsTLS reports whether the underlying connection is a TLS connection.
func (c *Connection) IsTLS() bool {
	_, ok := c.conn.(*tls.Conn)
	return ok
}

// SetHandshakeDeadline bounds the time allowed for the session
// handshake state machine to complete.
func (c *Connection) SetHandshakeDeadline() error {
	if c.cfg.HandshakeTimeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
}

// ResetIdleDeadline extends the deadline after a successful read or
// heartbeat keep-alive.
func (c *Connection) ResetIdleDeadline() error {
	if c.cfg.IdleTimeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.cfg.IdleTimeout))
}

// IsClosed reports whether Close has been called on this connection.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Close closes the underlying connection. Safe to call more than once.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// ConnectionHandler processes one accepted connection. Implementations
// run the protocol auto-detection, handshake and dispatch loop; the
// listener's job ends once it hands the connection off.
type ConnectionHandler func(ctx context.Context, conn *Connection)
