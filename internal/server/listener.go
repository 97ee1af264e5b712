package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"
)

// ListenerConfig configures one bound address the Server accepts
// connections on.
type ListenerConfig struct {
	Address          string
	TLSConfig        *tls.Config // non-nil terminates TLS at accept time.
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	LogTransaction   bool
	Logger           *slog.Logger
	Handler          ConnectionHandler
	Limiter          *ConnectionLimiter
}

// Listener accepts connections on one address and hands each off to its
// configured ConnectionHandler in its own goroutine.
type Listener struct {
	cfg ListenerConfig
	ln  net.Listener
}

// NewListener returns a Listener bound to cfg.Address. It does not
// start accepting until Start is called.
func NewListener(cfg ListenerConfig) *Listener {
	return &Listener{cfg: cfg}
}

// Address returns the configured bind address.
func (l *Listener) Address() string { return l.cfg.Address }

// Start binds the listener and accepts connections until ctx is
// canceled or Close is called.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return err
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logger := l.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return context.Canceled
			default:
			}
			return err
		}

		if l.cfg.TLSConfig != nil {
			conn = tls.Server(conn, l.cfg.TLSConfig)
		}

		if l.cfg.Limiter != nil && !l.cfg.Limiter.TryAcquire() {
			logger.Warn("connection limit reached, rejecting", "remote", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		c := NewConnection(conn, ConnectionConfig{
			IdleTimeout:      l.cfg.IdleTimeout,
			HandshakeTimeout: l.cfg.HandshakeTimeout,
			LogTransaction:   l.cfg.LogTransaction,
			Logger:           logger,
		})

		go func() {
			defer func() {
				_ = c.Close()
				if l.cfg.Limiter != nil {
					l.cfg.Limiter.Release()
				}
			}()
			l.cfg.Handler(ctx, c)
		}()
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
