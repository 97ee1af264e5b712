// Package station wires the core collaborators — framer, session
// registry, handshake machine, dispatcher, mailbox, receptionist,
// monitor, metrics — into one running connection handler and the
// process composition root.
package station

import (
	"context"
	"log/slog"

	"github.com/dimchat/station/internal/barrack"
	"github.com/dimchat/station/internal/dispatcher"
	"github.com/dimchat/station/internal/envelope"
	"github.com/dimchat/station/internal/framer"
	"github.com/dimchat/station/internal/handshake"
	"github.com/dimchat/station/internal/id"
	"github.com/dimchat/station/internal/logging"
	"github.com/dimchat/station/internal/metrics"
	"github.com/dimchat/station/internal/monitor"
	"github.com/dimchat/station/internal/server"
	"github.com/dimchat/station/internal/session"
)

// Dependencies groups the collaborators the per-connection handler
// needs. All fields are required except Logger (falls back to the
// context logger) and Collector/Monitor (fall back to no-ops).
type Dependencies struct {
	Registry   *session.Registry
	Machine    *handshake.Machine
	Dispatcher *dispatcher.Dispatcher
	Barrack    barrack.Barrack
	Collector  metrics.Collector
	Monitor    monitor.Monitor
	Logger     *slog.Logger
}

// Handler returns a server.ConnectionHandler that runs the full
// protocol auto-detect → handshake → dispatch loop for one connection.
func Handler(deps Dependencies) server.ConnectionHandler {
	if deps.Collector == nil {
		deps.Collector = &metrics.NoopCollector{}
	}
	if deps.Monitor == nil {
		deps.Monitor = monitor.NoopMonitor{}
	}
	return func(ctx context.Context, conn *server.Connection) {
		handleConnection(ctx, conn, deps)
	}
}

// handleConnection manages a single station connection end to end.
func handleConnection(ctx context.Context, conn *server.Connection, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	deps.Collector.ConnectionOpened()
	defer deps.Collector.ConnectionClosed()

	if conn.IsTLS() {
		deps.Collector.TLSConnectionEstablished()
	}

	addr := clientAddress(conn.RemoteAddr())
	deps.Monitor.Notify(monitor.ClientConnected, id.ID{}, addr)

	f := framer.New(conn)
	h := newConnHandler(f, addr)
	deps.Registry.BindHandler(addr, h)

	var sess *session.Session
	protocolRecorded := false
	defer func() {
		deps.Registry.RemoveByAddr(addr)
		identity := id.ID{}
		if sess != nil {
			identity = sess.Identity
		}
		deps.Monitor.Notify(monitor.ClientDisconnected, identity, addr)
	}()

	if err := conn.SetHandshakeDeadline(); err != nil {
		logger.Error("failed to set handshake deadline", "error", err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if conn.IsClosed() {
			return
		}

		ev := f.Next()

		if !protocolRecorded && f.Kind() != framer.KindUnknown {
			deps.Collector.ProtocolDetected(f.Kind().String())
			protocolRecorded = true
		}

		switch ev.Kind {
		case framer.EventEOF:
			return

		case framer.EventError:
			logger.Warn("framer error, closing connection", "error", ev.Err, "addr", addr.String())
			return

		case framer.EventHeartbeat:
			if err := conn.ResetIdleDeadline(); err != nil {
				logger.Error("failed to reset idle deadline", "error", err.Error())
				return
			}
			continue

		case framer.EventMessage:
			if err := conn.ResetIdleDeadline(); err != nil {
				logger.Error("failed to reset idle deadline", "error", err.Error())
				return
			}
			if !handleMessage(ctx, &sess, h, ev, deps, logger, addr) {
				return
			}
		}
	}
}

// handleMessage decodes and routes one envelope. It returns false when
// the connection should be closed (an I/O error writing a reply); every
// other failure is contained per the "log and continue" rule and
// reported with true.
func handleMessage(ctx context.Context, sessp **session.Session, h *connHandler, ev framer.Event, deps Dependencies, logger *slog.Logger, addr id.ClientAddress) bool {
	env, err := envelope.Decode(ev.Payload)
	if err != nil {
		logger.Warn("dropping malformed envelope", "error", err.Error(), "addr", addr.String())
		return true
	}

	sess := *sessp
	if sess == nil {
		sess = deps.Registry.NewSession(env.Sender, addr)
		*sessp = sess
	}

	if sess.State() != session.StateRunning {
		reply, err := deps.Machine.Step(sess, env)
		if err != nil {
			// NotAuthenticated (or key generation failure): drop, no reply.
			logger.Debug("handshake step rejected envelope", "error", err.Error(), "addr", addr.String())
			return true
		}
		wasRunning := sess.State() == session.StateRunning
		if reply != nil {
			if err := sendReply(ev, reply); err != nil {
				logger.Warn("failed to write handshake reply", "error", err.Error())
				return false
			}
		}
		deps.Collector.HandshakeCompleted(wasRunning)
		if wasRunning {
			deps.Monitor.Notify(monitor.UserLoggedIn, sess.Identity, addr)
		}
		return true
	}

	if err := envelope.Verify(env, deps.Barrack); err != nil {
		deps.Collector.MessageDispatched("rejected")
		logger.Debug("dropping envelope with invalid signature", "sender", env.Sender.String())
		return true
	}

	deps.Registry.Touch(sess)

	reply, err := deps.Dispatcher.Dispatch(ctx, env)
	if err != nil {
		deps.Collector.MessageDispatched("error")
		logger.Error("dispatch failed", "error", err.Error(), "sender", env.Sender.String())
		return true
	}
	deps.Collector.MessageDispatched("ok")

	if reply != nil {
		if err := sendReply(ev, reply); err != nil {
			logger.Warn("failed to write dispatch reply", "error", err.Error())
			return false
		}
	}
	return true
}

// sendReply writes reply through the event's framing-aware callback, if
// the active transport provides one.
func sendReply(ev framer.Event, reply []byte) error {
	if ev.Reply == nil {
		return nil
	}
	return ev.Reply(reply)
}
