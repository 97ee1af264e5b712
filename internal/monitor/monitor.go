// Package monitor defines a fire-and-forget lifecycle event sink.
// Delivery is best-effort; events may be dropped under saturation.
package monitor

import (
	"log/slog"

	"github.com/dimchat/station/internal/id"
)

// Event is one of the four station lifecycle events.
type Event int

const (
	// ClientConnected fires when a new TCP connection is accepted.
	ClientConnected Event = iota
	// UserLoggedIn fires when a session reaches RUNNING.
	UserLoggedIn
	// UserLoggedOut fires on an orderly logout (not yet distinguished
	// from disconnect by the core; reserved for a future QUIT command).
	UserLoggedOut
	// ClientDisconnected fires when a socket closes for any reason.
	ClientDisconnected
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case ClientConnected:
		return "CLIENT_CONNECTED"
	case UserLoggedIn:
		return "USER_LOGGED_IN"
	case UserLoggedOut:
		return "USER_LOGGED_OUT"
	case ClientDisconnected:
		return "CLIENT_DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Monitor receives lifecycle events. Implementations must not block the
// caller meaningfully; Notify is expected to return quickly even if the
// event is ultimately dropped.
type Monitor interface {
	Notify(event Event, identity id.ID, addr id.ClientAddress)
}

// NoopMonitor discards every event.
type NoopMonitor struct{}

// Notify implements Monitor.
func (NoopMonitor) Notify(Event, id.ID, id.ClientAddress) {}

// LoggingMonitor logs every event via slog at Info level.
type LoggingMonitor struct {
	Logger *slog.Logger
}

// Notify implements Monitor.
func (m LoggingMonitor) Notify(event Event, identity id.ID, addr id.ClientAddress) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("station event",
		slog.String("event", event.String()),
		slog.String("identity", identity.String()),
		slog.String("addr", addr.String()),
	)
}
