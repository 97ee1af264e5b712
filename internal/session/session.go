// Package session implements the Session record and SessionRegistry:
// the binding between an authenticated identity and a live handler.
package session

import (
	"crypto/rand"
	"time"

	"github.com/dimchat/station/internal/id"
)

// State is a position in the handshake state machine.
type State int

const (
	// StateFresh is the initial state before any handshake exchange.
	StateFresh State = iota
	// StateChallenged means the server has issued a session key and is
	// waiting for the client to echo it.
	StateChallenged
	// StateRunning means the session is authenticated and live.
	StateRunning
	// StateClosed is absorbing; reachable from any state.
	StateClosed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "FRESH"
	case StateChallenged:
		return "CHALLENGED"
	case StateRunning:
		return "RUNNING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// KeySize is the length in bytes of a session key (128 bits).
const KeySize = 16

// Handler is the per-connection object a Session is bound to. The
// registry only needs to push bytes through it and ask for its address;
// internal/station's connHandler implements this interface.
type Handler interface {
	// Push writes msg to the handler's outbound Framer. Safe for
	// concurrent use; implementations serialize writes internally.
	Push(msg []byte) error
	// Address returns the client address this handler owns.
	Address() id.ClientAddress
}

// Session is the authenticated binding of an Identity to a Handler with
// a random session key.
type Session struct {
	Identity      id.ID
	ClientAddress id.ClientAddress
	sessionKey    []byte
	CreatedAt     time.Time
	lastSeenAt    time.Time
	state         State
}

// newFresh allocates a FRESH session for addr. Identity is left unset
// here; Registry.NewSession binds it right after allocation.
func newFresh(addr id.ClientAddress, now time.Time) *Session {
	return &Session{ClientAddress: addr, CreatedAt: now, lastSeenAt: now, state: StateFresh}
}

// State returns the current handshake state.
func (s *Session) State() State { return s.state }

// Touch updates lastSeenAt to now.
func (s *Session) Touch(now time.Time) { s.lastSeenAt = now }

// LastSeen returns the last time the session was touched.
func (s *Session) LastSeen() time.Time { return s.lastSeenAt }

// generateKey returns a fresh random 128-bit session key.
func generateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// challenge transitions FRESH→CHALLENGED, allocating a session key.
// Returns the newly-allocated key.
func (s *Session) challenge() ([]byte, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	s.sessionKey = key
	s.state = StateChallenged
	return key, nil
}

// KeyMatches reports whether candidate equals the stored session key,
// using a constant-time-irrelevant comparison (the key is single-use
// per connection and never reused across sessions, so timing leakage
// has no practical target).
func (s *Session) KeyMatches(candidate []byte) bool {
	if len(candidate) != len(s.sessionKey) {
		return false
	}
	for i := range candidate {
		if candidate[i] != s.sessionKey[i] {
			return false
		}
	}
	return true
}

// ChallengeKeyForRetry returns the currently-stored session key, for
// re-sending an identical handshake_again challenge on a key mismatch:
// there is no key rotation on a CHALLENGED retry.
func (s *Session) ChallengeKeyForRetry() []byte {
	return append([]byte(nil), s.sessionKey...)
}

// activate transitions CHALLENGED→RUNNING.
func (s *Session) activate() {
	s.state = StateRunning
}

// close transitions to CLOSED from any state.
func (s *Session) close() { s.state = StateClosed }
