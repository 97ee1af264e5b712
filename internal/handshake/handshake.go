// Package handshake drives the per-session handshake state machine:
// FRESH → CHALLENGED → RUNNING → CLOSED, exchanging a server-issued
// session key with the client before any other content envelope is
// accepted.
package handshake

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/dimchat/station/internal/envelope"
	"github.com/dimchat/station/internal/id"
	"github.com/dimchat/station/internal/session"
)

// ErrNotAuthenticated is returned when a non-handshake envelope arrives
// before the session reaches RUNNING.
var ErrNotAuthenticated = errors.New("handshake: not authenticated")

// commandBody is the minimal shape of a handshake content envelope.
// Real station commands carry more fields (type, sn, ...); only the
// ones the handshake reads/writes are modeled here.
type commandBody struct {
	Command    string `json:"command"`
	SessionKey string `json:"session,omitempty"`
}

// Machine drives one session's handshake.
type Machine struct {
	registry *session.Registry
	onOnline func(identity id.ID) // enqueues onto the GuestQueue
}

// NewMachine returns a Machine bound to registry. onOnline is called
// exactly once per RUNNING transition, with the newly-online identity;
// station.New passes the receptionist's GuestQueue.Push here.
func NewMachine(registry *session.Registry, onOnline func(id.ID)) *Machine {
	return &Machine{registry: registry, onOnline: onOnline}
}

// Step processes one envelope against s. Returns the response bytes to
// write back to the client (possibly nil, meaning no reply), or an
// error. Only handshake-command envelopes are accepted before RUNNING;
// anything else pre-RUNNING is dropped with ErrNotAuthenticated
// (callers must not reply on this error).
func (m *Machine) Step(s *session.Session, env envelope.Envelope) ([]byte, error) {
	var body commandBody
	isHandshake := json.Unmarshal(env.Ciphertext, &body) == nil && body.Command == "handshake"

	switch s.State() {
	case session.StateRunning:
		// Idempotent: any handshake envelope while RUNNING just gets a
		// success reply again; non-handshake envelopes are not this
		// machine's concern (the caller routes them to the dispatcher).
		if !isHandshake {
			return nil, nil
		}
		return m.reply(env, "handshake_success", nil)

	case session.StateFresh:
		if !isHandshake {
			return nil, ErrNotAuthenticated
		}
		key, err := m.registry.Promote(s)
		if err != nil {
			return nil, err
		}
		return m.reply(env, "handshake_again", key)

	case session.StateChallenged:
		if !isHandshake {
			return nil, ErrNotAuthenticated
		}
		candidate, err := base64.StdEncoding.DecodeString(body.SessionKey)
		if err != nil || !s.KeyMatches(candidate) {
			// Wrong key: stay CHALLENGED, re-issue the same key with no
			// rotation, to prevent replay confusion.
			return m.reply(env, "handshake_again", s.ChallengeKeyForRetry())
		}
		m.registry.Activate(s)
		if m.onOnline != nil {
			m.onOnline(s.Identity)
		}
		return m.reply(env, "handshake_success", nil)

	default: // StateClosed
		return nil, ErrNotAuthenticated
	}
}

// reply builds the wire bytes for a station-originated handshake
// response envelope, addressed back to env.Sender.
func (m *Machine) reply(env envelope.Envelope, command string, key []byte) ([]byte, error) {
	body := commandBody{Command: command}
	if key != nil {
		body.SessionKey = base64.StdEncoding.EncodeToString(key)
	}
	ciphertext, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp := envelope.Envelope{
		Sender:     env.Receiver, // the station replies as itself
		Receiver:   env.Sender,
		Time:       env.Time,
		Ciphertext: ciphertext,
	}
	return envelope.Encode(resp)
}
