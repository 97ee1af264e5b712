package handshake

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/dimchat/station/internal/envelope"
	"github.com/dimchat/station/internal/id"
	"github.com/dimchat/station/internal/session"
)

func mustID(t *testing.T, s string) id.ID {
	t.Helper()
	got, ok := id.Parse(s)
	if !ok {
		t.Fatalf("parse %q", s)
	}
	return got
}

func handshakeEnvelope(t *testing.T, sender, receiver id.ID, sessionKey string) envelope.Envelope {
	t.Helper()
	body, err := json.Marshal(struct {
		Command    string `json:"command"`
		SessionKey string `json:"session,omitempty"`
	}{Command: "handshake", SessionKey: sessionKey})
	if err != nil {
		t.Fatal(err)
	}
	return envelope.Envelope{Sender: sender, Receiver: receiver, Ciphertext: body}
}

type reply struct {
	Command    string `json:"command"`
	SessionKey string `json:"session,omitempty"`
}

func decodeReply(t *testing.T, raw []byte) reply {
	t.Helper()
	var w struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		t.Fatal(err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		t.Fatal(err)
	}
	var r reply
	if err := json.Unmarshal(ciphertext, &r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestFullHandshakeS1(t *testing.T) {
	reg := session.NewRegistry(nil)
	alice := mustID(t, "alice@dim.chat")
	station := mustID(t, "station@dim.chat")
	addr := id.ClientAddress{IP: "1.1.1.1", Port: 1}
	reg.BindHandler(addr, noopHandler{addr})
	s := reg.NewSession(alice, addr)

	var onlined []id.ID
	m := NewMachine(reg, func(i id.ID) { onlined = append(onlined, i) })

	// First handshake, no key.
	out, err := m.Step(s, handshakeEnvelope(t, alice, station, ""))
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	r1 := decodeReply(t, out)
	if r1.Command != "handshake_again" || r1.SessionKey == "" {
		t.Fatalf("expected handshake_again with key, got %+v", r1)
	}
	if s.State() != session.StateChallenged {
		t.Fatalf("expected CHALLENGED, got %s", s.State())
	}

	// Echo the key back.
	out, err = m.Step(s, handshakeEnvelope(t, alice, station, r1.SessionKey))
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	r2 := decodeReply(t, out)
	if r2.Command != "handshake_success" {
		t.Fatalf("expected handshake_success, got %+v", r2)
	}
	if s.State() != session.StateRunning {
		t.Fatalf("expected RUNNING, got %s", s.State())
	}
	if len(onlined) != 1 || !onlined[0].Equal(alice) {
		t.Fatalf("expected GuestQueue enqueue of alice, got %+v", onlined)
	}
}

func TestWrongKeyStaysChallenged(t *testing.T) {
	reg := session.NewRegistry(nil)
	alice := mustID(t, "alice@dim.chat")
	station := mustID(t, "station@dim.chat")
	addr := id.ClientAddress{IP: "1.1.1.2", Port: 1}
	reg.BindHandler(addr, noopHandler{addr})
	s := reg.NewSession(alice, addr)
	m := NewMachine(reg, nil)

	out, _ := m.Step(s, handshakeEnvelope(t, alice, station, ""))
	r1 := decodeReply(t, out)

	out, err := m.Step(s, handshakeEnvelope(t, alice, station, base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))))
	if err != nil {
		t.Fatal(err)
	}
	r2 := decodeReply(t, out)
	if r2.Command != "handshake_again" || r2.SessionKey != r1.SessionKey {
		t.Fatalf("expected same key re-sent, got %+v vs original %q", r2, r1.SessionKey)
	}
	if s.State() != session.StateChallenged {
		t.Fatal("expected to remain CHALLENGED")
	}
}

func TestNonHandshakeBeforeRunningDropped(t *testing.T) {
	reg := session.NewRegistry(nil)
	alice := mustID(t, "alice@dim.chat")
	station := mustID(t, "station@dim.chat")
	addr := id.ClientAddress{IP: "1.1.1.3", Port: 1}
	reg.BindHandler(addr, noopHandler{addr})
	s := reg.NewSession(alice, addr)
	m := NewMachine(reg, nil)

	env := envelope.Envelope{Sender: alice, Receiver: station, Ciphertext: []byte(`{"command":"text"}`)}
	out, err := m.Step(s, env)
	if err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if out != nil {
		t.Fatal("expected no reply bytes")
	}
}

func TestRunningIsIdempotent(t *testing.T) {
	reg := session.NewRegistry(nil)
	alice := mustID(t, "alice@dim.chat")
	station := mustID(t, "station@dim.chat")
	addr := id.ClientAddress{IP: "1.1.1.4", Port: 1}
	reg.BindHandler(addr, noopHandler{addr})
	s := reg.NewSession(alice, addr)
	m := NewMachine(reg, nil)

	out, _ := m.Step(s, handshakeEnvelope(t, alice, station, ""))
	r1 := decodeReply(t, out)
	out, _ = m.Step(s, handshakeEnvelope(t, alice, station, r1.SessionKey))
	decodeReply(t, out)

	out, err := m.Step(s, handshakeEnvelope(t, alice, station, "anything"))
	if err != nil {
		t.Fatal(err)
	}
	r3 := decodeReply(t, out)
	if r3.Command != "handshake_success" {
		t.Fatalf("expected idempotent handshake_success, got %+v", r3)
	}
}

type noopHandler struct{ addr id.ClientAddress }

func (n noopHandler) Push(msg []byte) error     { return nil }
func (n noopHandler) Address() id.ClientAddress { return n.addr }
