// Package dispatcher implements the routing algorithm: station
// commands, online push, offline mailbox fallback, group expansion,
// neighbor forwarding, and rejection — plus the anti-replay window and
// receipt synthesis that frame every delivery attempt.
package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dimchat/station/internal/barrack"
	"github.com/dimchat/station/internal/envelope"
	"github.com/dimchat/station/internal/id"
	"github.com/dimchat/station/internal/mailbox"
	"github.com/dimchat/station/internal/session"
)

// ReplayWindow is the maximum age an envelope may have before the
// Dispatcher silently drops it.
const ReplayWindow = 600 * time.Second

// NeighborForwarder is an interface-contract-only hook: peer-station
// delivery is a single send-to-neighbor call. internal/neighbor
// provides the gRPC-backed implementation; the dispatcher only depends
// on this interface to avoid importing a transport concern into the
// routing algorithm.
type NeighborForwarder interface {
	Forward(ctx context.Context, env envelope.Envelope) error
}

// Registry is the subset of session.Registry the Dispatcher needs.
type Registry interface {
	HandlerFor(identity id.ID) session.Handler
}

// Dispatcher routes one RUNNING session's envelopes. A single
// Dispatcher is shared by every connection; its own state
// (the registries and stores it wraps) is already safe for concurrent
// use, so Dispatch itself holds no lock across the whole call.
type Dispatcher struct {
	Station  id.ID
	Neighbor id.ID // the one peer station this hook knows about, if any.

	Registry Registry
	Mailbox  *mailbox.Store
	Barrack  barrack.Barrack
	Forward  NeighborForwarder // nil disables step 4; falls through to reject.

	commands commandTable

	Now func() time.Time
}

// New returns a Dispatcher with its own built-in meta/profile station
// command table, built against b and never shared with any other
// Dispatcher instance.
func New(station id.ID, neighbor id.ID, registry Registry, store *mailbox.Store, b barrack.Barrack, forwarder NeighborForwarder) *Dispatcher {
	return &Dispatcher{
		Station:  station,
		Neighbor: neighbor,
		Registry: registry,
		Mailbox:  store,
		Barrack:  b,
		Forward:  forwarder,
		commands: builtinCommands(b),
		Now:      time.Now,
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch processes one envelope from a RUNNING session. It returns
// the reply bytes to write back to the sender (possibly nil, meaning no
// reply), or an error for conditions the caller should log and continue
// past as part of ordinary failure containment. A replay-window drop is
// reported as (nil, nil): no reply, no error, connection stays open.
func (d *Dispatcher) Dispatch(ctx context.Context, env envelope.Envelope) ([]byte, error) {
	if d.isReplay(env) {
		return nil, nil
	}

	if env.Receiver.Equal(d.Station) {
		if reply, handled, err := d.dispatchStationCommand(ctx, env); handled {
			return reply, err
		}
	}

	// A wire-decoded receiver always carries id.KindUser (id.Parse has no
	// way to know better), so whether env.Receiver addresses a group can
	// only be answered by asking Barrack, not by reading env.Receiver.Kind().
	if group, ok := d.Barrack.ResolveGroup(env.Receiver); ok {
		return d.dispatchGroup(ctx, env, group)
	}

	switch {
	case env.Receiver.Equal(d.Neighbor) && !d.Neighbor.IsZero():
		return d.dispatchNeighbor(ctx, env)
	case env.Receiver.IsUser():
		return d.dispatchUser(ctx, env, env.Receiver)
	default:
		return newReceipt(d.Station, env, statusRejected)
	}
}

// isReplay enforces the 600-second anti-replay window.
func (d *Dispatcher) isReplay(env envelope.Envelope) bool {
	sent := time.Unix(int64(env.Time), 0)
	return d.now().Sub(sent) > ReplayWindow
}

// dispatchStationCommand answers envelopes addressed to the station
// itself. handled=false means the envelope's content was not a
// recognized station command, so the caller should fall through to
// ordinary routing.
func (d *Dispatcher) dispatchStationCommand(ctx context.Context, env envelope.Envelope) (reply []byte, handled bool, err error) {
	var body map[string]any
	if json.Unmarshal(env.Ciphertext, &body) != nil {
		return nil, false, nil
	}
	kind, _ := body["command"].(string)
	proc, ok := d.commands.get(kind)
	if !ok {
		return nil, false, nil
	}
	result, err := proc.Execute(ctx, env, body)
	if err != nil {
		return nil, true, err
	}
	ciphertext, err := json.Marshal(result)
	if err != nil {
		return nil, true, err
	}
	resp := envelope.Envelope{
		Sender:   env.Receiver,
		Receiver: env.Sender,
		Time:     env.Time,
	}
	resp.Ciphertext = ciphertext
	out, err := envelope.Encode(resp)
	return out, true, err
}

// dispatchUser pushes to a live handler, falling back to the mailbox,
// then synthesizes the delivering receipt. A mailbox IO error keeps the
// session open and reports back with a failed receipt rather than an
// error the caller would otherwise drop silently.
func (d *Dispatcher) dispatchUser(_ context.Context, env envelope.Envelope, target id.ID) ([]byte, error) {
	if err := d.deliverToUser(env, target); err != nil {
		return newReceipt(d.Station, env, statusFailed)
	}
	return newReceipt(d.Station, env, statusDelivering)
}

// deliverToUser pushes through the live handler if one is bound, else
// appends to the recipient's mailbox.
func (d *Dispatcher) deliverToUser(env envelope.Envelope, target id.ID) error {
	if h := d.Registry.HandlerFor(target); h != nil {
		if err := h.Push(env.Raw()); err == nil {
			return nil
		}
		// Push failed; fall back to durable storage rather than lose
		// the message.
	}
	return d.Mailbox.Append(target, env.Raw())
}

// dispatchGroup delivers to each member of group but the sender, and
// returns one aggregate receipt. A mailbox IO error for any member
// reports back failed rather than dropping the reply entirely.
func (d *Dispatcher) dispatchGroup(_ context.Context, env envelope.Envelope, group barrack.Group) ([]byte, error) {
	failed := false
	for _, member := range group.Members {
		if member.Equal(env.Sender) {
			continue
		}
		if err := d.deliverToUser(env, member); err != nil {
			failed = true
		}
	}
	if failed {
		return newReceipt(d.Station, env, statusFailed)
	}
	return newReceipt(d.Station, env, statusDelivering)
}

// dispatchNeighbor forwards the envelope to the configured peer station.
func (d *Dispatcher) dispatchNeighbor(ctx context.Context, env envelope.Envelope) ([]byte, error) {
	if d.Forward == nil {
		return newReceipt(d.Station, env, statusRejected)
	}
	if err := d.Forward.Forward(ctx, env); err != nil {
		return newReceipt(d.Station, env, statusRejected)
	}
	return newReceipt(d.Station, env, statusDelivering)
}
