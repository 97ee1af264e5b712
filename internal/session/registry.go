package session

import (
	"sync"
	"time"

	"github.com/dimchat/station/internal/id"
)

// entry pairs a live Handler with the set of Sessions naming its
// address, one half of the registry's two kept-consistent mappings.
type entry struct {
	handler  Handler
	sessions map[*Session]struct{}
}

// Registry maps ClientAddress↔Handler and Identity↔Set<Session>, kept
// consistent under one mutex. Handler I/O never happens under this
// mutex.
type Registry struct {
	mu     sync.Mutex
	byAddr map[id.ClientAddress]*entry
	byID   map[string]map[*Session]struct{}
	now    func() time.Time
}

// NewRegistry returns an empty Registry. now defaults to time.Now if nil,
// overridable for deterministic tests.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		byAddr: make(map[id.ClientAddress]*entry),
		byID:   make(map[string]map[*Session]struct{}),
		now:    now,
	}
}

// BindHandler registers h as the live handler for addr. Called on connect.
func (r *Registry) BindHandler(addr id.ClientAddress, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAddr[addr] = &entry{handler: h, sessions: make(map[*Session]struct{})}
}

// NewSession creates a FRESH session for (identity, addr) and indexes it
// under identity immediately. If a RUNNING session already exists for
// this exact tuple, that existing session is returned
// instead of allocating a new one (idempotent re-handshake on the same
// socket, e.g. after a duplicate handshake envelope).
func (r *Registry) NewSession(identity id.ID, addr id.ClientAddress) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identity.String()
	if set, ok := r.byID[key]; ok {
		for existing := range set {
			if existing.state == StateRunning && existing.ClientAddress == addr {
				return existing
			}
		}
	}

	s := newFresh(addr, r.now())
	s.Identity = identity
	if r.byID[key] == nil {
		r.byID[key] = make(map[*Session]struct{})
	}
	r.byID[key][s] = struct{}{}
	if e, ok := r.byAddr[addr]; ok {
		e.sessions[s] = struct{}{}
	}
	return s
}

// Promote allocates a session key and transitions FRESH→CHALLENGED,
// returning the key to send back to the client.
func (r *Registry) Promote(s *Session) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.challenge()
}

// Activate transitions CHALLENGED→RUNNING, enforcing the single-session
// invariant: any other RUNNING session for the same (identity, addr)
// tuple is closed and unindexed first.
func (r *Registry) Activate(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := s.Identity.String()
	if set, ok := r.byID[key]; ok {
		for existing := range set {
			if existing != s && existing.state == StateRunning && existing.ClientAddress == s.ClientAddress {
				existing.close()
				delete(set, existing)
			}
		}
	}
	s.activate()
	s.Touch(r.now())
}

// HandlerFor returns the Handler bound to the most recently activated
// (or, after activation, most recently touched) RUNNING session for
// identity, or nil if none is online.
func (r *Registry) HandlerFor(identity id.ID) Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byID[identity.String()]
	if !ok {
		return nil
	}
	var best *Session
	for s := range set {
		if s.state != StateRunning {
			continue
		}
		if best == nil || s.LastSeen().After(best.LastSeen()) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	e, ok := r.byAddr[best.ClientAddress]
	if !ok {
		return nil
	}
	return e.handler
}

// Touch records s as the most recently active RUNNING session for its
// identity, so HandlerFor's tie-break reflects real traffic instead of
// activation order alone.
func (r *Registry) Touch(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Touch(r.now())
}

// RemoveByAddr removes the Handler for addr and transitions all sessions
// naming it to CLOSED, removing them from byID.
func (r *Registry) RemoveByAddr(addr id.ClientAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byAddr[addr]
	if !ok {
		return
	}
	delete(r.byAddr, addr)

	for s := range e.sessions {
		s.close()
		if s.Identity.IsZero() {
			continue
		}
		key := s.Identity.String()
		if set, ok := r.byID[key]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(r.byID, key)
			}
		}
	}
}

// Len returns the number of distinct live handlers, for metrics gauges.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAddr)
}

// Snapshot returns the set of identities currently online, for
// diagnostics and tests.
func (r *Registry) Snapshot() []id.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]id.ID, 0, len(r.byID))
	for _, set := range r.byID {
		for s := range set {
			if s.state == StateRunning {
				out = append(out, s.Identity)
				break
			}
		}
	}
	return out
}
