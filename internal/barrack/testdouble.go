package barrack

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/dimchat/station/internal/id"
)

// MemoryBarrack is an in-memory, ed25519-keyed Barrack used by tests to
// stand in for the out-of-scope identity resolver. Not for production
// use: it holds no meta/profile verification, no persistence.
type MemoryBarrack struct {
	mu     sync.RWMutex
	users  map[string]User
	groups map[string]Group
}

// NewMemoryBarrack returns an empty MemoryBarrack.
func NewMemoryBarrack() *MemoryBarrack {
	return &MemoryBarrack{
		users:  make(map[string]User),
		groups: make(map[string]Group),
	}
}

// Register adds a user with an ed25519 public key to the barrack.
func (m *MemoryBarrack) Register(user id.ID, pub ed25519.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.String()] = User{ID: user, PublicKey: append([]byte(nil), pub...)}
}

// RegisterGroup adds a group with its member list.
func (m *MemoryBarrack) RegisterGroup(group id.ID, members []id.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.String()] = Group{ID: group, Members: append([]id.ID(nil), members...)}
}

// Resolve implements Barrack.
func (m *MemoryBarrack) Resolve(ident id.ID) (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[ident.String()]
	return u, ok
}

// ResolveGroup implements Barrack.
func (m *MemoryBarrack) ResolveGroup(ident id.ID) (Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[ident.String()]
	return g, ok
}

// Verify implements Barrack using ed25519.Verify against the registered
// public key.
func (m *MemoryBarrack) Verify(sender id.ID, message, sig []byte) (bool, error) {
	u, ok := m.Resolve(sender)
	if !ok {
		return false, fmt.Errorf("barrack: unknown sender %s", sender)
	}
	if len(u.PublicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("barrack: sender %s has no ed25519 key", sender)
	}
	return ed25519.Verify(ed25519.PublicKey(u.PublicKey), message, sig), nil
}
