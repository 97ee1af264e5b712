// Package barrack defines the Barrack collaborator contract: identity,
// key, and group-membership resolution. The real implementation (meta
// and profile verification, the address-name service) lives outside
// this repository; the core only depends on this interface.
package barrack

import "github.com/dimchat/station/internal/id"

// User is the minimal view of a resolved user identity the core needs.
type User struct {
	ID        id.ID
	PublicKey []byte
}

// Group is the minimal view of a resolved group the core needs.
type Group struct {
	ID      id.ID
	Members []id.ID
}

// Barrack resolves identities, public keys, and group membership, and
// verifies signatures against a sender's public key. It never exposes
// ciphertext content; the core only ever calls it with canonicalized
// envelope bytes and a detached signature.
type Barrack interface {
	// Resolve returns the User for ident, or ok=false if unknown.
	Resolve(ident id.ID) (user User, ok bool)

	// ResolveGroup returns the Group for ident, or ok=false if unknown.
	ResolveGroup(ident id.ID) (group Group, ok bool)

	// Verify checks sig against message using sender's public key.
	// Returns (false, nil) for a cryptographically invalid signature,
	// and a non-nil error only for resolution failures (unknown sender).
	Verify(sender id.ID, message, sig []byte) (bool, error)
}
