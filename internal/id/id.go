// Package id implements the DIM identifier triple: name, address, and an
// optional terminal tag, rendered as "name@address[/terminal]".
package id

import (
	"strconv"
	"strings"
)

// Kind tags the network role an address resolves to.
type Kind int

const (
	// KindUser is an ordinary end-user address.
	KindUser Kind = iota
	// KindStation is a relay station (this service's own kind).
	KindStation
	// KindGroupPolylogue is a persistent multi-member group.
	KindGroupPolylogue
	// KindGroupChatroom is an ephemeral multi-member chatroom.
	KindGroupChatroom
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "USER"
	case KindStation:
		return "STATION"
	case KindGroupPolylogue:
		return "GROUP_POLYLOGUE"
	case KindGroupChatroom:
		return "GROUP_CHATROOM"
	default:
		return "UNKNOWN"
	}
}

// IsGroup reports whether the kind addresses multiple members.
func (k Kind) IsGroup() bool {
	return k == KindGroupPolylogue || k == KindGroupChatroom
}

// ID is an immutable, value-typed identifier. Equality is by string form.
type ID struct {
	name     string
	address  string
	terminal string
	kind     Kind
}

// Reserved identifiers.
var (
	Anyone   = New("ANYONE", "ANYWHERE", "", KindUser)
	Everyone = New("EVERYONE", "EVERYWHERE", "", KindGroupChatroom)
)

// New constructs an ID from its parts. No validation is performed beyond
// what String()/Parse() round-trip; callers own canonicalization.
func New(name, address, terminal string, kind Kind) ID {
	return ID{name: name, address: address, terminal: terminal, kind: kind}
}

// Parse reads "name@address" or "name@address/terminal" into an ID.
// The kind defaults to KindUser; callers that know the resolved kind
// (e.g. via Barrack) should override it with WithKind.
func Parse(s string) (ID, bool) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return ID{}, false
	}
	name := s[:at]
	rest := s[at+1:]
	address := rest
	terminal := ""
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		address = rest[:slash]
		terminal = rest[slash+1:]
	}
	if name == "" || address == "" {
		return ID{}, false
	}
	return ID{name: name, address: address, terminal: terminal}, true
}

// WithKind returns a copy of the ID tagged with kind.
func (i ID) WithKind(kind Kind) ID {
	i.kind = kind
	return i
}

// Name returns the name part.
func (i ID) Name() string { return i.name }

// Address returns the address part.
func (i ID) Address() string { return i.address }

// Terminal returns the terminal tag, or "" if absent.
func (i ID) Terminal() string { return i.terminal }

// Kind returns the address kind.
func (i ID) Kind() Kind { return i.kind }

// IsGroup reports whether this ID names a group.
func (i ID) IsGroup() bool { return i.kind.IsGroup() }

// IsStation reports whether this ID names a station.
func (i ID) IsStation() bool { return i.kind == KindStation }

// IsUser reports whether this ID names an ordinary user.
func (i ID) IsUser() bool { return i.kind == KindUser }

// IsReserved reports whether i is ANYONE@ANYWHERE or EVERYONE@EVERYWHERE.
// EVERYWHERE-addressed groups have no distinct ownership from
// ANYONE@ANYWHERE; both collapse to "reserved".
func (i ID) IsReserved() bool {
	return i.address == "ANYWHERE" || i.address == "EVERYWHERE"
}

// IsZero reports whether i is the zero value (absent).
func (i ID) IsZero() bool { return i.name == "" && i.address == "" }

// String renders the canonical "name@address[/terminal]" form.
func (i ID) String() string {
	if i.terminal == "" {
		return i.name + "@" + i.address
	}
	return i.name + "@" + i.address + "/" + i.terminal
}

// Equal reports string-form equality, the value-type contract for
// identity comparison.
func (i ID) Equal(o ID) bool { return i.String() == o.String() }

// ClientAddress is a (ip, port) pair identifying one live TCP socket.
type ClientAddress struct {
	IP   string
	Port int
}

// String renders "ip:port".
func (a ClientAddress) String() string {
	return a.IP + ":" + strconv.Itoa(a.Port)
}
