package station

import (
	"net"
	"strconv"
	"sync"

	"github.com/dimchat/station/internal/framer"
	"github.com/dimchat/station/internal/id"
)

// connHandler adapts a Framer to session.Handler: the registry only
// ever pushes bytes through it and asks for its address. Push calls are
// serialized so a mailbox drain and a concurrent reply never interleave
// their frames on the wire.
type connHandler struct {
	mu     sync.Mutex
	framer *framer.Framer
	addr   id.ClientAddress
}

func newConnHandler(f *framer.Framer, addr id.ClientAddress) *connHandler {
	return &connHandler{framer: f, addr: addr}
}

// Push implements session.Handler.
func (h *connHandler) Push(msg []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.framer.Push(msg)
}

// Address implements session.Handler.
func (h *connHandler) Address() id.ClientAddress { return h.addr }

// clientAddress renders a net.Addr as the (ip, port) pair the session
// registry keys on. Non-TCP addresses (unexpected for this server) fall
// back to port 0.
func clientAddress(addr net.Addr) id.ClientAddress {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return id.ClientAddress{IP: addr.String()}
	}
	port, _ := strconv.Atoi(portStr)
	return id.ClientAddress{IP: host, Port: port}
}
