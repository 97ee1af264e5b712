package framer

import "bytes"

// parseNDJSON consumes one line from f.buf: read bytes until \n, trim.
// An empty line is a heartbeat (reply with \n); otherwise the line is
// one envelope.
func (f *Framer) parseNDJSON() (Event, bool, error) {
	idx := bytes.IndexByte(f.buf, '\n')
	if idx < 0 {
		return Event{}, false, nil
	}
	line := bytes.TrimSpace(f.buf[:idx])
	f.buf = f.buf[idx+1:]

	if len(line) == 0 {
		if _, err := f.conn.Write([]byte("\n")); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventHeartbeat}, true, nil
	}

	payload := make([]byte, len(line))
	copy(payload, line)
	f.queue = append(f.queue, queuedMessage{
		payload: payload,
		reply: func(reply []byte) error {
			if reply == nil {
				return nil
			}
			return f.writeNDJSONLine(reply)
		},
	})
	return Event{}, true, nil
}

func (f *Framer) writeNDJSONLine(payload []byte) error {
	line := make([]byte, 0, len(payload)+1)
	line = append(append(line, payload...), '\n')
	_, err := f.conn.Write(line)
	return err
}

// Push sends payload to the peer as an unsolicited server message
// (mailbox drain, cross-handler delivery), using whichever framing the
// detected transport requires. It is the method that makes a Framer
// satisfy session.Handler once wrapped by a connection Handler.
func (f *Framer) Push(payload []byte) error {
	switch f.kind {
	case KindNDJSON:
		return f.writeNDJSONLine(payload)
	case KindWebSocket:
		return f.writeWebSocketFrame(wsOpText, payload)
	case KindMarsTLV:
		return f.encodeMarsPush(payload)
	default:
		return ErrProtocol
	}
}
