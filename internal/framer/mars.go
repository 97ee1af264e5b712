package framer

import (
	"bytes"
	"encoding/binary"
	"log/slog"
)

// marsHeaderFixedLen is the byte length of the five fixed mars-TLV
// header fields; head_length pads with reserved bytes up to the
// declared head_length.
const marsHeaderFixedLen = 16

// marsMaxTotal caps head_length+body_length as a plausibility check
// during detection.
const marsMaxTotal = 1 << 20

const (
	marsCmdSend       = 3
	marsCmdNoop       = 6
	marsCmdServerPush = 10001
)

type marsHeader struct {
	version    uint16
	cmd        uint16
	seq        uint32
	headLength uint32
	bodyLength uint32
}

func parseMarsHeader(buf []byte) (marsHeader, bool) {
	if len(buf) < marsHeaderFixedLen {
		return marsHeader{}, false
	}
	return marsHeader{
		version:    binary.LittleEndian.Uint16(buf[0:2]),
		cmd:        binary.LittleEndian.Uint16(buf[2:4]),
		seq:        binary.LittleEndian.Uint32(buf[4:8]),
		headLength: binary.LittleEndian.Uint32(buf[8:12]),
		bodyLength: binary.LittleEndian.Uint32(buf[12:16]),
	}, true
}

// looksLikeMars applies the mars-TLV plausibility check: version==200,
// head_length>=20, and a bounded total size.
func looksLikeMars(buf []byte) bool {
	h, ok := parseMarsHeader(buf)
	if !ok {
		return false
	}
	if h.version != 200 {
		return false
	}
	if h.headLength < 20 {
		return false
	}
	total := uint64(h.headLength) + uint64(h.bodyLength)
	return total <= marsMaxTotal
}

// marsBatch accumulates the successful per-line responses of one
// cmd=3 SEND packet so they can be concatenated into a single reply
// frame: responses are joined with a trailing \n and wrapped in a
// single cmd=3, seq=echo reply; unsuccessful lines are simply omitted.
type marsBatch struct {
	seq       uint32
	remaining int
	responses [][]byte
}

// parseMarsPacket decodes one complete mars-TLV packet from f.buf.
// cmd=6 is echoed unchanged and reported as a heartbeat event; cmd=3
// bodies are split into NDJSON lines and queued as individual messages
// sharing one marsBatch; other commands are logged and dropped here
// (returned as a produced no-op).
func (f *Framer) parseMarsPacket() (Event, bool, error) {
	h, ok := parseMarsHeader(f.buf)
	if !ok {
		return Event{}, false, nil
	}
	total := uint64(h.headLength) + uint64(h.bodyLength)
	if uint64(len(f.buf)) < total {
		// Declared body_length larger than the buffer: retain bytes,
		// do not dispatch.
		return Event{}, false, nil
	}

	body := f.buf[h.headLength:total]
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	f.buf = f.buf[total:]

	switch h.cmd {
	case marsCmdNoop:
		return Event{Kind: EventHeartbeat}, true, f.echoMarsNoop(h, bodyCopy)

	case marsCmdSend:
		lines := splitNonEmptyLines(bodyCopy)
		if len(lines) == 0 {
			return Event{}, true, nil
		}
		batch := &marsBatch{seq: h.seq, remaining: len(lines)}
		for _, line := range lines {
			line := line
			f.queue = append(f.queue, queuedMessage{
				payload: line,
				reply:   f.marsBatchReply(batch),
			})
		}
		return Event{}, true, nil

	default:
		// Recognized framing, unrecognized command: log and drop.
		slog.Debug("framer: dropping mars packet with unrecognized command", "cmd", h.cmd, "seq", h.seq)
		return Event{}, true, nil
	}
}

// echoMarsNoop writes back the original header+body unchanged, the
// cmd=6 keepalive rule.
func (f *Framer) echoMarsNoop(h marsHeader, body []byte) error {
	packet := encodeMarsHeader(h)
	packet = append(packet, body...)
	_, err := f.conn.Write(packet)
	return err
}

// marsBatchReply returns a Reply closure that appends a successful
// response to batch and flushes the aggregate frame once every line in
// the batch has been answered.
func (f *Framer) marsBatchReply(batch *marsBatch) func([]byte) error {
	return func(payload []byte) error {
		if payload != nil {
			batch.responses = append(batch.responses, payload)
		}
		batch.remaining--
		if batch.remaining > 0 {
			return nil
		}
		joined := bytes.Join(batch.responses, []byte("\n"))
		if len(joined) > 0 {
			joined = append(joined, '\n')
		}
		h := marsHeader{
			version:    200,
			cmd:        marsCmdSend,
			seq:        batch.seq,
			headLength: marsHeaderFixedLen + 4, // 4 reserved pad bytes, keeps head_length>=20.
			bodyLength: uint32(len(joined)),
		}
		packet := encodeMarsHeader(h)
		packet = append(packet, joined...)
		_, err := f.conn.Write(packet)
		return err
	}
}

// encodeMarsPush wraps payload as an unsolicited server push: server
// pushes use cmd=10001, seq=0.
func (f *Framer) encodeMarsPush(payload []byte) error {
	h := marsHeader{
		version:    200,
		cmd:        marsCmdServerPush,
		seq:        0,
		headLength: marsHeaderFixedLen + 4,
		bodyLength: uint32(len(payload)),
	}
	packet := encodeMarsHeader(h)
	packet = append(packet, payload...)
	_, err := f.conn.Write(packet)
	return err
}

func encodeMarsHeader(h marsHeader) []byte {
	buf := make([]byte, h.headLength)
	binary.LittleEndian.PutUint16(buf[0:2], h.version)
	binary.LittleEndian.PutUint16(buf[2:4], h.cmd)
	binary.LittleEndian.PutUint32(buf[4:8], h.seq)
	binary.LittleEndian.PutUint32(buf[8:12], h.headLength)
	binary.LittleEndian.PutUint32(buf[12:16], h.bodyLength)
	return buf
}

func splitNonEmptyLines(body []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
