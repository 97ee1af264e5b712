package framer

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// fakeConn adapts a net.Conn half of a net.Pipe() to the Conn
// interface, mirroring the source's net.Pipe()-based connection tests.
type fakeConn struct {
	net.Conn
}

func pipePair(t *testing.T) (client net.Conn, serverFramer *Framer) {
	t.Helper()
	c, s := net.Pipe()
	t.Cleanup(func() { c.Close(); s.Close() })
	return c, New(fakeConn{s})
}

func TestDetectNDJSON(t *testing.T) {
	client, f := pipePair(t)
	go client.Write([]byte(`{"sender":"a@x"}` + "\n"))

	ev := f.Next()
	if ev.Kind != EventMessage {
		t.Fatalf("expected MESSAGE, got %+v", ev)
	}
	if f.Kind() != KindNDJSON {
		t.Fatalf("expected NDJSON, got %s", f.Kind())
	}
	if string(ev.Payload) != `{"sender":"a@x"}` {
		t.Fatalf("unexpected payload %q", ev.Payload)
	}
}

func TestNDJSONHeartbeat(t *testing.T) {
	client, f := pipePair(t)
	go client.Write([]byte(`{"x":1}` + "\n" + "\n"))

	ev := f.Next()
	if ev.Kind != EventMessage {
		t.Fatalf("expected MESSAGE first, got %+v", ev)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	done := make(chan Event, 1)
	go func() { done <- f.Next() }()

	buf := make([]byte, 1)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("expected heartbeat reply byte, got error %v", err)
	}
	if buf[0] != '\n' {
		t.Fatalf("expected heartbeat reply '\\n', got %q", buf[0])
	}
	ev = <-done
	if ev.Kind != EventHeartbeat {
		t.Fatalf("expected HEARTBEAT, got %+v", ev)
	}
}

func TestDetectWebSocketAndHandshake(t *testing.T) {
	client, f := pipePair(t)
	key := "dGhlIHNhbXBsZSBub25jZQ=="
	req := "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\nSec-WebSocket-Version: 13\r\n\r\n"

	respCh := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := client.Read(buf)
		respCh <- string(buf[:n])
	}()
	go client.Write([]byte(req))

	// The 101 response is written from inside Next, so Next must already
	// be running while the response is read.
	evCh := make(chan Event, 1)
	go func() { evCh <- f.Next() }()

	resp := <-respCh
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	wantAccept := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if !bytes.Contains([]byte(resp), []byte("Sec-WebSocket-Accept: "+wantAccept)) {
		t.Fatalf("expected accept key %q in response %q", wantAccept, resp)
	}
	if !bytes.Contains([]byte(resp), []byte("101 Switching Protocols")) {
		t.Fatalf("expected 101 response, got %q", resp)
	}

	go client.Write(encodeTestWSFrame(t, wsOpText, []byte("hello")))
	ev := <-evCh
	if ev.Kind != EventMessage || string(ev.Payload) != "hello" {
		t.Fatalf("expected MESSAGE \"hello\", got %+v", ev)
	}
	if f.Kind() != KindWebSocket {
		t.Fatalf("expected websocket, got %s", f.Kind())
	}
}

func TestWebSocketPayloadLengthBoundaries(t *testing.T) {
	for _, n := range []int{125, 126, 127, 1 << 16, 1<<16 + 1} {
		client, f := pipePair(t)
		drainHandshakeResponse(client)

		payload := bytes.Repeat([]byte{'x'}, n)
		go func() {
			client.Write([]byte(wsUpgradeRequest))
			client.Write(encodeTestWSFrame(t, wsOpText, payload))
		}()

		ev := f.Next()
		if ev.Kind != EventMessage {
			t.Fatalf("len=%d: expected MESSAGE, got %+v", n, ev)
		}
		if len(ev.Payload) != n {
			t.Fatalf("len=%d: expected payload of length %d, got %d", n, n, len(ev.Payload))
		}
		if !bytes.Equal(ev.Payload, payload) {
			t.Fatalf("len=%d: payload round-trip mismatch", n)
		}
	}
}

func TestWebSocketReplyRoundTripsServerFrame(t *testing.T) {
	client, f := pipePair(t)
	drainHandshakeResponse(client)
	go func() {
		client.Write([]byte(wsUpgradeRequest))
		client.Write(encodeTestWSFrame(t, wsOpText, []byte("ping")))
	}()

	ev := f.Next()
	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	if err := ev.Reply([]byte("pong")); err != nil {
		t.Fatal(err)
	}
	frame := <-readDone
	if frame[0] != 0x81 {
		t.Fatalf("expected FIN+text opcode 0x81, got %#x", frame[0])
	}
	if frame[1]&0x80 != 0 {
		t.Fatal("server frames must not be masked")
	}
	payload := frame[2:]
	if string(payload) != "pong" {
		t.Fatalf("expected payload \"pong\", got %q", payload)
	}
}

func TestDetectMarsTLV(t *testing.T) {
	client, f := pipePair(t)
	body := []byte(`{"sender":"a@x"}`)
	packet := buildMarsPacket(200, marsCmdSend, 7, body)
	go client.Write(packet)

	ev := f.Next()
	if ev.Kind != EventMessage {
		t.Fatalf("expected MESSAGE, got %+v", ev)
	}
	if f.Kind() != KindMarsTLV {
		t.Fatalf("expected mars-tlv, got %s", f.Kind())
	}
	if string(ev.Payload) != string(body) {
		t.Fatalf("unexpected payload %q", ev.Payload)
	}
}

func TestMarsSendBatchConcatenatesResponses(t *testing.T) {
	client, f := pipePair(t)
	body := []byte("line-one\nline-two")
	packet := buildMarsPacket(200, marsCmdSend, 42, body)
	go client.Write(packet)

	ev1 := f.Next()
	ev2 := f.Next()
	if ev1.Kind != EventMessage || ev2.Kind != EventMessage {
		t.Fatalf("expected two MESSAGE events, got %+v / %+v", ev1, ev2)
	}

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	if err := ev1.Reply([]byte("resp-one")); err != nil {
		t.Fatal(err)
	}
	if err := ev2.Reply([]byte("resp-two")); err != nil {
		t.Fatal(err)
	}

	reply := <-readDone
	h, ok := parseMarsHeader(reply)
	if !ok {
		t.Fatal("expected parseable mars header in reply")
	}
	if h.cmd != marsCmdSend || h.seq != 42 {
		t.Fatalf("expected cmd=3 seq=42 echo, got cmd=%d seq=%d", h.cmd, h.seq)
	}
	gotBody := reply[h.headLength:]
	if string(gotBody) != "resp-one\nresp-two\n" {
		t.Fatalf("expected concatenated responses, got %q", gotBody)
	}
}

func TestMarsSendBatchOmitsFailedLines(t *testing.T) {
	client, f := pipePair(t)
	body := []byte("ok-line\nbad-line")
	packet := buildMarsPacket(200, marsCmdSend, 9, body)
	go client.Write(packet)

	ev1 := f.Next()
	ev2 := f.Next()

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	if err := ev1.Reply([]byte("accepted")); err != nil {
		t.Fatal(err)
	}
	if err := ev2.Reply(nil); err != nil { // decode/signature failure: no response line.
		t.Fatal(err)
	}

	reply := <-readDone
	h, _ := parseMarsHeader(reply)
	gotBody := reply[h.headLength:]
	if string(gotBody) != "accepted\n" {
		t.Fatalf("expected only the successful response, got %q", gotBody)
	}
}

func TestMarsNoopEchoesUnchanged(t *testing.T) {
	client, f := pipePair(t)
	packet := buildMarsPacket(200, marsCmdNoop, 1, []byte("ping"))
	go client.Write(packet)

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	nextDone := make(chan struct{})
	go func() {
		f.Next() // returns the heartbeat event once the echo is written.
		close(nextDone)
	}()

	echoed := <-readDone
	if !bytes.Equal(echoed, packet) {
		t.Fatalf("expected cmd=6 echoed unchanged, got %q want %q", echoed, packet)
	}
	<-nextDone
	client.Close()
}

func TestMarsRetainsBufferWhenDeclaredBodyExceedsBuffer(t *testing.T) {
	_, f := pipePair(t)
	header := make([]byte, 20)
	binary.LittleEndian.PutUint16(header[0:2], 200)
	binary.LittleEndian.PutUint16(header[2:4], marsCmdSend)
	binary.LittleEndian.PutUint32(header[4:8], 1)
	binary.LittleEndian.PutUint32(header[8:12], 20)
	binary.LittleEndian.PutUint32(header[12:16], 999999)
	f.buf = header // only the header has arrived; the declared body is still in flight.

	ev, produced, err := f.parseMarsPacket()
	if err != nil {
		t.Fatal(err)
	}
	if produced {
		t.Fatal("expected no event to be produced until the full body arrives")
	}
	if ev.Kind != 0 {
		t.Fatalf("expected zero-value event, got %+v", ev)
	}
	if len(f.buf) != len(header) {
		t.Fatalf("expected buffered header to be retained untouched, got %d bytes", len(f.buf))
	}
}

func TestUnrecognizedProtocolClosesOnSecondFailure(t *testing.T) {
	client, f := pipePair(t)
	garbage := bytes.Repeat([]byte{0xFF}, 32)
	go func() {
		client.Write(garbage)
		client.Write(garbage)
	}()

	ev := f.Next()
	if ev.Kind != EventError {
		t.Fatalf("expected ERROR after repeated protocol failure, got %+v", ev)
	}
}

const wsUpgradeRequest = "GET /ws HTTP/1.1\r\nUpgrade: websocket\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"

// drainHandshakeResponse consumes the 101 response the Framer writes
// during detection, so that write doesn't block forever waiting for a
// reader.
func drainHandshakeResponse(client net.Conn) {
	go func() {
		buf := make([]byte, 4096)
		client.Read(buf)
	}()
}

func encodeTestWSFrame(t *testing.T, opcode byte, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteByte(0x80 | opcode)
	switch {
	case len(payload) <= 125:
		buf.WriteByte(0x80 | byte(len(payload)))
	case len(payload) <= 0xFFFF:
		buf.WriteByte(0x80 | 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(len(payload)))
		buf.Write(ext[:])
	default:
		buf.WriteByte(0x80 | 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(len(payload)))
		buf.Write(ext[:])
	}
	mask := [4]byte{0x1, 0x2, 0x3, 0x4}
	buf.Write(mask[:])
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}
	buf.Write(masked)
	return buf.Bytes()
}

func buildMarsPacket(version, cmd uint16, seq uint32, body []byte) []byte {
	const headLen = 20
	header := make([]byte, headLen)
	binary.LittleEndian.PutUint16(header[0:2], version)
	binary.LittleEndian.PutUint16(header[2:4], cmd)
	binary.LittleEndian.PutUint32(header[4:8], seq)
	binary.LittleEndian.PutUint32(header[8:12], headLen)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(body)))
	return append(header, body...)
}
