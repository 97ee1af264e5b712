// Package envelope decodes and encodes the opaque signed envelope that
// carries one message between two identities. The core never inspects
// the ciphertext payload; it only parses and verifies the outer record.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dimchat/station/internal/barrack"
	"github.com/dimchat/station/internal/id"
)

// Errors returned by Decode/Verify.
var (
	// ErrDecodeInvalid means the bytes are not a well-formed envelope.
	ErrDecodeInvalid = errors.New("envelope: malformed")
	// ErrSignatureInvalid means the signature did not verify.
	ErrSignatureInvalid = errors.New("envelope: signature invalid")
)

// wire is the JSON wire shape.
type wire struct {
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Time      uint64          `json:"time"`
	Group     string          `json:"group,omitempty"`
	Signature string          `json:"signature"`
	Data      string          `json:"data"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// Envelope is the immutable, decoded signed outer record.
type Envelope struct {
	Sender     id.ID
	Receiver   id.ID
	Time       uint64
	Group      id.ID // zero value if absent
	Signature  []byte
	Ciphertext []byte
	Meta       json.RawMessage
	raw        []byte // original bytes, preserved verbatim for re-dispatch
}

// Raw returns the exact bytes this Envelope was decoded from.
// The Dispatcher forwards these bytes unmodified.
func (e Envelope) Raw() []byte { return e.raw }

// HasGroup reports whether the envelope carries a group field.
func (e Envelope) HasGroup() bool { return !e.Group.IsZero() }

// canonical returns the bytes over which the signature is computed: the
// wire JSON with the signature field removed, in stable field order.
// The out-of-scope crypto layer defines the exact canonicalization; the
// core only needs a deterministic byte string to hand to Barrack.Verify.
func canonical(w wire) []byte {
	w.Signature = ""
	b, _ := json.Marshal(w)
	return b
}

// Decode parses raw bytes into an Envelope without verifying the
// signature. Callers that need verification should call Verify.
func Decode(raw []byte) (Envelope, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecodeInvalid, err)
	}
	sender, ok := id.Parse(w.Sender)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: bad sender %q", ErrDecodeInvalid, w.Sender)
	}
	receiver, ok := id.Parse(w.Receiver)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: bad receiver %q", ErrDecodeInvalid, w.Receiver)
	}
	var group id.ID
	if w.Group != "" {
		group, ok = id.Parse(w.Group)
		if !ok {
			return Envelope{}, fmt.Errorf("%w: bad group %q", ErrDecodeInvalid, w.Group)
		}
	}
	sig, err := base64.StdEncoding.DecodeString(w.Signature)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: bad signature encoding: %v", ErrDecodeInvalid, err)
	}
	data, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: bad data encoding: %v", ErrDecodeInvalid, err)
	}
	return Envelope{
		Sender:     sender,
		Receiver:   receiver,
		Time:       w.Time,
		Group:      group,
		Signature:  sig,
		Ciphertext: data,
		Meta:       w.Meta,
		raw:        append([]byte(nil), raw...),
	}, nil
}

// Verify checks the envelope's signature against the sender's public key,
// resolved through b. On failure, the caller must drop the envelope and
// send no reply.
func Verify(e Envelope, b barrack.Barrack) error {
	w := wire{
		Sender:    e.Sender.String(),
		Receiver:  e.Receiver.String(),
		Time:      e.Time,
		Signature: "",
		Data:      base64.StdEncoding.EncodeToString(e.Ciphertext),
		Meta:      e.Meta,
	}
	if e.HasGroup() {
		w.Group = e.Group.String()
	}
	ok, err := b.Verify(e.Sender, canonical(w), e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

// Encode renders an Envelope back to wire JSON bytes. Used only to
// construct fresh station-originated envelopes (e.g. receipts); bytes
// received from a client are always re-sent via Raw(), never Encode(),
// so that parse(serialize(x)) == x is the only round-trip this needs to
// satisfy and re-signing is never silently skipped.
func Encode(e Envelope) ([]byte, error) {
	w := wire{
		Sender:    e.Sender.String(),
		Receiver:  e.Receiver.String(),
		Time:      e.Time,
		Signature: base64.StdEncoding.EncodeToString(e.Signature),
		Data:      base64.StdEncoding.EncodeToString(e.Ciphertext),
		Meta:      e.Meta,
	}
	if e.HasGroup() {
		w.Group = e.Group.String()
	}
	return json.Marshal(w)
}
