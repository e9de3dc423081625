// Package p2p implements the BitCell wire protocol: binary length-prefixed
// frames (4-byte big-endian length, then a canonical CBOR payload) over
// TCP. Handshake exchange is symmetric and must complete before any other
// message; peers violating framing or the 10 MiB limit are dropped.
package p2p

import (
	"encoding/binary"
	"io"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

// MaxMessageSize is the framing limit per message.
const MaxMessageSize = 10 << 20

// MessageType tags the wire messages.
type MessageType uint8

const (
	MessageHandshake MessageType = iota
	MessagePing
	MessagePong
	MessageBlock
	MessageTransaction
	MessageGetPeers
	MessagePeers
)

func (t MessageType) String() string {
	switch t {
	case MessageHandshake:
		return "handshake"
	case MessagePing:
		return "ping"
	case MessagePong:
		return "pong"
	case MessageBlock:
		return "block"
	case MessageTransaction:
		return "transaction"
	case MessageGetPeers:
		return "get_peers"
	case MessagePeers:
		return "peers"
	}
	return "unknown"
}

// Message is the wire envelope. Payload holds the canonical CBOR encoding
// of the typed body, empty for Ping/Pong/GetPeers.
type Message struct {
	Type    MessageType `cbor:"1,keyasint"`
	Payload []byte      `cbor:"2,keyasint,omitempty"`
}

// Handshake opens a connection in both directions.
type Handshake struct {
	PeerID model.PublicKey `cbor:"1,keyasint"`
}

// Peers answers GetPeers with dialable addresses.
type Peers struct {
	Addresses []string `cbor:"1,keyasint"`
}

// NewMessage builds an envelope around a typed body.
func NewMessage(t MessageType, body interface{}) (*Message, error) {
	msg := &Message{Type: t}
	if body != nil {
		payload, err := model.MarshalCanonical(body)
		if err != nil {
			return nil, errors.NewInvalidArgumentError("message payload encode failed", err)
		}
		msg.Payload = payload
	}
	return msg, nil
}

// WriteMessage frames and writes a message: length(4, big-endian) then the
// CBOR envelope.
func WriteMessage(w io.Writer, msg *Message) error {
	payload, err := model.MarshalCanonical(msg)
	if err != nil {
		return errors.NewInvalidArgumentError("message encode failed", err)
	}
	if len(payload) > MaxMessageSize {
		return errors.NewInvalidArgumentError("message exceeds %d bytes", MaxMessageSize)
	}

	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(payload)))
	if _, err := w.Write(frame[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadMessage reads one framed message, enforcing the size limit before
// allocation.
func ReadMessage(r io.Reader) (*Message, error) {
	var frame [4]byte
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(frame[:])
	if size > MaxMessageSize {
		return nil, errors.NewInvalidArgumentError("message of %d bytes exceeds limit", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	var msg Message
	if err := model.UnmarshalCanonical(payload, &msg); err != nil {
		return nil, errors.NewInvalidArgumentError("message decode failed", err)
	}
	return &msg, nil
}

// DecodeBody decodes the envelope payload into the typed body.
func (m *Message) DecodeBody(v interface{}) error {
	return model.UnmarshalCanonical(m.Payload, v)
}
