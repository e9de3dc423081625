package p2p

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

func TestHandshakeSymmetric(t *testing.T) {
	alice := NewNode(ulogger.TestLogger{T: t}, model.PublicKey{0xA})
	bob := NewNode(ulogger.TestLogger{T: t}, model.PublicKey{0xB})

	connA, connB := net.Pipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := bob.handshake(connB, false)
		errCh <- err
	}()

	peer, err := alice.handshake(connA, true)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, model.PublicKey{0xB}, peer.id)
	assert.Equal(t, 1, alice.PeerCount())
	assert.Equal(t, 1, bob.PeerCount())
	assert.Equal(t, []model.PublicKey{{0xB}}, alice.ConnectedPeers())
}

func TestHandshakeRejectsSelf(t *testing.T) {
	alice := NewNode(ulogger.TestLogger{T: t}, model.PublicKey{0xA})
	evil := NewNode(ulogger.TestLogger{T: t}, model.PublicKey{0xA})

	connA, connB := net.Pipe()

	go func() {
		_, _ = evil.handshake(connB, false)
	}()

	_, err := alice.handshake(connA, true)
	require.Error(t, err, "a peer echoing our own id must be dropped")
}

func TestHandshakeRejectsNonHandshakeFirst(t *testing.T) {
	alice := NewNode(ulogger.TestLogger{T: t}, model.PublicKey{0xA})

	connA, connB := net.Pipe()

	go func() {
		// Violate the protocol: answer the handshake with a ping.
		_, _ = ReadMessage(connB)
		ping, _ := NewMessage(MessagePing, nil)
		_ = WriteMessage(connB, ping)
	}()

	_, err := alice.handshake(connA, true)
	require.Error(t, err)
}
