package p2p

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
)

func TestMessageFraming(t *testing.T) {
	msg, err := NewMessage(MessageHandshake, &Handshake{PeerID: model.PublicKey{1, 2, 3}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	// 4-byte big-endian length prefix, then the payload.
	frame := buf.Bytes()
	require.Greater(t, len(frame), 4)
	length := binary.BigEndian.Uint32(frame[:4])
	assert.Equal(t, int(length), len(frame)-4)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MessageHandshake, decoded.Type)

	var hs Handshake
	require.NoError(t, decoded.DecodeBody(&hs))
	assert.Equal(t, model.PublicKey{1, 2, 3}, hs.PeerID)
}

func TestMessageRoundTripAllTypes(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 0x51
	sk, err := model.SecretKeyFromSeed(seed)
	require.NoError(t, err)

	tx := &model.Transaction{
		From:     sk.PublicKey(),
		To:       sk.PublicKey(),
		Amount:   9,
		GasPrice: 1,
		GasLimit: 21000,
	}
	model.SignTransaction(tx, sk)

	header := model.BlockHeader{Height: 1, Proposer: sk.PublicKey()}
	headerHash := header.Hash()
	block := &model.Block{
		Header:       header,
		Transactions: []*model.Transaction{tx},
		Signature:    sk.Sign(headerHash.Bytes()),
	}

	cases := []struct {
		name string
		typ  MessageType
		body interface{}
	}{
		{"ping", MessagePing, nil},
		{"pong", MessagePong, nil},
		{"block", MessageBlock, block},
		{"transaction", MessageTransaction, tx},
		{"get_peers", MessageGetPeers, nil},
		{"peers", MessagePeers, &Peers{Addresses: []string{"10.0.0.1:9333"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := NewMessage(tc.typ, tc.body)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, msg))

			decoded, err := ReadMessage(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, decoded.Type)
		})
	}
}

func TestBlockGossipRoundTrip(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 0x52
	sk, err := model.SecretKeyFromSeed(seed)
	require.NoError(t, err)

	header := model.BlockHeader{
		Height:    7,
		PrevHash:  model.NewHash256([]byte("prev")),
		Proposer:  sk.PublicKey(),
		Timestamp: 99,
	}
	headerHash := header.Hash()
	block := &model.Block{Header: header, Signature: sk.Sign(headerHash.Bytes())}

	msg, err := NewMessage(MessageBlock, block)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))
	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)

	var got model.Block
	require.NoError(t, decoded.DecodeBody(&got))
	assert.Equal(t, block.Hash(), got.Hash())
}

func TestOversizedFrameRejected(t *testing.T) {
	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], MaxMessageSize+1)

	_, err := ReadMessage(bytes.NewReader(frame[:]))
	require.Error(t, err)
}

func TestTruncatedFrameRejected(t *testing.T) {
	msg, err := NewMessage(MessagePing, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	truncated := buf.Bytes()[:buf.Len()-1]
	_, err = ReadMessage(bytes.NewReader(truncated))
	require.Error(t, err)
}
