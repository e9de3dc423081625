package clsag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/errors"
)

func makeRing(t *testing.T, n int) ([]*SecretKey, []PublicKey) {
	t.Helper()

	keys := make([]*SecretKey, n)
	ring := make([]PublicKey, n)
	for i := 0; i < n; i++ {
		sk, err := GenerateSecretKey()
		require.NoError(t, err)
		keys[i] = sk
		ring[i] = sk.PublicKey()
	}
	return keys, ring
}

func TestClsagSignAndVerify(t *testing.T) {
	keys, ring := makeRing(t, MinRingSize)

	message := []byte("tournament commitment")

	signerIdx := MinRingSize / 2
	sig, err := Sign(keys[signerIdx], ring, message)
	require.NoError(t, err)

	require.NoError(t, sig.Verify(ring, message))
}

func TestClsagWrongMessageFails(t *testing.T) {
	keys, ring := makeRing(t, DefaultRingSize)

	sig, err := Sign(keys[0], ring, []byte("message one"))
	require.NoError(t, err)

	err = sig.Verify(ring, []byte("message two"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRingSignature))
}

func TestClsagKeyImageLinkability(t *testing.T) {
	keys, ring := makeRing(t, MinRingSize)

	sig1, err := Sign(keys[3], ring, []byte("first"))
	require.NoError(t, err)

	sig2, err := Sign(keys[3], ring, []byte("second"))
	require.NoError(t, err)

	// Same signer, different messages: identical key images.
	assert.Equal(t, sig1.KeyImage, sig2.KeyImage)
	assert.Equal(t, keys[3].KeyImage(), sig1.KeyImage)

	sig3, err := Sign(keys[4], ring, []byte("first"))
	require.NoError(t, err)
	assert.NotEqual(t, sig1.KeyImage, sig3.KeyImage)
}

func TestClsagRingSizeEnforcement(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		keys, ring := makeRing(t, MinRingSize-1)

		_, err := Sign(keys[0], ring, []byte("msg"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrRingSize))
	})

	t.Run("above maximum", func(t *testing.T) {
		keys, ring := makeRing(t, MaxRingSize+1)

		_, err := Sign(keys[0], ring, []byte("msg"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrRingSize))
	})

	t.Run("maximum accepted", func(t *testing.T) {
		keys, ring := makeRing(t, MaxRingSize)

		sig, err := Sign(keys[MaxRingSize-1], ring, []byte("msg"))
		require.NoError(t, err)
		require.NoError(t, sig.Verify(ring, []byte("msg")))
	})
}

func TestClsagSignerNotInRing(t *testing.T) {
	_, ring := makeRing(t, MinRingSize)

	outsider, err := GenerateSecretKey()
	require.NoError(t, err)

	_, err = Sign(outsider, ring, []byte("msg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRingSignature))
}

func TestClsagTamperedSignatureFails(t *testing.T) {
	keys, ring := makeRing(t, MinRingSize)

	sig, err := Sign(keys[0], ring, []byte("msg"))
	require.NoError(t, err)

	sig.S[2][0] ^= 0x01

	err = sig.Verify(ring, []byte("msg"))
	require.Error(t, err)
}

func TestClsagSerializeRoundTrip(t *testing.T) {
	keys, ring := makeRing(t, MinRingSize)

	sig, err := Sign(keys[1], ring, []byte("msg"))
	require.NoError(t, err)

	data, err := sig.Serialize()
	require.NoError(t, err)

	decoded, err := DeserializeSignature(data)
	require.NoError(t, err)

	assert.Equal(t, sig.KeyImage, decoded.KeyImage)
	assert.Equal(t, sig.C1, decoded.C1)
	assert.Equal(t, sig.S, decoded.S)

	require.NoError(t, decoded.Verify(ring, []byte("msg")))
}
