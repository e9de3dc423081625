package chain

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotBlobLayout(t *testing.T) {
	root := []byte("thirty-two bytes of state root!!")
	accounts := []byte("accounts payload")

	blob := EncodeSnapshotBlob(42, root, accounts)

	// height(8) || root_len(4) || state_root || accounts, big-endian.
	require.GreaterOrEqual(t, len(blob), 12)
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(blob[0:8]))
	assert.Equal(t, uint32(len(root)), binary.BigEndian.Uint32(blob[8:12]))
	assert.Equal(t, root, blob[12:12+len(root)])
	assert.Equal(t, accounts, blob[12+len(root):])

	gotRoot, gotAccounts, err := DecodeSnapshotBlob(blob, 42)
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	assert.Equal(t, accounts, gotAccounts)
}

func TestSnapshotBlobErrors(t *testing.T) {
	_, _, err := DecodeSnapshotBlob([]byte{1, 2}, 0)
	require.Error(t, err)

	blob := EncodeSnapshotBlob(1, []byte("root"), nil)
	_, _, err = DecodeSnapshotBlob(blob, 2)
	require.Error(t, err, "height mismatch must be rejected")

	truncated := blob[:10]
	_, _, err = DecodeSnapshotBlob(truncated, 1)
	require.Error(t, err)
}
