package zk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFileHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	require.NoError(t, os.WriteFile(path, []byte("key material"), 0o644))

	h1, err := ComputeFileHash(path)
	require.NoError(t, err)
	h2, err := ComputeFileHash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	require.NoError(t, os.WriteFile(path, []byte("different material"), 0o644))
	h3, err := ComputeFileHash(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestVerifyKeyHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	require.NoError(t, os.WriteFile(path, []byte("key material"), 0o644))

	hash, err := ComputeFileHash(path)
	require.NoError(t, err)

	require.NoError(t, VerifyKeyHash(path, hash))
	require.Error(t, VerifyKeyHash(path, "deadbeef"))

	// Tampering after hashing is caught.
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	require.Error(t, VerifyKeyHash(path, hash))
}

func TestKeyMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battle", "keys.json")

	meta := &KeyMetadata{
		Circuit:             "battle",
		Version:             "1.0.0",
		ProvingKeyHash:      "abc123",
		VerificationKeyHash: "def456",
		NumParticipants:     7,
		CeremonyDate:        "2024-11-02",
	}
	require.NoError(t, meta.Save(path))

	loaded, err := LoadKeyMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, meta, loaded)
}

func TestKeyMetadataVerifyKeys(t *testing.T) {
	dir := t.TempDir()

	pkPath := filepath.Join(dir, "proving.key")
	vkPath := filepath.Join(dir, "verifying.key")
	require.NoError(t, os.WriteFile(pkPath, []byte("proving key bytes"), 0o644))
	require.NoError(t, os.WriteFile(vkPath, []byte("verifying key bytes"), 0o644))

	pkHash, err := ComputeFileHash(pkPath)
	require.NoError(t, err)
	vkHash, err := ComputeFileHash(vkPath)
	require.NoError(t, err)

	meta := &KeyMetadata{
		Circuit:             "battle",
		ProvingKeyHash:      pkHash,
		VerificationKeyHash: vkHash,
	}
	require.NoError(t, meta.VerifyKeys(pkPath, vkPath))

	require.NoError(t, os.WriteFile(pkPath, []byte("swapped"), 0o644))
	require.Error(t, meta.VerifyKeys(pkPath, vkPath))
}

func TestDefaultKeyPaths(t *testing.T) {
	pk, vk := DefaultKeyPaths("/var/lib/bitcell/keys", "battle")
	assert.Equal(t, "/var/lib/bitcell/keys/battle/proving.key", pk)
	assert.Equal(t, "/var/lib/bitcell/keys/battle/verifying.key", vk)
	assert.Equal(t, "/var/lib/bitcell/keys/battle/keys.json", MetadataPath("/var/lib/bitcell/keys", "battle"))
}
