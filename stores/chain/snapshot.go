package chain

import (
	"encoding/binary"

	"github.com/steake/bitcell/errors"
)

// EncodeSnapshotBlob lays out a snapshot exactly as
// height(8) || root_len(4) || state_root || accounts, all big-endian.
func EncodeSnapshotBlob(height uint64, stateRoot, accountsBlob []byte) []byte {
	out := make([]byte, 0, 12+len(stateRoot)+len(accountsBlob))
	out = binary.BigEndian.AppendUint64(out, height)
	out = binary.BigEndian.AppendUint32(out, uint32(len(stateRoot)))
	out = append(out, stateRoot...)
	out = append(out, accountsBlob...)
	return out
}

// DecodeSnapshotBlob parses a snapshot blob, checking the embedded height
// against the expected one.
func DecodeSnapshotBlob(blob []byte, expectedHeight uint64) (stateRoot, accountsBlob []byte, err error) {
	if len(blob) < 12 {
		return nil, nil, errors.NewStorageError("snapshot blob truncated")
	}

	height := binary.BigEndian.Uint64(blob[0:8])
	if height != expectedHeight {
		return nil, nil, errors.NewStorageError("snapshot height mismatch: expected %d, got %d", expectedHeight, height)
	}

	rootLen := int(binary.BigEndian.Uint32(blob[8:12]))
	if len(blob) < 12+rootLen {
		return nil, nil, errors.NewStorageError("snapshot blob root length mismatch")
	}

	return blob[12 : 12+rootLen], blob[12+rootLen:], nil
}
