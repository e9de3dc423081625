// Package model defines the core BitCell chain types: hashes, keys,
// accounts, transactions, blocks, gliders and finality votes, together with
// their canonical CBOR serialization and hashing rules.
package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Hash256 is a 32-byte cryptographic digest. Equality is byte-wise.
type Hash256 [32]byte

// NewHash256 computes the SHA-256 digest of data.
func NewHash256(data []byte) Hash256 {
	return Hash256(sha256.Sum256(data))
}

// Hash256FromBytes copies b into a Hash256. Inputs that are not exactly 32
// bytes yield the zero hash and false.
func Hash256FromBytes(b []byte) (Hash256, bool) {
	var h Hash256
	if len(b) != 32 {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// Hash256FromString parses a hex-encoded digest.
func Hash256FromString(s string) (Hash256, error) {
	var h Hash256
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != 32 {
		return h, hex.InvalidByteError(' ')
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash256) Bytes() []byte {
	return h[:]
}

func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash256) IsZero() bool {
	var zero Hash256
	return h == zero
}

func (h Hash256) Equal(other Hash256) bool {
	return bytes.Equal(h[:], other[:])
}
