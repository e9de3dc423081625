package model

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"github.com/steake/bitcell/errors"
)

// PublicKey is an ed25519 public key and doubles as the address of an
// account. It is a value type and is copied freely; maps hold it by value.
type PublicKey [ed25519.PublicKeySize]byte

// Signature is an ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// SecretKey wraps an ed25519 private key. The same key signs blocks,
// transactions and evaluates the VRF.
type SecretKey struct {
	priv ed25519.PrivateKey
}

// GenerateKey creates a fresh keypair from crypto/rand.
func GenerateKey() (*SecretKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.New(errors.ERR_ERROR, "key generation failed", err)
	}
	return &SecretKey{priv: priv}, nil
}

// SecretKeyFromSeed derives the keypair from a 32-byte seed.
func SecretKeyFromSeed(seed []byte) (*SecretKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.NewInvalidArgumentError("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &SecretKey{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the public half.
func (sk *SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], sk.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs msg and returns the signature.
func (sk *SecretKey) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(sk.priv, msg))
	return sig
}

// Seed returns the 32-byte seed the key was derived from.
func (sk *SecretKey) Seed() []byte {
	return sk.priv.Seed()
}

// Ed25519 exposes the underlying private key for the VRF.
func (sk *SecretKey) Ed25519() ed25519.PrivateKey {
	return sk.priv
}

// Verify reports whether sig is a valid signature by pk over msg.
func (pk PublicKey) Verify(msg []byte, sig Signature) bool {
	return ed25519.Verify(pk[:], msg, sig[:])
}

func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

func (pk PublicKey) IsZero() bool {
	var zero PublicKey
	return pk == zero
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != ed25519.PublicKeySize {
		return pk, errors.NewInvalidArgumentError("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (s Signature) Bytes() []byte {
	return s[:]
}
