package model

import (
	"github.com/steake/bitcell/errors"
)

// GenesisHeight is the height of the genesis block.
const GenesisHeight = 0

// BlockHeader is the immutable header of a block. Headers are never mutated
// after signing.
type BlockHeader struct {
	Height    uint64    `cbor:"1,keyasint"`
	PrevHash  Hash256   `cbor:"2,keyasint"`
	TxRoot    Hash256   `cbor:"3,keyasint"`
	StateRoot Hash256   `cbor:"4,keyasint"`
	Timestamp uint64    `cbor:"5,keyasint"`
	Proposer  PublicKey `cbor:"6,keyasint"`
	VRFOutput [32]byte  `cbor:"7,keyasint"`
	VRFProof  []byte    `cbor:"8,keyasint"`
	Work      uint64    `cbor:"9,keyasint"`
}

// Hash returns the header hash, which is also the block hash.
func (h *BlockHeader) Hash() Hash256 {
	payload, err := MarshalCanonical(h)
	if err != nil {
		panic(err)
	}
	return NewHash256(payload)
}

// Serialize encodes the header canonically.
func (h *BlockHeader) Serialize() ([]byte, error) {
	return MarshalCanonical(h)
}

// DeserializeBlockHeader decodes a header.
func DeserializeBlockHeader(data []byte) (*BlockHeader, error) {
	var h BlockHeader
	if err := UnmarshalCanonical(data, &h); err != nil {
		return nil, errors.NewBlockInvalidError("header decode failed", err)
	}
	return &h, nil
}

// Block is a header plus its transactions, tournament battle proofs, and the
// proposer's signature over the header hash.
type Block struct {
	Header       BlockHeader    `cbor:"1,keyasint"`
	Transactions []*Transaction `cbor:"2,keyasint"`
	BattleProofs []*BattleProof `cbor:"3,keyasint"`
	Signature    Signature      `cbor:"4,keyasint"`
}

// Hash returns the block hash (the header hash).
func (b *Block) Hash() Hash256 {
	return b.Header.Hash()
}

// Serialize encodes the block canonically.
func (b *Block) Serialize() ([]byte, error) {
	return MarshalCanonical(b)
}

// DeserializeBlock decodes a block.
func DeserializeBlock(data []byte) (*Block, error) {
	var b Block
	if err := UnmarshalCanonical(data, &b); err != nil {
		return nil, errors.NewBlockInvalidError("block decode failed", err)
	}
	return &b, nil
}

// CalculateTxRoot computes the Merkle-like digest over transaction hashes.
// An empty transaction list yields the zero hash.
func CalculateTxRoot(transactions []*Transaction) Hash256 {
	if len(transactions) == 0 {
		return Hash256{}
	}

	combined := make([]byte, 0, len(transactions)*32)
	for _, tx := range transactions {
		h := tx.Hash()
		combined = append(combined, h[:]...)
	}
	return NewHash256(combined)
}
