package model

import (
	"encoding/binary"
)

// VoteType distinguishes the two finality rounds.
type VoteType uint8

const (
	VotePrevote VoteType = iota
	VotePrecommit
)

func (v VoteType) String() string {
	switch v {
	case VotePrevote:
		return "prevote"
	case VotePrecommit:
		return "precommit"
	default:
		return "unknown"
	}
}

// FinalityVote is a validator's vote on a block in a given round.
type FinalityVote struct {
	BlockHash   Hash256   `cbor:"1,keyasint"`
	BlockHeight uint64    `cbor:"2,keyasint"`
	VoteType    VoteType  `cbor:"3,keyasint"`
	Round       uint64    `cbor:"4,keyasint"`
	Validator   PublicKey `cbor:"5,keyasint"`
	Signature   Signature `cbor:"6,keyasint"`
}

// SignMessage returns the exact bytes the validator signs:
// block_hash || height_le || vote_type || round_le.
func (v *FinalityVote) SignMessage() []byte {
	msg := make([]byte, 0, 32+8+1+8)
	msg = append(msg, v.BlockHash[:]...)
	msg = binary.LittleEndian.AppendUint64(msg, v.BlockHeight)
	msg = append(msg, byte(v.VoteType))
	msg = binary.LittleEndian.AppendUint64(msg, v.Round)
	return msg
}

// Verify checks the vote's signature.
func (v *FinalityVote) Verify() bool {
	return v.Validator.Verify(v.SignMessage(), v.Signature)
}

// SignVote fills in the signature with the validator's key.
func SignVote(v *FinalityVote, sk *SecretKey) {
	v.Validator = sk.PublicKey()
	v.Signature = sk.Sign(v.SignMessage())
}

// Serialize encodes the vote canonically.
func (v *FinalityVote) Serialize() ([]byte, error) {
	return MarshalCanonical(v)
}

// DeserializeFinalityVote decodes a vote.
func DeserializeFinalityVote(data []byte) (*FinalityVote, error) {
	var v FinalityVote
	if err := UnmarshalCanonical(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
