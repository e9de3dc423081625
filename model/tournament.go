package model

import (
	"github.com/steake/bitcell/crypto/clsag"
)

// GliderCommitment is a miner's sealed tournament entry: the commitment
// digest plus a CLSAG ring signature over it. The signature's key image
// identifies the (secret) signer for de-duplication.
type GliderCommitment struct {
	Commitment    Hash256          `cbor:"1,keyasint"`
	RingSignature *clsag.Signature `cbor:"2,keyasint"`
	Height        uint64           `cbor:"3,keyasint"`
}

// Serialize encodes the commitment canonically.
func (c *GliderCommitment) Serialize() ([]byte, error) {
	return MarshalCanonical(c)
}

// DeserializeGliderCommitment decodes a commitment.
func DeserializeGliderCommitment(data []byte) (*GliderCommitment, error) {
	var c GliderCommitment
	if err := UnmarshalCanonical(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GliderReveal opens a commitment: the glider, the nonce, and the miner that
// produced the digest.
type GliderReveal struct {
	Glider Glider    `cbor:"1,keyasint"`
	Nonce  []byte    `cbor:"2,keyasint"`
	Miner  PublicKey `cbor:"3,keyasint"`
}

// Opens reports whether the reveal opens the given commitment digest.
func (r *GliderReveal) Opens(commitment Hash256) bool {
	return CommitmentDigest(&r.Glider, r.Nonce, r.Miner) == commitment
}

// BattleProof records one resolved match: the grid digests, the Poseidon
// pattern commitments the ZK circuit binds to, the declared winner and the
// regional energies. Proof carries the Groth16 proof bytes when one was
// generated. Block validation checks these fields for consistency only; it
// does not replay the match or verify Proof.
type BattleProof struct {
	InitialGridRoot Hash256  `cbor:"1,keyasint"`
	FinalGridRoot   Hash256  `cbor:"2,keyasint"`
	CommitmentA     [32]byte `cbor:"3,keyasint"`
	CommitmentB     [32]byte `cbor:"4,keyasint"`
	// Winner: 0 = A, 1 = B, 2 = tie.
	Winner       uint8     `cbor:"5,keyasint"`
	EnergyA      uint64    `cbor:"6,keyasint"`
	EnergyB      uint64    `cbor:"7,keyasint"`
	BracketIndex uint32    `cbor:"8,keyasint"`
	MinerA       PublicKey `cbor:"9,keyasint"`
	MinerB       PublicKey `cbor:"10,keyasint"`
	Proof        []byte    `cbor:"11,keyasint,omitempty"`
}
