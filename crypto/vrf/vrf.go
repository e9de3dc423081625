// Package vrf implements a verifiable random function over edwards25519,
// keyed by the node's ed25519 signing key. The output is provably random
// under the signer's key and deterministic given the input, which gives the
// chain its per-block randomness beacon.
//
// The construction follows the ECVRF pattern: hash the input to a curve
// point, raise it to the secret scalar (gamma), and prove the discrete-log
// equality with a Chaum-Pedersen style challenge. The VRF output is a hash
// of gamma, so it is 32 bytes regardless of input length.
package vrf

import (
	"crypto/ed25519"
	"crypto/sha512"

	"filippo.io/edwards25519"

	"github.com/steake/bitcell/errors"
)

const (
	// OutputSize is the size of a VRF output.
	OutputSize = 32

	// ProofSize is gamma(32) || challenge(16) || scalar(32).
	ProofSize = 80

	suiteID = 0x04
)

var (
	ErrInvalidProof = errors.New(errors.ERR_PROOF_VERIFICATION, "vrf: invalid proof")
	ErrInvalidKey   = errors.New(errors.ERR_INVALID_ARGUMENT, "vrf: invalid key")
)

// Prove evaluates the VRF at input under priv, returning the 32-byte output
// and the proof.
func Prove(priv ed25519.PrivateKey, input []byte) ([OutputSize]byte, []byte, error) {
	var output [OutputSize]byte

	if len(priv) != ed25519.PrivateKeySize {
		return output, nil, ErrInvalidKey
	}

	h := sha512.Sum512(priv.Seed())
	x, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return output, nil, ErrInvalidKey
	}

	pub := priv.Public().(ed25519.PublicKey)
	hPoint := hashToCurve(pub, input)

	// gamma = x*H
	gamma := new(edwards25519.Point).ScalarMult(x, hPoint)

	// Deterministic nonce from the second half of the expanded key and H,
	// in the style of ed25519 signing.
	nh := sha512.New()
	nh.Write(h[32:])
	nh.Write(hPoint.Bytes())
	k, err := edwards25519.NewScalar().SetUniformBytes(nh.Sum(nil))
	if err != nil {
		return output, nil, ErrInvalidKey
	}

	kG := new(edwards25519.Point).ScalarBaseMult(k)
	kH := new(edwards25519.Point).ScalarMult(k, hPoint)

	c := challenge(hPoint, gamma, kG, kH)

	// s = k + c*x
	s := edwards25519.NewScalar().MultiplyAdd(c, x, k)

	proof := make([]byte, 0, ProofSize)
	proof = append(proof, gamma.Bytes()...)
	proof = append(proof, c.Bytes()[:16]...)
	proof = append(proof, s.Bytes()...)

	output = proofToOutput(gamma)

	return output, proof, nil
}

// Verify checks proof against pub and input and returns the VRF output it
// commits to.
func Verify(pub ed25519.PublicKey, input, proof []byte) ([OutputSize]byte, error) {
	var output [OutputSize]byte

	if len(pub) != ed25519.PublicKeySize {
		return output, ErrInvalidKey
	}
	if len(proof) != ProofSize {
		return output, ErrInvalidProof
	}

	gamma, err := new(edwards25519.Point).SetBytes(proof[:32])
	if err != nil {
		return output, ErrInvalidProof
	}

	var cBytes [32]byte
	copy(cBytes[:16], proof[32:48])
	c, err := edwards25519.NewScalar().SetCanonicalBytes(cBytes[:])
	if err != nil {
		return output, ErrInvalidProof
	}

	s, err := edwards25519.NewScalar().SetCanonicalBytes(proof[48:80])
	if err != nil {
		return output, ErrInvalidProof
	}

	y, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return output, ErrInvalidKey
	}

	hPoint := hashToCurve(pub, input)

	negC := edwards25519.NewScalar().Negate(c)

	// U = s*G - c*Y
	u := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(negC, y, s)

	// V = s*H - c*gamma
	sH := new(edwards25519.Point).ScalarMult(s, hPoint)
	cGamma := new(edwards25519.Point).ScalarMult(negC, gamma)
	v := new(edwards25519.Point).Add(sH, cGamma)

	cPrime := challenge(hPoint, gamma, u, v)

	if c.Equal(cPrime) != 1 {
		return output, ErrInvalidProof
	}

	return proofToOutput(gamma), nil
}

// hashToCurve maps (pub, input) to a curve point by try-and-increment over
// SHA-512 candidates, clearing the cofactor.
func hashToCurve(pub ed25519.PublicKey, input []byte) *edwards25519.Point {
	for ctr := uint8(0); ; ctr++ {
		h := sha512.New()
		h.Write([]byte{suiteID, 0x01})
		h.Write(pub)
		h.Write(input)
		h.Write([]byte{ctr})
		digest := h.Sum(nil)

		p, err := new(edwards25519.Point).SetBytes(digest[:32])
		if err != nil {
			continue
		}
		return p.MultByCofactor(p)
	}
}

// challenge derives the 16-byte Chaum-Pedersen challenge, zero-extended to
// a canonical scalar.
func challenge(points ...*edwards25519.Point) *edwards25519.Scalar {
	h := sha512.New()
	h.Write([]byte{suiteID, 0x02})
	for _, p := range points {
		h.Write(p.Bytes())
	}
	digest := h.Sum(nil)

	var cBytes [32]byte
	copy(cBytes[:16], digest[:16])
	c, err := edwards25519.NewScalar().SetCanonicalBytes(cBytes[:])
	if err != nil {
		// A 16-byte value is always a canonical scalar.
		panic(err)
	}
	return c
}

func proofToOutput(gamma *edwards25519.Point) [OutputSize]byte {
	cleared := new(edwards25519.Point).MultByCofactor(gamma)

	h := sha512.New()
	h.Write([]byte{suiteID, 0x03})
	h.Write(cleared.Bytes())
	digest := h.Sum(nil)

	var output [OutputSize]byte
	copy(output[:], digest[:OutputSize])
	return output
}
