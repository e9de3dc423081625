// Package clsag implements CLSAG (Concise Linkable Spontaneous Anonymous
// Group) ring signatures over the ristretto255 group, used to commit to
// tournament entries anonymously within an eligible miner ring.
//
// Ring sizes are bounded: minimum 11 for an adequate anonymity set, maximum
// 64 to keep verification affordable, default 16. Two signatures produced by
// the same ring secret share a key image, which links them without revealing
// the signer.
package clsag

import (
	"crypto/rand"
	"crypto/sha512"

	"github.com/fxamacker/cbor/v2"
	"github.com/gtank/ristretto255"

	"github.com/steake/bitcell/errors"
)

const (
	// MinRingSize is the smallest accepted ring.
	MinRingSize = 11

	// MaxRingSize is the largest accepted ring.
	MaxRingSize = 64

	// DefaultRingSize is the recommended ring size.
	DefaultRingSize = 16
)

const (
	domainHashToPoint  = "CLSAG_HASH_TO_POINT"
	domainHashToScalar = "CLSAG_HASH_TO_SCALAR"
)

// PublicKey is a compressed ristretto255 point.
type PublicKey [32]byte

// KeyImage is the linkable identifier x*Hp(P) of a ring secret.
type KeyImage [32]byte

// SecretKey is a ristretto255 scalar. The zero value is unusable; construct
// with GenerateSecretKey or SecretKeyFromBytes.
type SecretKey struct {
	x *ristretto255.Scalar
}

// GenerateSecretKey creates a fresh ring secret from crypto/rand.
func GenerateSecretKey() (*SecretKey, error) {
	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errors.New(errors.ERR_ERROR, "ring key generation failed", err)
	}
	x := ristretto255.NewScalar()
	if _, err := x.SetUniformBytes(seed[:]); err != nil {
		return nil, errors.New(errors.ERR_ERROR, "ring key generation failed", err)
	}
	return &SecretKey{x: x}, nil
}

// SecretKeyFromBytes builds a secret key from a 64-byte uniform seed.
func SecretKeyFromBytes(seed []byte) (*SecretKey, error) {
	if len(seed) != 64 {
		return nil, errors.NewInvalidArgumentError("ring key seed must be 64 bytes, got %d", len(seed))
	}
	x := ristretto255.NewScalar()
	if _, err := x.SetUniformBytes(seed); err != nil {
		return nil, errors.NewInvalidArgumentError("invalid ring key seed", err)
	}
	return &SecretKey{x: x}, nil
}

// PublicKey returns x*G compressed.
func (sk *SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	p := ristretto255.NewElement().ScalarBaseMult(sk.x)
	copy(pk[:], p.Encode(nil))
	return pk
}

// KeyImage returns x*Hp(P), the deterministic linkable identifier.
func (sk *SecretKey) KeyImage() KeyImage {
	var ki KeyImage
	pk := sk.PublicKey()
	hp := hashToPoint(pk[:])
	p := ristretto255.NewElement().ScalarMult(sk.x, hp)
	copy(ki[:], p.Encode(nil))
	return ki
}

func (pk PublicKey) point() (*ristretto255.Element, error) {
	e := ristretto255.NewElement()
	if err := e.Decode(pk[:]); err != nil {
		return nil, errors.NewRingSignatureError("invalid ring public key", err)
	}
	return e, nil
}

func (ki KeyImage) point() (*ristretto255.Element, error) {
	e := ristretto255.NewElement()
	if err := e.Decode(ki[:]); err != nil {
		return nil, errors.NewRingSignatureError("invalid key image", err)
	}
	return e, nil
}

// Signature is a CLSAG ring signature. The embedded key image links
// signatures by the same secret.
type Signature struct {
	KeyImage KeyImage   `cbor:"1,keyasint"`
	C1       [32]byte   `cbor:"2,keyasint"`
	S        [][32]byte `cbor:"3,keyasint"`
}

// Sign produces a ring signature over message. The signer's public key must
// appear in ring.
func Sign(sk *SecretKey, ring []PublicKey, message []byte) (*Signature, error) {
	if err := checkRingSize(len(ring)); err != nil {
		return nil, err
	}

	signerPK := sk.PublicKey()
	pi := -1
	for i, pk := range ring {
		if pk == signerPK {
			pi = i
			break
		}
	}
	if pi < 0 {
		return nil, errors.NewRingSignatureError("signer not in ring")
	}

	n := len(ring)
	keyImage := sk.KeyImage()

	ringPoints := make([]*ristretto255.Element, n)
	for i, pk := range ring {
		p, err := pk.point()
		if err != nil {
			return nil, err
		}
		ringPoints[i] = p
	}

	kiPoint, err := keyImage.point()
	if err != nil {
		return nil, err
	}
	hpPi := hashToPoint(ring[pi][:])

	alpha, err := randomScalar()
	if err != nil {
		return nil, err
	}

	// L_pi = alpha*G, R_pi = alpha*Hp(P_pi)
	lPi := ristretto255.NewElement().ScalarBaseMult(alpha)
	rPi := ristretto255.NewElement().ScalarMult(alpha, hpPi)

	ringBytes := encodeRing(ringPoints)

	c := make([]*ristretto255.Scalar, n)
	s := make([]*ristretto255.Scalar, n)

	nextIdx := (pi + 1) % n
	c[nextIdx] = hashToScalar(message, ringBytes, keyImage[:], lPi.Encode(nil), rPi.Encode(nil))

	idx := nextIdx
	for idx != pi {
		s[idx], err = randomScalar()
		if err != nil {
			return nil, err
		}

		// L_j = s_j*G + c_j*P_j
		lJ := ristretto255.NewElement().ScalarBaseMult(s[idx])
		lJ.Add(lJ, ristretto255.NewElement().ScalarMult(c[idx], ringPoints[idx]))

		// R_j = s_j*Hp(P_j) + c_j*KI
		hpJ := hashToPoint(ring[idx][:])
		rJ := ristretto255.NewElement().ScalarMult(s[idx], hpJ)
		rJ.Add(rJ, ristretto255.NewElement().ScalarMult(c[idx], kiPoint))

		next := (idx + 1) % n
		c[next] = hashToScalar(message, ringBytes, keyImage[:], lJ.Encode(nil), rJ.Encode(nil))

		idx = next
	}

	// Close the ring: s_pi = alpha - c_pi*x
	sPi := ristretto255.NewScalar().Multiply(c[pi], sk.x)
	s[pi] = ristretto255.NewScalar().Subtract(alpha, sPi)

	sig := &Signature{KeyImage: keyImage}
	copy(sig.C1[:], c[0].Encode(nil))
	sig.S = make([][32]byte, n)
	for i := range s {
		copy(sig.S[i][:], s[i].Encode(nil))
	}

	return sig, nil
}

// Verify recomputes the ring equation. On success the caller may trust the
// embedded key image. Verification failure is reported with a single opaque
// error kind to avoid a side-channel between "wrong ring" and "wrong
// signature".
func (sig *Signature) Verify(ring []PublicKey, message []byte) error {
	if err := checkRingSize(len(ring)); err != nil {
		return err
	}

	n := len(ring)
	if len(sig.S) != n {
		return errors.NewRingSignatureError("ring signature verification failed")
	}

	ringPoints := make([]*ristretto255.Element, n)
	for i, pk := range ring {
		p, err := pk.point()
		if err != nil {
			return errors.NewRingSignatureError("ring signature verification failed")
		}
		ringPoints[i] = p
	}

	kiPoint, err := sig.KeyImage.point()
	if err != nil {
		return errors.NewRingSignatureError("ring signature verification failed")
	}

	c1 := ristretto255.NewScalar()
	if err := c1.Decode(sig.C1[:]); err != nil {
		return errors.NewRingSignatureError("ring signature verification failed")
	}

	s := make([]*ristretto255.Scalar, n)
	for i := range sig.S {
		s[i] = ristretto255.NewScalar()
		if err := s[i].Decode(sig.S[i][:]); err != nil {
			return errors.NewRingSignatureError("ring signature verification failed")
		}
	}

	ringBytes := encodeRing(ringPoints)

	c := c1
	for j := 0; j < n; j++ {
		// L_j = s_j*G + c_j*P_j
		lJ := ristretto255.NewElement().ScalarBaseMult(s[j])
		lJ.Add(lJ, ristretto255.NewElement().ScalarMult(c, ringPoints[j]))

		// R_j = s_j*Hp(P_j) + c_j*KI
		hpJ := hashToPoint(ring[j][:])
		rJ := ristretto255.NewElement().ScalarMult(s[j], hpJ)
		rJ.Add(rJ, ristretto255.NewElement().ScalarMult(c, kiPoint))

		c = hashToScalar(message, ringBytes, sig.KeyImage[:], lJ.Encode(nil), rJ.Encode(nil))
	}

	// The ring closes iff the final challenge equals c1.
	if c.Equal(c1) != 1 {
		return errors.NewRingSignatureError("ring signature verification failed")
	}

	return nil
}

// Serialize encodes the signature for transport.
func (sig *Signature) Serialize() ([]byte, error) {
	return sigEncMode.Marshal(sig)
}

// DeserializeSignature decodes a signature.
func DeserializeSignature(data []byte) (*Signature, error) {
	var sig Signature
	if err := cbor.Unmarshal(data, &sig); err != nil {
		return nil, errors.NewRingSignatureError("ring signature decode failed", err)
	}
	return &sig, nil
}

var sigEncMode cbor.EncMode

func init() {
	var err error
	sigEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

func checkRingSize(n int) error {
	if n < MinRingSize {
		return errors.NewRingSizeError("ring size %d is below minimum %d", n, MinRingSize)
	}
	if n > MaxRingSize {
		return errors.NewRingSizeError("ring size %d exceeds maximum %d", n, MaxRingSize)
	}
	return nil
}

func randomScalar() (*ristretto255.Scalar, error) {
	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errors.New(errors.ERR_ERROR, "scalar generation failed", err)
	}
	s := ristretto255.NewScalar()
	if _, err := s.SetUniformBytes(seed[:]); err != nil {
		return nil, errors.New(errors.ERR_ERROR, "scalar generation failed", err)
	}
	return s, nil
}

func encodeRing(points []*ristretto255.Element) []byte {
	out := make([]byte, 0, len(points)*32)
	for _, p := range points {
		out = p.Encode(out)
	}
	return out
}

// hashToPoint derives a ristretto point from data via SHA-512 (Hp).
func hashToPoint(data []byte) *ristretto255.Element {
	h := sha512.New()
	h.Write([]byte(domainHashToPoint))
	h.Write(data)
	digest := h.Sum(nil)

	s := ristretto255.NewScalar()
	var wide [64]byte
	copy(wide[:32], digest[:32])
	if _, err := s.SetUniformBytes(wide[:]); err != nil {
		panic(err)
	}
	return ristretto255.NewElement().ScalarBaseMult(s)
}

// hashToScalar derives a challenge scalar from the transcript parts.
func hashToScalar(parts ...[]byte) *ristretto255.Scalar {
	h := sha512.New()
	h.Write([]byte(domainHashToScalar))
	for _, part := range parts {
		h.Write(part)
	}
	digest := h.Sum(nil)

	s := ristretto255.NewScalar()
	var wide [64]byte
	copy(wide[:32], digest[:32])
	if _, err := s.SetUniformBytes(wide[:]); err != nil {
		panic(err)
	}
	return s
}
