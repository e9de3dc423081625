// Package poseidon implements the Poseidon hash over the BN254 scalar field,
// used both natively (commitments, state roots) and mirrored in-circuit by
// the zk package. Native and in-circuit evaluation are bit-identical: they
// share the parameters generated here.
//
// Parameters target 128-bit security per the Poseidon specification
// (https://eprint.iacr.org/2019/458.pdf): state width t = 3, 8 full rounds,
// 57 partial rounds, x^5 S-box, Cauchy MDS matrix, round constants from
// domain-separated SHA-256, truncated to 31 bytes so each lies in the field.
package poseidon

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	// FullRounds is the number of full rounds (RF).
	FullRounds = 8

	// PartialRounds is the number of partial rounds for t=3 (RP).
	PartialRounds = 57

	// StateWidth is the sponge state width for 2-to-1 compression (t).
	StateWidth = 3

	roundConstantDomain = "BitCell_Poseidon_RC"
)

// Params holds the shared Poseidon parameters.
type Params struct {
	T              int
	FullRounds     int
	PartialRounds  int
	RoundConstants []fr.Element
	MDS            [][]fr.Element
}

var (
	paramsOnce   sync.Once
	globalParams *Params
)

// DefaultParams returns the BN254 2-to-1 parameter set. The set is generated
// once and shared; callers must not mutate it.
func DefaultParams() *Params {
	paramsOnce.Do(func() {
		globalParams = &Params{
			T:              StateWidth,
			FullRounds:     FullRounds,
			PartialRounds:  PartialRounds,
			RoundConstants: generateRoundConstants(StateWidth, FullRounds, PartialRounds),
			MDS:            generateMDSMatrix(StateWidth),
		}
	})
	return globalParams
}

// generateRoundConstants derives t*(RF+RP) constants from SHA-256 used as a
// PRF. Candidates are 31-byte little-endian integers, always below the BN254
// modulus, so every candidate is accepted; maxIterations only bounds the
// loop.
func generateRoundConstants(t, fullRounds, partialRounds int) []fr.Element {
	total := t * (fullRounds + partialRounds)
	constants := make([]fr.Element, 0, total)

	const maxIterations = 1_000_000

	var counter uint64
	for len(constants) < total {
		if counter >= maxIterations {
			panic("poseidon: round constant generation exceeded iteration bound")
		}

		h := sha256.New()
		h.Write([]byte(roundConstantDomain))
		h.Write(binary.LittleEndian.AppendUint64(nil, counter))
		h.Write(binary.LittleEndian.AppendUint64(nil, uint64(t)))
		digest := h.Sum(nil)

		// 31 bytes little-endian, top byte zero: always < p.
		var be [32]byte
		for i := 0; i < 31; i++ {
			be[31-i] = digest[i]
		}

		var fe fr.Element
		fe.SetBytes(be[:])
		constants = append(constants, fe)

		counter++
	}

	return constants
}

// generateMDSMatrix builds the Cauchy matrix M[i][j] = 1/(x_i + y_j) with
// x = {1..t} and y = {t+1..2t}. The x values are distinct, the y values are
// distinct and every sum is non-zero, so the matrix is MDS and every entry
// is invertible.
func generateMDSMatrix(t int) [][]fr.Element {
	matrix := make([][]fr.Element, t)
	for i := 0; i < t; i++ {
		matrix[i] = make([]fr.Element, t)
		for j := 0; j < t; j++ {
			var sum fr.Element
			sum.SetUint64(uint64(i + 1 + t + j + 1))
			matrix[i][j].Inverse(&sum)
		}
	}
	return matrix
}

// Hasher computes Poseidon hashes with a fixed parameter set.
type Hasher struct {
	params *Params
}

// New returns a hasher over the default BN254 parameters.
func New() *Hasher {
	return &Hasher{params: DefaultParams()}
}

// HashTwo is the 2-to-1 compression used by Merkle trees: state (0, l, r).
func (h *Hasher) HashTwo(left, right fr.Element) fr.Element {
	state := [StateWidth]fr.Element{{}, left, right}
	h.permutation(state[:])
	return state[0]
}

// HashOne hashes a single field element.
func (h *Hasher) HashOne(input fr.Element) fr.Element {
	state := [StateWidth]fr.Element{}
	state[1] = input
	h.permutation(state[:])
	return state[0]
}

// HashMany absorbs inputs with a rate-2 sponge (capacity 1) and squeezes one
// element.
func (h *Hasher) HashMany(inputs []fr.Element) fr.Element {
	rate := h.params.T - 1
	state := make([]fr.Element, h.params.T)

	for start := 0; start < len(inputs); start += rate {
		end := start + rate
		if end > len(inputs) {
			end = len(inputs)
		}
		for i, in := range inputs[start:end] {
			state[i+1].Add(&state[i+1], &in)
		}
		h.permutation(state)
	}

	return state[0]
}

func (h *Hasher) permutation(state []fr.Element) {
	rf := h.params.FullRounds / 2
	rp := h.params.PartialRounds

	round := 0

	for i := 0; i < rf; i++ {
		h.addRoundConstants(state, round)
		h.fullSBox(state)
		h.mdsMultiply(state)
		round++
	}

	for i := 0; i < rp; i++ {
		h.addRoundConstants(state, round)
		sbox(&state[0])
		h.mdsMultiply(state)
		round++
	}

	for i := 0; i < rf; i++ {
		h.addRoundConstants(state, round)
		h.fullSBox(state)
		h.mdsMultiply(state)
		round++
	}
}

func (h *Hasher) addRoundConstants(state []fr.Element, round int) {
	offset := round * h.params.T
	for i := range state {
		state[i].Add(&state[i], &h.params.RoundConstants[offset+i])
	}
}

func (h *Hasher) fullSBox(state []fr.Element) {
	for i := range state {
		sbox(&state[i])
	}
}

// sbox computes x^5 in place as (x^2)^2 * x.
func sbox(x *fr.Element) {
	var x2, x4 fr.Element
	x2.Square(x)
	x4.Square(&x2)
	x.Mul(&x4, x)
}

func (h *Hasher) mdsMultiply(state []fr.Element) {
	t := h.params.T
	newState := make([]fr.Element, t)
	var tmp fr.Element
	for i := 0; i < t; i++ {
		for j := 0; j < t; j++ {
			tmp.Mul(&h.params.MDS[i][j], &state[j])
			newState[i].Add(&newState[i], &tmp)
		}
	}
	copy(state, newState)
}

// HashTwo hashes a pair with the default parameters.
func HashTwo(left, right fr.Element) fr.Element {
	return New().HashTwo(left, right)
}

// HashOne hashes a single element with the default parameters.
func HashOne(input fr.Element) fr.Element {
	return New().HashOne(input)
}

// HashMany hashes a slice with the default parameters.
func HashMany(inputs []fr.Element) fr.Element {
	return New().HashMany(inputs)
}
