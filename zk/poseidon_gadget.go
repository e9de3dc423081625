// Package zk holds the Groth16 circuits over BN254: the battle circuit that
// re-executes a CA match under commitment binding, the state-transition and
// nullifier circuits, the shared in-circuit Poseidon and Merkle gadgets,
// and content-addressed key management. Circuit Poseidon shares parameters
// with crypto/poseidon, so native and in-circuit digests are bit-identical.
package zk

import (
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/steake/bitcell/crypto/poseidon"
)

// poseidonGadget evaluates the Poseidon permutation inside a circuit with
// the same parameters as the native hasher.
type poseidonGadget struct {
	t              int
	fullRounds     int
	partialRounds  int
	roundConstants []*big.Int
	mds            [][]*big.Int
}

func newPoseidonGadget() *poseidonGadget {
	params := poseidon.DefaultParams()

	rc := make([]*big.Int, len(params.RoundConstants))
	for i := range params.RoundConstants {
		rc[i] = params.RoundConstants[i].BigInt(new(big.Int))
	}

	mds := make([][]*big.Int, params.T)
	for i := 0; i < params.T; i++ {
		mds[i] = make([]*big.Int, params.T)
		for j := 0; j < params.T; j++ {
			mds[i][j] = params.MDS[i][j].BigInt(new(big.Int))
		}
	}

	return &poseidonGadget{
		t:              params.T,
		fullRounds:     params.FullRounds,
		partialRounds:  params.PartialRounds,
		roundConstants: rc,
		mds:            mds,
	}
}

// hashTwo is the in-circuit 2-to-1 compression: state (0, left, right).
func (g *poseidonGadget) hashTwo(api frontend.API, left, right frontend.Variable) frontend.Variable {
	state := []frontend.Variable{0, left, right}
	g.permutation(api, state)
	return state[0]
}

// hashOne hashes a single variable.
func (g *poseidonGadget) hashOne(api frontend.API, input frontend.Variable) frontend.Variable {
	state := []frontend.Variable{0, input, 0}
	g.permutation(api, state)
	return state[0]
}

// hashMany absorbs inputs with the rate-2 sponge, mirroring the native
// HashMany.
func (g *poseidonGadget) hashMany(api frontend.API, inputs []frontend.Variable) frontend.Variable {
	rate := g.t - 1
	state := make([]frontend.Variable, g.t)
	for i := range state {
		state[i] = 0
	}

	for start := 0; start < len(inputs); start += rate {
		end := start + rate
		if end > len(inputs) {
			end = len(inputs)
		}
		for i, in := range inputs[start:end] {
			state[i+1] = api.Add(state[i+1], in)
		}
		g.permutation(api, state)
	}

	return state[0]
}

func (g *poseidonGadget) permutation(api frontend.API, state []frontend.Variable) {
	rf := g.fullRounds / 2

	round := 0

	for i := 0; i < rf; i++ {
		g.addRoundConstants(api, state, round)
		g.fullSBox(api, state)
		g.mdsMultiply(api, state)
		round++
	}

	for i := 0; i < g.partialRounds; i++ {
		g.addRoundConstants(api, state, round)
		state[0] = sboxVar(api, state[0])
		g.mdsMultiply(api, state)
		round++
	}

	for i := 0; i < rf; i++ {
		g.addRoundConstants(api, state, round)
		g.fullSBox(api, state)
		g.mdsMultiply(api, state)
		round++
	}
}

func (g *poseidonGadget) addRoundConstants(api frontend.API, state []frontend.Variable, round int) {
	offset := round * g.t
	for i := range state {
		state[i] = api.Add(state[i], g.roundConstants[offset+i])
	}
}

func (g *poseidonGadget) fullSBox(api frontend.API, state []frontend.Variable) {
	for i := range state {
		state[i] = sboxVar(api, state[i])
	}
}

// sboxVar computes x^5 as (x^2)^2 * x.
func sboxVar(api frontend.API, x frontend.Variable) frontend.Variable {
	x2 := api.Mul(x, x)
	x4 := api.Mul(x2, x2)
	return api.Mul(x4, x)
}

func (g *poseidonGadget) mdsMultiply(api frontend.API, state []frontend.Variable) {
	newState := make([]frontend.Variable, g.t)
	for i := 0; i < g.t; i++ {
		acc := frontend.Variable(0)
		for j := 0; j < g.t; j++ {
			acc = api.Add(acc, api.Mul(g.mds[i][j], state[j]))
		}
		newState[i] = acc
	}
	copy(state, newState)
}
