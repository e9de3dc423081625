package zk

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/steake/bitcell/crypto/poseidon"
)

// MerkleDepth is the fixed depth of the Poseidon Merkle trees used by the
// state and nullifier circuits.
const MerkleDepth = 32

// merkleRoot recomputes a root in-circuit from a leaf, its siblings and the
// direction bits: bit set means the sibling sits on the left.
func merkleRoot(api frontend.API, gadget *poseidonGadget, leaf frontend.Variable, path []frontend.Variable, indices []frontend.Variable) frontend.Variable {
	current := leaf

	for level := 0; level < len(path); level++ {
		sibling := path[level]
		dir := indices[level]
		api.AssertIsBoolean(dir)

		left := api.Select(dir, sibling, current)
		right := api.Select(dir, current, sibling)

		current = gadget.hashTwo(api, left, right)
	}

	return current
}

// ComputeMerkleRoot is the native twin of the in-circuit path computation.
func ComputeMerkleRoot(leaf fr.Element, path []fr.Element, indices []bool) fr.Element {
	hasher := poseidon.New()
	current := leaf

	for level := 0; level < len(path); level++ {
		if indices[level] {
			current = hasher.HashTwo(path[level], current)
		} else {
			current = hasher.HashTwo(current, path[level])
		}
	}

	return current
}
