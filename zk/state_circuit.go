package zk

import (
	"github.com/consensys/gnark/frontend"
)

// StateCircuit proves a single-leaf state transition: the old leaf sits in
// the tree under old_root, the nullifier and the new commitment derive from
// the leaves, and replacing the leaf along the same path yields new_root.
//
// Public inputs, in order: old_root, new_root, nullifier, commitment.
type StateCircuit struct {
	OldRoot    frontend.Variable `gnark:",public"`
	NewRoot    frontend.Variable `gnark:",public"`
	Nullifier  frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`

	Leaf    frontend.Variable   `gnark:",secret"`
	NewLeaf frontend.Variable   `gnark:",secret"`
	Path    []frontend.Variable `gnark:",secret"`
	Indices []frontend.Variable `gnark:",secret"`
}

// NewStateCircuit allocates a circuit shell at the fixed Merkle depth.
func NewStateCircuit() *StateCircuit {
	return &StateCircuit{
		Path:    make([]frontend.Variable, MerkleDepth),
		Indices: make([]frontend.Variable, MerkleDepth),
	}
}

func (c *StateCircuit) Define(api frontend.API) error {
	gadget := newPoseidonGadget()

	// Old leaf inclusion.
	oldRoot := merkleRoot(api, gadget, c.Leaf, c.Path, c.Indices)
	api.AssertIsEqual(oldRoot, c.OldRoot)

	// Nullifier derivation: H(leaf).
	api.AssertIsEqual(gadget.hashOne(api, c.Leaf), c.Nullifier)

	// Commitment derivation: H(new_leaf).
	api.AssertIsEqual(gadget.hashOne(api, c.NewLeaf), c.Commitment)

	// New leaf inclusion along the same path.
	newRoot := merkleRoot(api, gadget, c.NewLeaf, c.Path, c.Indices)
	api.AssertIsEqual(newRoot, c.NewRoot)

	return nil
}

// NullifierCircuit proves (non-)membership of a nullifier in the nullifier
// set: is_member = 1 asserts the path terminates at set_root for the
// nullifier leaf; is_member = 0 asserts it does not.
//
// Public inputs, in order: nullifier, set_root, is_member.
type NullifierCircuit struct {
	Nullifier frontend.Variable `gnark:",public"`
	SetRoot   frontend.Variable `gnark:",public"`
	IsMember  frontend.Variable `gnark:",public"`

	Path    []frontend.Variable `gnark:",secret"`
	Indices []frontend.Variable `gnark:",secret"`
}

// NewNullifierCircuit allocates a circuit shell at the fixed Merkle depth.
func NewNullifierCircuit() *NullifierCircuit {
	return &NullifierCircuit{
		Path:    make([]frontend.Variable, MerkleDepth),
		Indices: make([]frontend.Variable, MerkleDepth),
	}
}

func (c *NullifierCircuit) Define(api frontend.API) error {
	gadget := newPoseidonGadget()

	api.AssertIsBoolean(c.IsMember)

	leaf := gadget.hashOne(api, c.Nullifier)
	computedRoot := merkleRoot(api, gadget, leaf, c.Path, c.Indices)

	rootMatches := api.IsZero(api.Sub(computedRoot, c.SetRoot))
	api.AssertIsEqual(rootMatches, c.IsMember)

	return nil
}
