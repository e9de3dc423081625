package zk

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/steake/bitcell/battle"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

// NativeProofBuilder assembles battle proofs without a SNARK: grid digests,
// Poseidon pattern commitments and energies. Groth16ProofBuilder builds the
// same fields and attaches a SNARK; the node binary wires this native
// builder.
type NativeProofBuilder struct{}

// NewNativeProofBuilder returns the SNARK-less builder.
func NewNativeProofBuilder() *NativeProofBuilder {
	return &NativeProofBuilder{}
}

func (b *NativeProofBuilder) Build(result *battle.Result, gliderA, gliderB *model.GliderReveal, bracketIndex uint32) (*model.BattleProof, error) {
	return buildBaseProof(result, gliderA, gliderB, bracketIndex), nil
}

func buildBaseProof(result *battle.Result, gliderA, gliderB *model.GliderReveal, bracketIndex uint32) *model.BattleProof {
	left, right := HalfCells(result.InitialGrid)
	commitA := PatternCommitment(left, NonceToField(gliderA.Nonce))
	commitB := PatternCommitment(right, NonceToField(gliderB.Nonce))

	proof := &model.BattleProof{
		InitialGridRoot: result.InitialGrid.Digest(),
		FinalGridRoot:   result.FinalGrid.Digest(),
		CommitmentA:     commitA.Bytes(),
		CommitmentB:     commitB.Bytes(),
		Winner:          uint8(result.Winner),
		EnergyA:         result.EnergyA,
		EnergyB:         result.EnergyB,
		BracketIndex:    bracketIndex,
		MinerA:          gliderA.Miner,
		MinerB:          gliderB.Miner,
	}
	return proof
}

// Groth16ProofBuilder attaches a Groth16 proof from the battle circuit to
// every battle proof it builds.
type Groth16ProofBuilder struct {
	prover   *Prover
	gridSize int
	steps    int
}

// NewGroth16ProofBuilder wraps an initialized prover for the given
// calibration. The calibration must match the engine that produced the
// results.
func NewGroth16ProofBuilder(prover *Prover, gridSize, steps int) *Groth16ProofBuilder {
	return &Groth16ProofBuilder{prover: prover, gridSize: gridSize, steps: steps}
}

func (b *Groth16ProofBuilder) Build(result *battle.Result, gliderA, gliderB *model.GliderReveal, bracketIndex uint32) (*model.BattleProof, error) {
	proof := buildBaseProof(result, gliderA, gliderB, bracketIndex)

	assignment := b.assign(result, gliderA, gliderB, proof)

	proofBytes, err := b.prover.Prove(assignment)
	if err != nil {
		return nil, err
	}
	proof.Proof = proofBytes

	return proof, nil
}

// assign fills a full witness assignment for the battle circuit.
func (b *Groth16ProofBuilder) assign(result *battle.Result, gliderA, gliderB *model.GliderReveal, proof *model.BattleProof) *BattleCircuit {
	c := NewBattleCircuit(b.gridSize, b.steps)

	assignGrid(c.InitialGrid, result.InitialGrid)
	assignGrid(c.FinalGrid, result.FinalGrid)

	left, right := HalfCells(result.InitialGrid)
	for i, cell := range left {
		c.PatternA[i] = int(cell)
	}
	for i, cell := range right {
		c.PatternB[i] = int(cell)
	}

	var commitA, commitB fr.Element
	commitA.SetBytes(proof.CommitmentA[:])
	commitB.SetBytes(proof.CommitmentB[:])
	c.CommitmentA = commitA.BigInt(new(big.Int))
	c.CommitmentB = commitB.BigInt(new(big.Int))

	nonceA := NonceToField(gliderA.Nonce)
	nonceB := NonceToField(gliderB.Nonce)
	c.NonceA = nonceA.BigInt(new(big.Int))
	c.NonceB = nonceB.BigInt(new(big.Int))

	c.Winner = int(proof.Winner)

	return c
}

func assignGrid(vars []frontend.Variable, grid *battle.Grid) {
	for i, cell := range grid.Cells() {
		vars[i] = int(cell)
	}
}

// VerifyBattleReplay re-runs the deterministic CA on the revealed patterns
// and checks the battle proof's digests, energies, commitments and winner.
// It does not look at an attached Groth16 proof; VerifyBattleProofSNARK
// checks that.
func VerifyBattleReplay(engine *battle.Engine, proof *model.BattleProof, gliderA, gliderB *model.GliderReveal, entropy [32]byte) error {
	result, err := engine.Run(&gliderA.Glider, &gliderB.Glider, entropy)
	if err != nil {
		return err
	}

	if result.InitialGrid.Digest() != proof.InitialGridRoot {
		return errors.NewProofVerificationError("initial grid digest mismatch")
	}
	if result.FinalGrid.Digest() != proof.FinalGridRoot {
		return errors.NewProofVerificationError("final grid digest mismatch")
	}
	if result.EnergyA != proof.EnergyA || result.EnergyB != proof.EnergyB {
		return errors.NewProofVerificationError("regional energy mismatch")
	}
	if uint8(result.Winner) != proof.Winner {
		return errors.NewProofVerificationError("winner mismatch")
	}

	left, right := HalfCells(result.InitialGrid)
	commitA := PatternCommitment(left, NonceToField(gliderA.Nonce))
	if commitA.Bytes() != proof.CommitmentA {
		return errors.NewProofVerificationError("commitment A mismatch")
	}
	commitB := PatternCommitment(right, NonceToField(gliderB.Nonce))
	if commitB.Bytes() != proof.CommitmentB {
		return errors.NewProofVerificationError("commitment B mismatch")
	}

	return nil
}

// VerifyBattleProofSNARK checks an attached Groth16 proof against the
// given grids. It does not compare the grids with the proof's digests;
// VerifyBattleReplay does.
func VerifyBattleProofSNARK(prover *Prover, proof *model.BattleProof, initial, final *battle.Grid, gridSize, steps int) (bool, error) {
	if len(proof.Proof) == 0 {
		return false, errors.NewProofVerificationError("no proof attached")
	}

	public := NewBattleCircuit(gridSize, steps)
	assignGrid(public.InitialGrid, initial)
	assignGrid(public.FinalGrid, final)

	var commitA, commitB fr.Element
	commitA.SetBytes(proof.CommitmentA[:])
	commitB.SetBytes(proof.CommitmentB[:])
	public.CommitmentA = commitA.BigInt(new(big.Int))
	public.CommitmentB = commitB.BigInt(new(big.Int))
	public.Winner = int(proof.Winner)

	return prover.Verify(proof.Proof, public)
}
