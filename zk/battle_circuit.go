package zk

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/steake/bitcell/battle"
	"github.com/steake/bitcell/crypto/poseidon"
)

// Circuit calibration. Production runs the full grid; the circuit is
// parameterized at compile time and the verifier key is tied to the choice.
const (
	// TestGridSize keeps the circuit practical for proving.
	TestGridSize = 64

	// TestBattleSteps matches TestGridSize.
	TestBattleSteps = 10
)

// BattleCircuit proves that (initial_grid, final_grid, commitment_a,
// commitment_b, winner) is the honest output of a CA match on private
// patterns matching the commitments.
//
// Public inputs, in order: flattened initial grid, flattened final grid,
// commitment A, commitment B, winner (0 = A, 1 = B, 2 = tie).
// Private witnesses: the placed half-grid patterns and the two nonces.
type BattleCircuit struct {
	InitialGrid []frontend.Variable `gnark:",public"`
	FinalGrid   []frontend.Variable `gnark:",public"`
	CommitmentA frontend.Variable   `gnark:",public"`
	CommitmentB frontend.Variable   `gnark:",public"`
	Winner      frontend.Variable   `gnark:",public"`

	PatternA []frontend.Variable `gnark:",secret"`
	PatternB []frontend.Variable `gnark:",secret"`
	NonceA   frontend.Variable   `gnark:",secret"`
	NonceB   frontend.Variable   `gnark:",secret"`

	gridSize int
	steps    int
}

// NewBattleCircuit allocates a circuit shell for the given calibration.
func NewBattleCircuit(gridSize, steps int) *BattleCircuit {
	cells := gridSize * gridSize
	half := cells / 2
	return &BattleCircuit{
		InitialGrid: make([]frontend.Variable, cells),
		FinalGrid:   make([]frontend.Variable, cells),
		PatternA:    make([]frontend.Variable, half),
		PatternB:    make([]frontend.Variable, half),
		gridSize:    gridSize,
		steps:       steps,
	}
}

// Define wires the five constraint groups: commitment binding, placement,
// Conway evolution, final-grid equality, and winner derivation.
func (c *BattleCircuit) Define(api frontend.API) error {
	gadget := newPoseidonGadget()

	// 1. Commitment binding: Poseidon(pattern || nonce) == commitment.
	hashInputsA := make([]frontend.Variable, 0, len(c.PatternA)+1)
	hashInputsA = append(hashInputsA, c.PatternA...)
	hashInputsA = append(hashInputsA, c.NonceA)
	api.AssertIsEqual(gadget.hashMany(api, hashInputsA), c.CommitmentA)

	hashInputsB := make([]frontend.Variable, 0, len(c.PatternB)+1)
	hashInputsB = append(hashInputsB, c.PatternB...)
	hashInputsB = append(hashInputsB, c.NonceB)
	api.AssertIsEqual(gadget.hashMany(api, hashInputsB), c.CommitmentB)

	// 2. Placement: the initial grid is the empty grid with pattern A
	// stamped over the left half and pattern B over the right.
	size := c.gridSize
	half := size / 2
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			cell := c.InitialGrid[row*size+col]
			if col < half {
				api.AssertIsEqual(cell, c.PatternA[row*half+col])
			} else {
				api.AssertIsEqual(cell, c.PatternB[row*half+(col-half)])
			}
		}
	}

	// 3. Conway evolution for N steps.
	current := c.InitialGrid
	for step := 0; step < c.steps; step++ {
		current = conwayStep(api, current, size)
	}

	// 4. The evolved grid equals the declared final grid.
	for i := range current {
		api.AssertIsEqual(current[i], c.FinalGrid[i])
	}

	// 5. Winner from regional energy over the declared final grid.
	energyA := frontend.Variable(0)
	energyB := frontend.Variable(0)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			cell := c.FinalGrid[row*size+col]
			if col < half {
				energyA = api.Add(energyA, cell)
			} else {
				energyB = api.Add(energyB, cell)
			}
		}
	}

	cmp := api.Cmp(energyA, energyB)
	aWins := api.IsZero(api.Sub(cmp, 1))
	bWins := api.IsZero(api.Add(cmp, 1))
	tie := api.IsZero(cmp)

	computedWinner := api.Add(bWins, api.Mul(tie, 2))
	// Exactly one branch holds; aWins contributes 0 by construction.
	api.AssertIsEqual(api.Add(api.Add(aWins, bWins), tie), 1)
	api.AssertIsEqual(computedWinner, c.Winner)

	return nil
}

// conwayStep applies one B3/S23 tick with the energy overlay: birth to
// MaxEnergy, survival decays to a floor of 1, death to 0. Mirrors
// battle.Grid.Step bit for bit.
func conwayStep(api frontend.API, grid []frontend.Variable, size int) []frontend.Variable {
	alive := make([]frontend.Variable, len(grid))
	for i, cell := range grid {
		alive[i] = api.Sub(1, api.IsZero(cell))
	}

	next := make([]frontend.Variable, len(grid))
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			idx := row*size + col

			neighbors := frontend.Variable(0)
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					nr := ((row + dr) + size) % size
					nc := ((col + dc) + size) % size
					neighbors = api.Add(neighbors, alive[nr*size+nc])
				}
			}

			hasTwo := api.IsZero(api.Sub(neighbors, 2))
			hasThree := api.IsZero(api.Sub(neighbors, 3))

			survives := api.Mul(alive[idx], api.Add(hasTwo, hasThree))
			births := api.Mul(api.Sub(1, alive[idx]), hasThree)

			// Survivor energy: e-1 floored at 1.
			energy := grid[idx]
			isFloor := api.IsZero(api.Sub(energy, 1))
			decayed := api.Select(isFloor, 1, api.Sub(energy, 1))

			next[idx] = api.Add(
				api.Mul(survives, decayed),
				api.Mul(births, battle.MaxEnergy),
			)
		}
	}
	return next
}

// PatternCommitment is the native twin of the in-circuit commitment
// binding: Poseidon sponge over the placed half-grid cells plus the nonce.
func PatternCommitment(halfCells []uint8, nonce fr.Element) fr.Element {
	inputs := make([]fr.Element, 0, len(halfCells)+1)
	for _, cell := range halfCells {
		var fe fr.Element
		fe.SetUint64(uint64(cell))
		inputs = append(inputs, fe)
	}
	inputs = append(inputs, nonce)
	return poseidon.HashMany(inputs)
}

// NonceToField maps an arbitrary reveal nonce into the scalar field.
func NonceToField(nonce []byte) fr.Element {
	var fe fr.Element
	fe.SetBytes(nonce)
	return fe
}

// HalfCells splits a grid's row-major cells into (left, right) halves,
// each row-major over its half.
func HalfCells(grid *battle.Grid) (left, right []uint8) {
	size := grid.Size()
	half := size / 2
	left = make([]uint8, 0, size*half)
	right = make([]uint8, 0, size*half)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if col < half {
				left = append(left, grid.Get(row, col))
			} else {
				right = append(right, grid.Get(row, col))
			}
		}
	}
	return left, right
}

// BattlePublicInputs assembles the public witness values in circuit order.
func BattlePublicInputs(initial, final *battle.Grid, commitmentA, commitmentB fr.Element, winner uint8) []fr.Element {
	inputs := make([]fr.Element, 0, len(initial.Cells())+len(final.Cells())+3)
	for _, cell := range initial.Cells() {
		var fe fr.Element
		fe.SetUint64(uint64(cell))
		inputs = append(inputs, fe)
	}
	for _, cell := range final.Cells() {
		var fe fr.Element
		fe.SetUint64(uint64(cell))
		inputs = append(inputs, fe)
	}
	inputs = append(inputs, commitmentA, commitmentB)
	var w fr.Element
	w.SetUint64(uint64(winner))
	inputs = append(inputs, w)
	return inputs
}
