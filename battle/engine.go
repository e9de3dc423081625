package battle

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

// Winner identifies the outcome of a match.
type Winner uint8

const (
	WinnerA Winner = iota
	WinnerB
	WinnerTie
)

func (w Winner) String() string {
	switch w {
	case WinnerA:
		return "A"
	case WinnerB:
		return "B"
	case WinnerTie:
		return "tie"
	}
	return "unknown"
}

// Result is the outcome of a deterministic match.
type Result struct {
	Winner      Winner
	InitialGrid *Grid
	FinalGrid   *Grid
	EnergyA     uint64
	EnergyB     uint64
	Frames      []*Grid
}

// Engine resolves matches on a fixed grid size and step count. The engine is
// pure: identical inputs produce bit-identical outputs, and the only
// randomness is the caller-supplied entropy, which must be derived from
// publicly known fields.
type Engine struct {
	gridSize int
	steps    int
}

// NewEngine creates an engine. gridSize must be even and at least 16.
func NewEngine(gridSize, steps int) (*Engine, error) {
	if gridSize < 16 || gridSize%2 != 0 {
		return nil, errors.NewInvalidArgumentError("grid size must be even and >= 16, got %d", gridSize)
	}
	if steps < 1 {
		return nil, errors.NewInvalidArgumentError("steps must be >= 1, got %d", steps)
	}
	return &Engine{gridSize: gridSize, steps: steps}, nil
}

// GridSize returns the configured side length.
func (e *Engine) GridSize() int {
	return e.gridSize
}

// Steps returns the configured simulation length.
func (e *Engine) Steps() int {
	return e.steps
}

// Run resolves a match between two gliders. A spawns in the left half, B in
// the right; entropy jitters the spawn positions reproducibly.
func (e *Engine) Run(gliderA, gliderB *model.Glider, entropy [32]byte) (*Result, error) {
	return e.run(gliderA, gliderB, entropy, nil)
}

// RunWithSnapshots additionally captures grid frames at the given steps for
// visualization. Frames carry no protocol weight.
func (e *Engine) RunWithSnapshots(gliderA, gliderB *model.Glider, entropy [32]byte, sampleSteps []int) (*Result, error) {
	sample := make(map[int]bool, len(sampleSteps))
	for _, s := range sampleSteps {
		sample[s] = true
	}
	return e.run(gliderA, gliderB, entropy, sample)
}

func (e *Engine) run(gliderA, gliderB *model.Glider, entropy [32]byte, sample map[int]bool) (*Result, error) {
	if err := gliderA.Validate(); err != nil {
		return nil, err
	}
	if err := gliderB.Validate(); err != nil {
		return nil, err
	}

	initial, err := e.PlaceGliders(gliderA, gliderB, entropy)
	if err != nil {
		return nil, err
	}

	grid := initial.Clone()

	var frames []*Grid
	if sample != nil && sample[0] {
		frames = append(frames, grid.Clone())
	}

	for step := 1; step <= e.steps; step++ {
		grid = grid.Step()
		if sample != nil && sample[step] {
			frames = append(frames, grid.Clone())
		}
	}

	energyA, energyB := grid.RegionalEnergy()

	winner := WinnerTie
	if energyA > energyB {
		winner = WinnerA
	} else if energyB > energyA {
		winner = WinnerB
	}

	return &Result{
		Winner:      winner,
		InitialGrid: initial,
		FinalGrid:   grid,
		EnergyA:     energyA,
		EnergyB:     energyB,
		Frames:      frames,
	}, nil
}

// PlaceGliders stamps the two patterns onto an empty grid: A in the left
// half, B in the right. The final position folds the miner's preferred
// offset with entropy-derived jitter, so an opening book buys nothing while
// placement stays reproducible from public data.
func (e *Engine) PlaceGliders(gliderA, gliderB *model.Glider, entropy [32]byte) (*Grid, error) {
	grid := NewGrid(e.gridSize)

	if err := e.stamp(grid, gliderA, entropy, 0); err != nil {
		return nil, err
	}
	if err := e.stamp(grid, gliderB, entropy, 1); err != nil {
		return nil, err
	}

	return grid, nil
}

func (e *Engine) stamp(grid *Grid, glider *model.Glider, entropy [32]byte, side byte) error {
	rows, cols := glider.Type.Bounds()

	half := e.gridSize / 2
	maxRow := e.gridSize - rows
	maxCol := half - cols
	if maxRow <= 0 || maxCol <= 0 {
		return errors.NewInvalidArgumentError("pattern %s does not fit a %d grid half", glider.Type, e.gridSize)
	}

	jRow, jCol := spawnJitter(entropy, side)

	row := int((uint64(glider.OffsetY) + jRow) % uint64(maxRow))
	col := int((uint64(glider.OffsetX) + jCol) % uint64(maxCol))
	if side == 1 {
		col += half
	}

	for _, c := range glider.Type.Cells() {
		grid.Set(row+c[0], col+c[1], MaxEnergy)
	}

	return nil
}

// spawnJitter derives the per-side placement jitter from entropy.
func spawnJitter(entropy [32]byte, side byte) (uint64, uint64) {
	h := sha256.New()
	h.Write(entropy[:])
	h.Write([]byte{side})
	digest := h.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8]), binary.BigEndian.Uint64(digest[8:16])
}

// MatchEntropy derives battle entropy from the previous block's VRF output
// and the bracket index, per the tournament schedule.
func MatchEntropy(prevVRF [32]byte, bracketIndex uint32) [32]byte {
	h := sha256.New()
	h.Write(prevVRF[:])
	h.Write(binary.BigEndian.AppendUint32(nil, bracketIndex))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
