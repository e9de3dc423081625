// Package battle implements the deterministic cellular-automaton engine that
// resolves tournament matches: a toroidal Conway grid with an 8-bit energy
// overlay, entropy-derived glider placement, and regional-energy scoring.
package battle

import (
	"github.com/steake/bitcell/model"
)

const (
	// DefaultGridSize is the production grid side length.
	DefaultGridSize = 1024

	// DefaultSteps is the production simulation length.
	DefaultSteps = 1000

	// MaxEnergy is the energy a cell is born with.
	MaxEnergy = 255
)

// Grid is a toroidal 2D field of cell energies. A cell is alive iff its
// energy is non-zero. Row-major layout.
type Grid struct {
	size  int
	cells []uint8
}

// NewGrid allocates an empty grid of side size.
func NewGrid(size int) *Grid {
	return &Grid{
		size:  size,
		cells: make([]uint8, size*size),
	}
}

// Size returns the side length.
func (g *Grid) Size() int {
	return g.size
}

// Get returns the energy at (row, col) with toroidal wrap.
func (g *Grid) Get(row, col int) uint8 {
	return g.cells[g.index(row, col)]
}

// Set writes the energy at (row, col) with toroidal wrap.
func (g *Grid) Set(row, col int, energy uint8) {
	g.cells[g.index(row, col)] = energy
}

// Alive reports whether the cell at (row, col) is alive.
func (g *Grid) Alive(row, col int) bool {
	return g.Get(row, col) > 0
}

func (g *Grid) index(row, col int) int {
	row = ((row % g.size) + g.size) % g.size
	col = ((col % g.size) + g.size) % g.size
	return row*g.size + col
}

// liveNeighbors counts the live cells in the 8-cell Moore neighborhood.
func (g *Grid) liveNeighbors(row, col int) int {
	count := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if g.Alive(row+dr, col+dc) {
				count++
			}
		}
	}
	return count
}

// Step advances the grid one tick under B3/S23 with the energy overlay:
// birth sets energy to MaxEnergy, survival decays energy by 1 down to a
// floor of 1, death zeroes it.
func (g *Grid) Step() *Grid {
	next := NewGrid(g.size)
	for row := 0; row < g.size; row++ {
		for col := 0; col < g.size; col++ {
			neighbors := g.liveNeighbors(row, col)
			energy := g.Get(row, col)
			alive := energy > 0

			switch {
			case alive && (neighbors == 2 || neighbors == 3):
				if energy > 1 {
					energy--
				}
				next.Set(row, col, energy)
			case !alive && neighbors == 3:
				next.Set(row, col, MaxEnergy)
			default:
				// dead, or death by under/overpopulation
			}
		}
	}
	return next
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := NewGrid(g.size)
	copy(c.cells, g.cells)
	return c
}

// Cells exposes the raw row-major energies. Callers must not mutate.
func (g *Grid) Cells() []uint8 {
	return g.cells
}

// RegionalEnergy sums cell energies over the left half (columns [0, S/2))
// and the right half. Sums fit in a uint64: S*S*255 is far below overflow
// for any supported size.
func (g *Grid) RegionalEnergy() (left, right uint64) {
	mid := g.size / 2
	for row := 0; row < g.size; row++ {
		base := row * g.size
		for col := 0; col < g.size; col++ {
			e := uint64(g.cells[base+col])
			if col < mid {
				left += e
			} else {
				right += e
			}
		}
	}
	return left, right
}

// Digest returns the Hash256 of the raw cell bytes.
func (g *Grid) Digest() model.Hash256 {
	return model.NewHash256(g.cells)
}

// Population returns the number of live cells.
func (g *Grid) Population() int {
	n := 0
	for _, e := range g.cells {
		if e > 0 {
			n++
		}
	}
	return n
}
