package model

import (
	"github.com/steake/bitcell/errors"
)

// GliderType enumerates the patterns a miner may field in a tournament.
type GliderType uint8

const (
	GliderStandard GliderType = iota
	GliderLightweight
	GliderMiddleweight
	GliderHeavyweight
)

var gliderTypeNames = map[GliderType]string{
	GliderStandard:     "standard",
	GliderLightweight:  "lightweight",
	GliderMiddleweight: "middleweight",
	GliderHeavyweight:  "heavyweight",
}

func (t GliderType) String() string {
	if name, ok := gliderTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether the type is in the enumerated set.
func (t GliderType) Valid() bool {
	_, ok := gliderTypeNames[t]
	return ok
}

// Cells returns the live cells of the pattern as (row, col) offsets from the
// pattern origin.
func (t GliderType) Cells() [][2]int {
	switch t {
	case GliderStandard:
		return [][2]int{{0, 1}, {1, 2}, {2, 0}, {2, 1}, {2, 2}}
	case GliderLightweight:
		return [][2]int{
			{0, 1}, {0, 4},
			{1, 4},
			{2, 0}, {2, 4},
			{3, 1}, {3, 2}, {3, 3}, {3, 4},
		}
	case GliderMiddleweight:
		return [][2]int{
			{0, 3},
			{1, 1}, {1, 5},
			{2, 6},
			{3, 1}, {3, 6},
			{4, 2}, {4, 3}, {4, 4}, {4, 5}, {4, 6},
		}
	case GliderHeavyweight:
		return [][2]int{
			{0, 3}, {0, 4},
			{1, 1}, {1, 6},
			{2, 7},
			{3, 1}, {3, 7},
			{4, 2}, {4, 3}, {4, 4}, {4, 5}, {4, 6}, {4, 7},
		}
	default:
		return nil
	}
}

// Bounds returns the pattern's bounding box as (rows, cols).
func (t GliderType) Bounds() (int, int) {
	maxR, maxC := 0, 0
	for _, c := range t.Cells() {
		if c[0] > maxR {
			maxR = c[0]
		}
		if c[1] > maxC {
			maxC = c[1]
		}
	}
	return maxR + 1, maxC + 1
}

// Glider is a pattern choice plus the miner's preferred spawn offset within
// its half of the grid. The battle engine folds entropy-derived jitter into
// the final placement.
type Glider struct {
	Type    GliderType `cbor:"1,keyasint"`
	OffsetX uint16     `cbor:"2,keyasint"`
	OffsetY uint16     `cbor:"3,keyasint"`
}

// Validate rejects gliders outside the enumerated set.
func (g *Glider) Validate() error {
	if !g.Type.Valid() {
		return errors.NewInvalidArgumentError("glider type %d outside enumerated set", g.Type)
	}
	return nil
}

// Descriptor returns the canonical bytes committed to in the commit phase.
func (g *Glider) Descriptor() []byte {
	b, err := MarshalCanonical(g)
	if err != nil {
		panic(err)
	}
	return b
}

// CommitmentDigest computes H(pattern_descriptor || nonce || miner_pk), the
// value published during the commit phase and opened during reveal.
func CommitmentDigest(g *Glider, nonce []byte, miner PublicKey) Hash256 {
	desc := g.Descriptor()
	buf := make([]byte, 0, len(desc)+len(nonce)+len(miner))
	buf = append(buf, desc...)
	buf = append(buf, nonce...)
	buf = append(buf, miner[:]...)
	return NewHash256(buf)
}
