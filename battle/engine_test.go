package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
)

const (
	testGridSize = 64
	testSteps    = 10
)

func testEngine(t *testing.T) *Engine {
	t.Helper()

	engine, err := NewEngine(testGridSize, testSteps)
	require.NoError(t, err)
	return engine
}

func TestGridToroidalWrap(t *testing.T) {
	g := NewGrid(8)

	g.Set(-1, -1, 200)
	assert.Equal(t, uint8(200), g.Get(7, 7))

	g.Set(8, 8, 100)
	assert.Equal(t, uint8(100), g.Get(0, 0))
}

func TestGridBlinkerOscillates(t *testing.T) {
	// A horizontal blinker becomes vertical after one tick and horizontal
	// again after two.
	g := NewGrid(8)
	g.Set(3, 2, MaxEnergy)
	g.Set(3, 3, MaxEnergy)
	g.Set(3, 4, MaxEnergy)

	g1 := g.Step()
	assert.True(t, g1.Alive(2, 3))
	assert.True(t, g1.Alive(3, 3))
	assert.True(t, g1.Alive(4, 3))
	assert.False(t, g1.Alive(3, 2))
	assert.False(t, g1.Alive(3, 4))
	assert.Equal(t, 3, g1.Population())

	g2 := g1.Step()
	assert.True(t, g2.Alive(3, 2))
	assert.True(t, g2.Alive(3, 3))
	assert.True(t, g2.Alive(3, 4))
}

func TestGridEnergyDecay(t *testing.T) {
	g := NewGrid(8)
	g.Set(3, 2, MaxEnergy)
	g.Set(3, 3, MaxEnergy)
	g.Set(3, 4, MaxEnergy)

	g1 := g.Step()

	// The survivor (center) decays by one; the births carry max energy.
	assert.Equal(t, uint8(MaxEnergy-1), g1.Get(3, 3))
	assert.Equal(t, uint8(MaxEnergy), g1.Get(2, 3))
	assert.Equal(t, uint8(MaxEnergy), g1.Get(4, 3))
}

func TestDeterministicCA(t *testing.T) {
	engine := testEngine(t)

	gliderA := &model.Glider{Type: model.GliderStandard, OffsetX: 5, OffsetY: 9}
	gliderB := &model.Glider{Type: model.GliderLightweight, OffsetX: 2, OffsetY: 17}
	entropy := [32]byte(model.NewHash256([]byte("public entropy")))

	r1, err := engine.Run(gliderA, gliderB, entropy)
	require.NoError(t, err)
	r2, err := engine.Run(gliderA, gliderB, entropy)
	require.NoError(t, err)

	assert.Equal(t, r1.Winner, r2.Winner)
	assert.Equal(t, r1.EnergyA, r2.EnergyA)
	assert.Equal(t, r1.EnergyB, r2.EnergyB)
	assert.Equal(t, r1.FinalGrid.Cells(), r2.FinalGrid.Cells())
	assert.Equal(t, r1.InitialGrid.Digest(), r2.InitialGrid.Digest())
}

func TestEntropyMovesSpawn(t *testing.T) {
	engine := testEngine(t)

	gliderA := &model.Glider{Type: model.GliderStandard}
	gliderB := &model.Glider{Type: model.GliderStandard}

	g1, err := engine.PlaceGliders(gliderA, gliderB, [32]byte(model.NewHash256([]byte("one"))))
	require.NoError(t, err)
	g2, err := engine.PlaceGliders(gliderA, gliderB, [32]byte(model.NewHash256([]byte("two"))))
	require.NoError(t, err)

	assert.NotEqual(t, g1.Digest(), g2.Digest())
}

func TestPlacementRespectsHalves(t *testing.T) {
	engine := testEngine(t)

	gliderA := &model.Glider{Type: model.GliderHeavyweight, OffsetX: 1000, OffsetY: 1000}
	gliderB := &model.Glider{Type: model.GliderHeavyweight, OffsetX: 999, OffsetY: 3}

	grid, err := engine.PlaceGliders(gliderA, gliderB, [32]byte(model.NewHash256([]byte("seed"))))
	require.NoError(t, err)

	half := testGridSize / 2
	leftPop, rightPop := 0, 0
	for row := 0; row < testGridSize; row++ {
		for col := 0; col < testGridSize; col++ {
			if !grid.Alive(row, col) {
				continue
			}
			if col < half {
				leftPop++
			} else {
				rightPop++
			}
		}
	}

	cells := len(model.GliderHeavyweight.Cells())
	assert.Equal(t, cells, leftPop)
	assert.Equal(t, cells, rightPop)
}

func TestRegionalEnergyScoring(t *testing.T) {
	g := NewGrid(8)
	g.Set(0, 0, 10) // left half
	g.Set(0, 3, 20) // left half
	g.Set(0, 4, 5)  // right half
	g.Set(7, 7, 7)  // right half

	left, right := g.RegionalEnergy()
	assert.Equal(t, uint64(30), left)
	assert.Equal(t, uint64(12), right)
}

func TestMalformedGliderRejected(t *testing.T) {
	engine := testEngine(t)

	bad := &model.Glider{Type: model.GliderType(99)}
	good := &model.Glider{Type: model.GliderStandard}

	_, err := engine.Run(bad, good, [32]byte{})
	require.Error(t, err)
}

func TestRunWithSnapshots(t *testing.T) {
	engine := testEngine(t)

	gliderA := &model.Glider{Type: model.GliderStandard}
	gliderB := &model.Glider{Type: model.GliderMiddleweight}

	result, err := engine.RunWithSnapshots(gliderA, gliderB, [32]byte{}, []int{0, 5, 10})
	require.NoError(t, err)
	assert.Len(t, result.Frames, 3)

	// Frames carry no protocol weight: the result matches a plain run.
	plain, err := engine.Run(gliderA, gliderB, [32]byte{})
	require.NoError(t, err)
	assert.Equal(t, plain.Winner, result.Winner)
	assert.Equal(t, plain.FinalGrid.Digest(), result.FinalGrid.Digest())
}

func TestMatchEntropyDeterministic(t *testing.T) {
	var prevVRF [32]byte
	copy(prevVRF[:], []byte("previous vrf output, 32 bytes!!!"))

	e1 := MatchEntropy(prevVRF, 0)
	e2 := MatchEntropy(prevVRF, 0)
	e3 := MatchEntropy(prevVRF, 1)

	assert.Equal(t, e1, e2)
	assert.NotEqual(t, e1, e3)
}

func TestEngineParameterValidation(t *testing.T) {
	_, err := NewEngine(15, 10)
	require.Error(t, err)

	_, err = NewEngine(17, 10)
	require.Error(t, err)

	_, err = NewEngine(64, 0)
	require.Error(t, err)
}
