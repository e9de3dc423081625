package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

func miner(b byte) model.PublicKey {
	var pk model.PublicKey
	pk[0] = b
	return pk
}

func TestOutcomeUpdates(t *testing.T) {
	a := NewAggregator(ulogger.TestLogger{T: t})
	m := miner(1)

	assert.Nil(t, a.Record(m, OutcomeWin, 1))
	assert.Nil(t, a.Record(m, OutcomeLoss, 2))
	assert.Nil(t, a.Record(m, OutcomeNoReveal, 3))

	op := a.Opinion(m)
	assert.Equal(t, uint64(1), op.R)
	assert.Equal(t, uint64(3), op.S)
}

func TestCheatEmitsSlash(t *testing.T) {
	a := NewAggregator(ulogger.TestLogger{T: t})
	m := miner(2)

	slash := a.Record(m, OutcomeCheat, 7)
	require.NotNil(t, slash)
	assert.Equal(t, m, slash.Miner)
	assert.Equal(t, uint64(7), slash.Height)

	op := a.Opinion(m)
	assert.Equal(t, uint64(5), op.S)
}

func TestTrustFormula(t *testing.T) {
	// trust = (r+1)/(r+s+2)
	op := Opinion{R: 3, S: 1}
	assert.InDelta(t, 4.0/6.0, op.Trust(), 1e-9)

	fresh := Opinion{}
	assert.InDelta(t, 0.5, fresh.Trust(), 1e-9)
}

func TestBanThreshold(t *testing.T) {
	a := NewAggregator(ulogger.TestLogger{T: t})
	m := miner(3)

	// 19 observations is not enough evidence, however bad.
	for i := 0; i < 9; i++ {
		a.Record(m, OutcomeNoReveal, uint64(i))
	}
	a.Record(m, OutcomeLoss, 100)
	assert.Equal(t, uint64(19), a.Opinion(m).Observations())
	assert.NotEqual(t, StatusBanned, a.Status(m))

	// One more pushes observations to 20+ with trust well below 0.2.
	a.Record(m, OutcomeLoss, 101)
	assert.Equal(t, StatusBanned, a.Status(m))
	assert.True(t, a.IsBanned(m))
}

func TestWarningThreshold(t *testing.T) {
	a := NewAggregator(ulogger.TestLogger{T: t})
	m := miner(4)

	a.Record(m, OutcomeLoss, 1)
	a.Record(m, OutcomeLoss, 2)
	// trust = 1/4 = 0.25 < 0.35 but observations < 20: warned, not banned.
	assert.Equal(t, StatusWarned, a.Status(m))
}

func TestActiveStatus(t *testing.T) {
	a := NewAggregator(ulogger.TestLogger{T: t})
	m := miner(5)

	for i := 0; i < 10; i++ {
		a.Record(m, OutcomeWin, uint64(i))
	}
	assert.Equal(t, StatusActive, a.Status(m))
}

func TestEligibleOfFiltersBanned(t *testing.T) {
	a := NewAggregator(ulogger.TestLogger{T: t})
	good := miner(6)
	bad := miner(7)

	a.Record(good, OutcomeWin, 1)
	for i := 0; i < 20; i++ {
		a.Record(bad, OutcomeNoReveal, uint64(i))
	}

	eligible := a.EligibleOf([]model.PublicKey{good, bad})
	require.Len(t, eligible, 1)
	assert.Equal(t, good, eligible[0])
}

func TestFuse(t *testing.T) {
	fused := Fuse(Opinion{R: 2, S: 1}, Opinion{R: 3, S: 4})
	assert.Equal(t, Opinion{R: 5, S: 5}, fused)
}
