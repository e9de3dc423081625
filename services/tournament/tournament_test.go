package tournament

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/battle"
	"github.com/steake/bitcell/crypto/clsag"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/services/reputation"
	"github.com/steake/bitcell/ulogger"
	"github.com/steake/bitcell/zk"
)

type testMiner struct {
	sk      *model.SecretKey
	ringKey *clsag.SecretKey
}

func testMiners(t *testing.T, count int) []*testMiner {
	t.Helper()

	miners := make([]*testMiner, count)
	for i := 0; i < count; i++ {
		seed := make([]byte, 32)
		seed[0] = byte(i + 1)
		sk, err := model.SecretKeyFromSeed(seed)
		require.NoError(t, err)

		ringSeed := make([]byte, 64)
		ringSeed[0] = byte(i + 1)
		ringKey, err := clsag.SecretKeyFromBytes(ringSeed)
		require.NoError(t, err)

		miners[i] = &testMiner{sk: sk, ringKey: ringKey}
	}
	return miners
}

func registrationsOf(miners []*testMiner) []Registration {
	regs := make([]Registration, len(miners))
	for i, m := range miners {
		regs[i] = Registration{
			Miner:    m.sk.PublicKey(),
			RingKey:  m.ringKey.PublicKey(),
			KeyImage: m.ringKey.KeyImage(),
		}
	}
	return regs
}

func testConfig() Config {
	return Config{
		CommitDuration: 300 * time.Millisecond,
		RevealDuration: 300 * time.Millisecond,
		SettleDuration: 50 * time.Millisecond,
		MaxCommitments: 16,
		GridSize:       64,
		Steps:          10,
	}
}

func testTournament(t *testing.T, miners []*testMiner) (*Tournament, *KeyImageRegistry, *reputation.Aggregator) {
	t.Helper()

	registry := NewKeyImageRegistry(time.Minute)
	t.Cleanup(registry.Stop)

	rep := reputation.NewAggregator(ulogger.TestLogger{T: t})

	driver, err := New(ulogger.TestLogger{T: t}, testConfig(), registry, rep, zk.NewNativeProofBuilder(), registrationsOf(miners))
	require.NoError(t, err)
	return driver, registry, rep
}

// commitAndReveal builds a valid commitment/reveal pair for a miner.
func commitAndReveal(t *testing.T, m *testMiner, ring []clsag.PublicKey, height uint64, glider model.Glider, nonce []byte) (*model.GliderCommitment, *model.GliderReveal) {
	t.Helper()

	digest := model.CommitmentDigest(&glider, nonce, m.sk.PublicKey())
	sig, err := clsag.Sign(m.ringKey, ring, CommitMessage(digest, height))
	require.NoError(t, err)

	commitment := &model.GliderCommitment{
		Commitment:    digest,
		RingSignature: sig,
		Height:        height,
	}
	reveal := &model.GliderReveal{
		Glider: glider,
		Nonce:  nonce,
		Miner:  m.sk.PublicKey(),
	}
	return commitment, reveal
}

func TestFullCommitRevealBattle(t *testing.T) {
	// Scenario: 4 of 16 eligible miners commit at height 5 with distinct
	// key images, all reveal, brackets form in commitment order, one winner
	// emerges with 3 battle proofs, reputation updates land.
	miners := testMiners(t, 16)
	driver, _, rep := testTournament(t, miners)

	const height = 5
	var prevVRF [32]byte
	copy(prevVRF[:], []byte("previous block vrf output 32B!!!"))

	gliders := []model.Glider{
		{Type: model.GliderStandard, OffsetX: 1, OffsetY: 1},
		{Type: model.GliderLightweight, OffsetX: 9, OffsetY: 4},
		{Type: model.GliderMiddleweight, OffsetX: 3, OffsetY: 12},
		{Type: model.GliderHeavyweight, OffsetX: 7, OffsetY: 8},
	}

	participants := miners[:4]
	reveals := make([]*model.GliderReveal, len(participants))
	for i, m := range participants {
		commitment, reveal := commitAndReveal(t, m, driver.Ring(), height, gliders[i], []byte{byte(i), 0xAA})
		require.NoError(t, driver.SubmitCommitment(commitment))
		reveals[i] = reveal
	}

	go func() {
		// Reveals land once the reveal window opens.
		time.Sleep(400 * time.Millisecond)
		for _, r := range reveals {
			_ = driver.SubmitReveal(r)
		}
	}()

	result, err := driver.Run(context.Background(), height, prevVRF)
	require.NoError(t, err)

	require.False(t, result.Empty)
	assert.Len(t, result.BattleProofs, 3, "2 semi-finals + 1 final")

	// The winner is one of the participants.
	var participantPKs []model.PublicKey
	for _, m := range participants {
		participantPKs = append(participantPKs, m.sk.PublicKey())
	}
	assert.Contains(t, participantPKs, result.Winner)

	// Reputation: winner r+=1 exactly once, the other three s+=1.
	winnerOp := rep.Opinion(result.Winner)
	assert.Equal(t, uint64(1), winnerOp.R)
	assert.Equal(t, uint64(0), winnerOp.S)

	losses := 0
	for _, pk := range participantPKs {
		if pk == result.Winner {
			continue
		}
		op := rep.Opinion(pk)
		assert.Equal(t, uint64(0), op.R)
		losses += int(op.S)
	}
	assert.Equal(t, 3, losses)

	// Idle again after settle.
	assert.Equal(t, PhaseIdle, driver.Phase())
}

func TestDuplicateKeyImageRejected(t *testing.T) {
	// Scenario: two commitments with distinct digests but the same CLSAG
	// key image; the second is rejected and the phase continues.
	miners := testMiners(t, 12)
	driver, _, _ := testTournament(t, miners)

	const height = 3
	var prevVRF [32]byte

	gliderA := model.Glider{Type: model.GliderStandard}
	gliderB := model.Glider{Type: model.GliderLightweight}

	c1, r1 := commitAndReveal(t, miners[0], driver.Ring(), height, gliderA, []byte{1})
	c2, _ := commitAndReveal(t, miners[0], driver.Ring(), height, gliderB, []byte{2})
	require.NotEqual(t, c1.Commitment, c2.Commitment)
	require.Equal(t, c1.RingSignature.KeyImage, c2.RingSignature.KeyImage)

	// A second participant so the bracket resolves.
	c3, r3 := commitAndReveal(t, miners[1], driver.Ring(), height, gliderB, []byte{3})

	require.NoError(t, driver.SubmitCommitment(c1))
	require.NoError(t, driver.SubmitCommitment(c2))
	require.NoError(t, driver.SubmitCommitment(c3))

	go func() {
		time.Sleep(400 * time.Millisecond)
		_ = driver.SubmitReveal(r1)
		_ = driver.SubmitReveal(r3)
	}()

	result, err := driver.Run(context.Background(), height, prevVRF)
	require.NoError(t, err)

	require.False(t, result.Empty)
	// Only one battle: the duplicate never joined.
	assert.Len(t, result.BattleProofs, 1)
}

func TestEmptyTournament(t *testing.T) {
	miners := testMiners(t, 12)
	driver, _, _ := testTournament(t, miners)

	var prevVRF [32]byte
	result, err := driver.Run(context.Background(), 1, prevVRF)
	require.NoError(t, err)

	assert.True(t, result.Empty)
	assert.Empty(t, result.BattleProofs)
}

func TestNoRevealForfeitsAndPenalizes(t *testing.T) {
	miners := testMiners(t, 12)
	driver, _, rep := testTournament(t, miners)

	const height = 9
	var prevVRF [32]byte

	c1, r1 := commitAndReveal(t, miners[0], driver.Ring(), height, model.Glider{Type: model.GliderStandard}, []byte{1})
	c2, r2 := commitAndReveal(t, miners[1], driver.Ring(), height, model.Glider{Type: model.GliderLightweight}, []byte{2})
	c3, _ := commitAndReveal(t, miners[2], driver.Ring(), height, model.Glider{Type: model.GliderHeavyweight}, []byte{3})

	require.NoError(t, driver.SubmitCommitment(c1))
	require.NoError(t, driver.SubmitCommitment(c2))
	require.NoError(t, driver.SubmitCommitment(c3))

	go func() {
		time.Sleep(400 * time.Millisecond)
		_ = driver.SubmitReveal(r1)
		_ = driver.SubmitReveal(r2)
		// miner 2 never reveals.
	}()

	result, err := driver.Run(context.Background(), height, prevVRF)
	require.NoError(t, err)
	require.False(t, result.Empty)

	// Missed-reveal penalty: s += 2.
	op := rep.Opinion(miners[2].sk.PublicKey())
	assert.Equal(t, uint64(2), op.S)
}

func TestWrongHeightCommitmentRejected(t *testing.T) {
	miners := testMiners(t, 12)
	driver, _, _ := testTournament(t, miners)

	c, _ := commitAndReveal(t, miners[0], driver.Ring(), 99, model.Glider{Type: model.GliderStandard}, []byte{1})
	require.NoError(t, driver.SubmitCommitment(c))

	var prevVRF [32]byte
	result, err := driver.Run(context.Background(), 1, prevVRF)
	require.NoError(t, err)
	assert.True(t, result.Empty)
}

func TestKeyImageRegistry(t *testing.T) {
	registry := NewKeyImageRegistry(time.Minute)
	defer registry.Stop()

	ringSeed := make([]byte, 64)
	ringSeed[0] = 0x55
	sk, err := clsag.SecretKeyFromBytes(ringSeed)
	require.NoError(t, err)
	ki := sk.KeyImage()

	assert.False(t, registry.Seen(1, PhaseCommit, ki))
	assert.True(t, registry.Mark(1, PhaseCommit, ki))
	assert.True(t, registry.Seen(1, PhaseCommit, ki))
	assert.False(t, registry.Mark(1, PhaseCommit, ki), "second mark is the duplicate signal")

	// Distinct (height, phase) scopes are independent.
	assert.True(t, registry.Mark(1, PhaseReveal, ki))
	assert.True(t, registry.Mark(2, PhaseCommit, ki))

	registry.Purge(1, PhaseCommit)
	assert.False(t, registry.Seen(1, PhaseCommit, ki))
	assert.True(t, registry.Seen(2, PhaseCommit, ki))
}

func TestBattleEntropySchedule(t *testing.T) {
	// Brackets use H(prev_vrf || bracket_index).
	var prevVRF [32]byte
	copy(prevVRF[:], []byte("vrf"))

	assert.Equal(t, battle.MatchEntropy(prevVRF, 0), battle.MatchEntropy(prevVRF, 0))
	assert.NotEqual(t, battle.MatchEntropy(prevVRF, 0), battle.MatchEntropy(prevVRF, 1))
}
