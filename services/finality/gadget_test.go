package finality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

func testValidators(t *testing.T, count int, stake uint64) ([]*model.SecretKey, map[model.PublicKey]uint64) {
	t.Helper()

	keys := make([]*model.SecretKey, count)
	stakes := make(map[model.PublicKey]uint64, count)
	for i := 0; i < count; i++ {
		seed := make([]byte, 32)
		seed[0] = byte(i + 1)
		sk, err := model.SecretKeyFromSeed(seed)
		require.NoError(t, err)
		keys[i] = sk
		stakes[sk.PublicKey()] = stake
	}
	return keys, stakes
}

func vote(sk *model.SecretKey, blockHash model.Hash256, height, round uint64, voteType model.VoteType) model.FinalityVote {
	v := model.FinalityVote{
		BlockHash:   blockHash,
		BlockHeight: height,
		VoteType:    voteType,
		Round:       round,
	}
	model.SignVote(&v, sk)
	return v
}

func TestFinalityThreshold(t *testing.T) {
	keys, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	blockHash := model.NewHash256([]byte("block"))

	// 2 of 4 prevotes: 200 <= 266, still pending.
	for _, k := range keys[:2] {
		_, err := g.AddVote(vote(k, blockHash, 5, 0, model.VotePrevote))
		require.NoError(t, err)
	}
	assert.Equal(t, StatusPending, g.GetFinalityStatus(blockHash))

	// Third prevote crosses 2/3.
	_, err := g.AddVote(vote(keys[2], blockHash, 5, 0, model.VotePrevote))
	require.NoError(t, err)
	assert.Equal(t, StatusPrevoted, g.GetFinalityStatus(blockHash))

	// Precommits finalize.
	for _, k := range keys[:3] {
		_, err := g.AddVote(vote(k, blockHash, 5, 0, model.VotePrecommit))
		require.NoError(t, err)
	}
	assert.Equal(t, StatusFinalized, g.GetFinalityStatus(blockHash))
	assert.True(t, g.IsFinalized(blockHash))
}

func TestEquivocationDetection(t *testing.T) {
	// Scenario: validator V with stake 100 in a 400-stake set double-signs
	// prevotes for two blocks at the same height and round.
	keys, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	hashA := model.NewHash256([]byte{0xA})
	hashB := model.NewHash256([]byte{0xB})

	_, err := g.AddVote(vote(keys[0], hashA, 10, 0, model.VotePrevote))
	require.NoError(t, err)

	evidence, err := g.AddVote(vote(keys[0], hashB, 10, 0, model.VotePrevote))
	require.NoError(t, err)
	require.NotNil(t, evidence)

	assert.True(t, evidence.IsValid())
	assert.Equal(t, hashA, evidence.Vote1.BlockHash)
	assert.Equal(t, hashB, evidence.Vote2.BlockHash)
	assert.Equal(t, keys[0].PublicKey(), evidence.Vote1.Validator)

	recorded := g.Equivocations(keys[0].PublicKey())
	require.Len(t, recorded, 1)
}

func TestEquivocationDifferentRoundsOK(t *testing.T) {
	keys, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	hashA := model.NewHash256([]byte{0xA})
	hashB := model.NewHash256([]byte{0xB})

	_, err := g.AddVote(vote(keys[0], hashA, 10, 0, model.VotePrevote))
	require.NoError(t, err)

	// Different round: not equivocation.
	evidence, err := g.AddVote(vote(keys[0], hashB, 10, 1, model.VotePrevote))
	require.NoError(t, err)
	assert.Nil(t, evidence)

	// Different vote type: not equivocation either.
	evidence, err = g.AddVote(vote(keys[0], hashB, 10, 0, model.VotePrecommit))
	require.NoError(t, err)
	assert.Nil(t, evidence)
}

func TestDuplicateVotesIdempotent(t *testing.T) {
	keys, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	blockHash := model.NewHash256([]byte("block"))
	v := vote(keys[0], blockHash, 5, 0, model.VotePrevote)

	for i := 0; i < 3; i++ {
		_, err := g.AddVote(v)
		require.NoError(t, err)
	}

	prevote, _, ok := g.VoteStats(blockHash)
	require.True(t, ok)
	assert.Equal(t, uint64(100), prevote, "stake must not double-count")
}

func TestNonValidatorIgnored(t *testing.T) {
	_, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	outsiderSeed := make([]byte, 32)
	outsiderSeed[0] = 0xFF
	outsider, err := model.SecretKeyFromSeed(outsiderSeed)
	require.NoError(t, err)

	blockHash := model.NewHash256([]byte("block"))
	_, err = g.AddVote(vote(outsider, blockHash, 5, 0, model.VotePrevote))
	require.NoError(t, err)

	_, _, ok := g.VoteStats(blockHash)
	assert.False(t, ok)
}

func TestUnsignedVoteDropped(t *testing.T) {
	keys, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	blockHash := model.NewHash256([]byte("block"))
	v := vote(keys[0], blockHash, 5, 0, model.VotePrevote)
	v.Signature = model.Signature{}

	_, err := g.AddVote(v)
	require.NoError(t, err)

	_, _, ok := g.VoteStats(blockHash)
	assert.False(t, ok)
}

func TestFinalityMonotonic(t *testing.T) {
	keys, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	blockHash := model.NewHash256([]byte("block"))

	for _, k := range keys {
		_, err := g.AddVote(vote(k, blockHash, 5, 0, model.VotePrecommit))
		require.NoError(t, err)
	}
	require.Equal(t, StatusFinalized, g.GetFinalityStatus(blockHash))

	// Later prevotes cannot demote a finalized block.
	for _, k := range keys {
		_, err := g.AddVote(vote(k, blockHash, 5, 1, model.VotePrevote))
		require.NoError(t, err)
	}
	assert.Equal(t, StatusFinalized, g.GetFinalityStatus(blockHash))
}

func TestEvidenceValidation(t *testing.T) {
	keys, _ := testValidators(t, 2, 100)

	hashA := model.NewHash256([]byte{0xA})
	hashB := model.NewHash256([]byte{0xB})

	t.Run("valid evidence", func(t *testing.T) {
		e := EquivocationEvidence{
			Vote1:          vote(keys[0], hashA, 10, 0, model.VotePrevote),
			Vote2:          vote(keys[0], hashB, 10, 0, model.VotePrevote),
			EvidenceHeight: 10,
		}
		assert.True(t, e.IsValid())
	})

	t.Run("same block is not equivocation", func(t *testing.T) {
		e := EquivocationEvidence{
			Vote1: vote(keys[0], hashA, 10, 0, model.VotePrevote),
			Vote2: vote(keys[0], hashA, 10, 0, model.VotePrevote),
		}
		assert.False(t, e.IsValid())
	})

	t.Run("different validators", func(t *testing.T) {
		e := EquivocationEvidence{
			Vote1: vote(keys[0], hashA, 10, 0, model.VotePrevote),
			Vote2: vote(keys[1], hashB, 10, 0, model.VotePrevote),
		}
		assert.False(t, e.IsValid())
	})

	t.Run("bad signature", func(t *testing.T) {
		v2 := vote(keys[0], hashB, 10, 0, model.VotePrevote)
		v2.Signature[0] ^= 0x01
		e := EquivocationEvidence{
			Vote1: vote(keys[0], hashA, 10, 0, model.VotePrevote),
			Vote2: v2,
		}
		assert.False(t, e.IsValid())
	})
}

func TestRoundAdvance(t *testing.T) {
	_, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)

	assert.Equal(t, uint64(0), g.CurrentRound())
	g.AdvanceRound()
	g.AdvanceRound()
	assert.Equal(t, uint64(2), g.CurrentRound())
}

func TestUpdateValidators(t *testing.T) {
	_, stakes := testValidators(t, 4, 100)
	g := NewGadget(ulogger.TestLogger{T: t}, stakes)
	assert.Equal(t, uint64(400), g.TotalStake())

	_, newStakes := testValidators(t, 2, 500)
	g.UpdateValidators(newStakes)
	assert.Equal(t, uint64(1000), g.TotalStake())
}
