package tournament

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/crypto/clsag"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

func TestCommitPoolValidation(t *testing.T) {
	miners := testMiners(t, 12)
	regs := registrationsOf(miners)

	ring := make([]clsag.PublicKey, len(regs))
	for i, r := range regs {
		ring[i] = r.RingKey
	}

	registry := NewKeyImageRegistry(time.Minute)
	defer registry.Stop()

	pool := newCommitPool(7, ring, registry, 4)

	glider := model.Glider{Type: model.GliderStandard}
	c, _ := commitAndReveal(t, miners[0], ring, 7, glider, []byte{1})

	require.NoError(t, pool.add(c))

	t.Run("duplicate key image", func(t *testing.T) {
		dup, _ := commitAndReveal(t, miners[0], ring, 7, model.Glider{Type: model.GliderLightweight}, []byte{2})
		err := pool.add(dup)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEquivocation))
	})

	t.Run("wrong height", func(t *testing.T) {
		wrong, _ := commitAndReveal(t, miners[1], ring, 8, glider, []byte{3})
		require.Error(t, pool.add(wrong))
	})

	t.Run("tampered commitment fails ring verification", func(t *testing.T) {
		bad, _ := commitAndReveal(t, miners[2], ring, 7, glider, []byte{4})
		bad.Commitment[0] ^= 0x01
		require.Error(t, pool.add(bad))
	})

	t.Run("cap enforced", func(t *testing.T) {
		for i := 3; i < 6; i++ {
			c, _ := commitAndReveal(t, miners[i], ring, 7, glider, []byte{byte(i + 10)})
			require.NoError(t, pool.add(c))
		}
		require.True(t, pool.full())

		over, _ := commitAndReveal(t, miners[6], ring, 7, glider, []byte{0x77})
		err := pool.add(over)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrThresholdExceeded))
	})
}

func TestCommitOrderingIsEntropyKeyed(t *testing.T) {
	digest1 := model.NewHash256([]byte("commitment one"))
	digest2 := model.NewHash256([]byte("commitment two"))

	var vrf1, vrf2 [32]byte
	copy(vrf1[:], []byte("vrf one"))
	copy(vrf2[:], []byte("vrf two"))

	// The bracket order key is hash(commitment || prev_vrf_output): stable
	// for a given chain state, reshuffled by the next VRF output.
	assert.Equal(t, commitOrderKey(digest1, vrf1), commitOrderKey(digest1, vrf1))
	assert.NotEqual(t, commitOrderKey(digest1, vrf1), commitOrderKey(digest1, vrf2))
	assert.NotEqual(t, commitOrderKey(digest1, vrf1), commitOrderKey(digest2, vrf1))
}

func TestRevealPoolBinding(t *testing.T) {
	miners := testMiners(t, 12)
	regs := registrationsOf(miners)

	ring := make([]clsag.PublicKey, len(regs))
	regMap := make(map[model.PublicKey]Registration, len(regs))
	for i, r := range regs {
		ring[i] = r.RingKey
		regMap[r.Miner] = r
	}

	registry := NewKeyImageRegistry(time.Minute)
	defer registry.Stop()

	glider := model.Glider{Type: model.GliderStandard}
	c, r := commitAndReveal(t, miners[0], ring, 7, glider, []byte{1})

	var prevVRF [32]byte
	pool := newRevealPool(7, registry, regMap, []*model.GliderCommitment{c}, prevVRF)

	t.Run("unregistered miner rejected", func(t *testing.T) {
		outsiderSeed := make([]byte, 32)
		outsiderSeed[0] = 0xEE
		outsider, err := model.SecretKeyFromSeed(outsiderSeed)
		require.NoError(t, err)

		bad := &model.GliderReveal{Glider: glider, Nonce: []byte{1}, Miner: outsider.PublicKey()}
		require.Error(t, pool.add(bad))
	})

	t.Run("reveal not opening a commitment rejected", func(t *testing.T) {
		bad := &model.GliderReveal{Glider: glider, Nonce: []byte{0x99}, Miner: miners[0].sk.PublicKey()}
		require.Error(t, pool.add(bad))
	})

	t.Run("valid reveal accepted once", func(t *testing.T) {
		require.NoError(t, pool.add(r))
		require.Error(t, pool.add(r), "double reveal is equivocation")

		revealed := pool.revealed()
		require.Len(t, revealed, 1)
		assert.Empty(t, pool.unrevealed())
	})
}
