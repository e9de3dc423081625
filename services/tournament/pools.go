package tournament

import (
	"encoding/binary"

	"github.com/steake/bitcell/crypto/clsag"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

// Registration is the out-of-band binding between a miner's chain identity
// and its ring key. The key image is registered alongside the ring key so
// reveals can be tied back to the anonymous commitment that opened them.
type Registration struct {
	Miner    model.PublicKey
	RingKey  clsag.PublicKey
	KeyImage clsag.KeyImage
}

// CommitMessage is the exact payload a commitment's ring signature covers.
func CommitMessage(commitment model.Hash256, height uint64) []byte {
	msg := make([]byte, 0, 32+8)
	msg = append(msg, commitment[:]...)
	msg = binary.BigEndian.AppendUint64(msg, height)
	return msg
}

// commitOrderKey orders commitments for bracket formation:
// hash(commitment || prev_vrf_output).
func commitOrderKey(commitment model.Hash256, prevVRF [32]byte) model.Hash256 {
	buf := make([]byte, 0, 64)
	buf = append(buf, commitment[:]...)
	buf = append(buf, prevVRF[:]...)
	return model.NewHash256(buf)
}

// commitPool accumulates valid commitments during the Commit phase. It is
// owned by the tournament driver task and needs no locking.
type commitPool struct {
	height      uint64
	ring        []clsag.PublicKey
	registry    *KeyImageRegistry
	max         int
	commitments []*model.GliderCommitment
}

func newCommitPool(height uint64, ring []clsag.PublicKey, registry *KeyImageRegistry, max int) *commitPool {
	return &commitPool{
		height:   height,
		ring:     ring,
		registry: registry,
		max:      max,
	}
}

// add validates and stores a commitment: the ring signature must verify
// against the eligible ring, the height must match, and the key image must
// be fresh in this phase.
func (p *commitPool) add(c *model.GliderCommitment) error {
	if c.Height != p.height {
		return errors.NewInvalidArgumentError("commitment height %d does not match tournament height %d", c.Height, p.height)
	}

	if len(p.commitments) >= p.max {
		return errors.NewThresholdError("commitment cap %d reached", p.max)
	}

	if c.RingSignature == nil {
		return errors.NewRingSignatureError("commitment missing ring signature")
	}

	if err := c.RingSignature.Verify(p.ring, CommitMessage(c.Commitment, c.Height)); err != nil {
		return err
	}

	if !p.registry.Mark(p.height, PhaseCommit, c.RingSignature.KeyImage) {
		return errors.NewEquivocationError("duplicate key image in commit phase")
	}

	p.commitments = append(p.commitments, c)
	return nil
}

func (p *commitPool) full() bool {
	return len(p.commitments) >= p.max
}

// entrant pairs a commitment with its reveal (nil until revealed) and the
// deterministic bracket-order key.
type entrant struct {
	commitment *model.GliderCommitment
	reveal     *model.GliderReveal
	orderKey   model.Hash256
}

// revealPool matches reveals to pending commitments during the Reveal
// phase.
type revealPool struct {
	height        uint64
	registry      *KeyImageRegistry
	registrations map[model.PublicKey]Registration
	entrants      []*entrant
}

func newRevealPool(height uint64, registry *KeyImageRegistry, registrations map[model.PublicKey]Registration, commitments []*model.GliderCommitment, prevVRF [32]byte) *revealPool {
	entrants := make([]*entrant, 0, len(commitments))
	for _, c := range commitments {
		entrants = append(entrants, &entrant{
			commitment: c,
			orderKey:   commitOrderKey(c.Commitment, prevVRF),
		})
	}
	return &revealPool{
		height:        height,
		registry:      registry,
		registrations: registrations,
		entrants:      entrants,
	}
}

// add validates a reveal: the digest must open a pending commitment, the
// miner must be registered (eligible), the commitment's key image must bind
// to that miner's registered ring key, and the same key image must not have
// revealed before at this height.
func (p *revealPool) add(r *model.GliderReveal) error {
	if err := r.Glider.Validate(); err != nil {
		return err
	}

	reg, ok := p.registrations[r.Miner]
	if !ok {
		return errors.NewInvalidArgumentError("miner %s not in eligible set", r.Miner)
	}

	digest := model.CommitmentDigest(&r.Glider, r.Nonce, r.Miner)

	var target *entrant
	for _, e := range p.entrants {
		if e.commitment.Commitment == digest {
			target = e
			break
		}
	}
	if target == nil {
		return errors.NewInvalidArgumentError("reveal does not open any pending commitment")
	}

	if target.commitment.RingSignature.KeyImage != reg.KeyImage {
		return errors.NewEquivocationError("reveal miner does not own the commitment's ring key")
	}

	if target.reveal != nil {
		return errors.NewEquivocationError("commitment already revealed")
	}

	if !p.registry.Mark(p.height, PhaseReveal, reg.KeyImage) {
		return errors.NewEquivocationError("duplicate key image in reveal phase")
	}

	target.reveal = r
	return nil
}

// revealed returns the entrants that opened their commitments, in bracket
// order; missing reveals forfeit their slot.
func (p *revealPool) revealed() []*entrant {
	out := make([]*entrant, 0, len(p.entrants))
	for _, e := range p.entrants {
		if e.reveal != nil {
			out = append(out, e)
		}
	}
	sortEntrants(out)
	return out
}

// unrevealed returns entrants whose commitments were never opened.
func (p *revealPool) unrevealed() []*entrant {
	var out []*entrant
	for _, e := range p.entrants {
		if e.reveal == nil {
			out = append(out, e)
		}
	}
	return out
}

func sortEntrants(entrants []*entrant) {
	for i := 1; i < len(entrants); i++ {
		for j := i; j > 0; j-- {
			if lessHash(entrants[j].orderKey, entrants[j-1].orderKey) {
				entrants[j], entrants[j-1] = entrants[j-1], entrants[j]
			} else {
				break
			}
		}
	}
}

func lessHash(a, b model.Hash256) bool {
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
