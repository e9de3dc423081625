// Package finality drives blocks from proposed to finalized with two-round
// BFT voting: 2/3-stake prevote then 2/3-stake precommit, GRANDPA/Tendermint
// style. Equivocation (double-signing at the same height/round/type) is
// surfaced as structured evidence for slashing, never as a panic.
package finality

import (
	"sync"

	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

// Status of a block's finality. Once Finalized, a block never regresses.
type Status uint8

const (
	StatusPending Status = iota
	StatusPrevoted
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPrevoted:
		return "prevoted"
	case StatusFinalized:
		return "finalized"
	}
	return "unknown"
}

// EquivocationEvidence pairs two conflicting votes by the same validator at
// the same (height, round, type).
type EquivocationEvidence struct {
	Vote1          model.FinalityVote `cbor:"1,keyasint"`
	Vote2          model.FinalityVote `cbor:"2,keyasint"`
	EvidenceHeight uint64             `cbor:"3,keyasint"`
}

// IsValid checks the evidence stands on its own: same validator, height,
// round and type, different blocks, both signatures valid.
func (e *EquivocationEvidence) IsValid() bool {
	if e.Vote1.Validator != e.Vote2.Validator {
		return false
	}
	if e.Vote1.BlockHeight != e.Vote2.BlockHeight {
		return false
	}
	if e.Vote1.Round != e.Vote2.Round {
		return false
	}
	if e.Vote1.VoteType != e.Vote2.VoteType {
		return false
	}
	if e.Vote1.BlockHash == e.Vote2.BlockHash {
		return false
	}
	return e.Vote1.Verify() && e.Vote2.Verify()
}

// voteTracker accumulates votes for one block.
type voteTracker struct {
	prevotes       map[model.PublicKey]model.Signature
	precommits     map[model.PublicKey]model.Signature
	prevoteStake   uint64
	precommitStake uint64
}

func newVoteTracker() *voteTracker {
	return &voteTracker{
		prevotes:   make(map[model.PublicKey]model.Signature),
		precommits: make(map[model.PublicKey]model.Signature),
	}
}

type historyKey struct {
	height    uint64
	round     uint64
	voteType  model.VoteType
	validator model.PublicKey
}

// Gadget tracks votes and determines finality. Stakes are per-epoch and
// injected at construction; UpdateValidators rotates them at epoch
// boundaries.
type Gadget struct {
	logger ulogger.Logger

	mu              sync.Mutex
	currentRound    uint64
	voteTrackers    map[model.Hash256]*voteTracker
	finalityStatus  map[model.Hash256]Status
	validatorStakes map[model.PublicKey]uint64
	totalStake      uint64
	equivocations   map[model.PublicKey][]EquivocationEvidence
	voteHistory     map[historyKey]model.Hash256
}

// NewGadget creates a gadget over the given validator set.
func NewGadget(logger ulogger.Logger, validatorStakes map[model.PublicKey]uint64) *Gadget {
	initPrometheusMetrics()

	g := &Gadget{
		logger:          logger,
		voteTrackers:    make(map[model.Hash256]*voteTracker),
		finalityStatus:  make(map[model.Hash256]Status),
		validatorStakes: make(map[model.PublicKey]uint64, len(validatorStakes)),
		equivocations:   make(map[model.PublicKey][]EquivocationEvidence),
		voteHistory:     make(map[historyKey]model.Hash256),
	}
	for v, stake := range validatorStakes {
		g.validatorStakes[v] = stake
		g.totalStake += stake
	}
	return g
}

// UpdateValidators replaces the validator set at an epoch boundary.
func (g *Gadget) UpdateValidators(validatorStakes map[model.PublicKey]uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.validatorStakes = make(map[model.PublicKey]uint64, len(validatorStakes))
	g.totalStake = 0
	for v, stake := range validatorStakes {
		g.validatorStakes[v] = stake
		g.totalStake += stake
	}
}

// GetFinalityStatus returns the block's status, Pending when unseen.
func (g *Gadget) GetFinalityStatus(blockHash model.Hash256) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.finalityStatus[blockHash]
}

// IsFinalized reports whether the block is final.
func (g *Gadget) IsFinalized(blockHash model.Hash256) bool {
	return g.GetFinalityStatus(blockHash) == StatusFinalized
}

// AddVote processes a vote and updates finality. Unsigned votes and votes
// from non-validators are silently dropped; duplicate identical votes are
// idempotent. A conflicting vote at the same (height, round, type) returns
// EquivocationEvidence for the caller to forward to slashing.
func (g *Gadget) AddVote(vote model.FinalityVote) (*EquivocationEvidence, error) {
	if !vote.Verify() {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	stake, ok := g.validatorStakes[vote.Validator]
	if !ok {
		return nil, nil
	}

	key := historyKey{
		height:    vote.BlockHeight,
		round:     vote.Round,
		voteType:  vote.VoteType,
		validator: vote.Validator,
	}

	if existingHash, seen := g.voteHistory[key]; seen {
		if existingHash != vote.BlockHash {
			if existing := g.reconstructVote(existingHash, key); existing != nil {
				evidence := EquivocationEvidence{
					Vote1:          *existing,
					Vote2:          vote,
					EvidenceHeight: vote.BlockHeight,
				}
				g.equivocations[vote.Validator] = append(g.equivocations[vote.Validator], evidence)

				prometheusFinalityEquivocations.Inc()
				g.logger.Warnf("[Finality] equivocation by %s at height %d round %d (%s)",
					vote.Validator, vote.BlockHeight, vote.Round, vote.VoteType)

				return &evidence, nil
			}
			// First vote's data was pruned; record the new vote and continue.
		}
	} else {
		g.voteHistory[key] = vote.BlockHash
	}

	tracker, ok := g.voteTrackers[vote.BlockHash]
	if !ok {
		tracker = newVoteTracker()
		g.voteTrackers[vote.BlockHash] = tracker
	}

	switch vote.VoteType {
	case model.VotePrevote:
		if _, voted := tracker.prevotes[vote.Validator]; !voted {
			tracker.prevoteStake += stake
		}
		tracker.prevotes[vote.Validator] = vote.Signature
	case model.VotePrecommit:
		if _, voted := tracker.precommits[vote.Validator]; !voted {
			tracker.precommitStake += stake
		}
		tracker.precommits[vote.Validator] = vote.Signature
	}

	g.updateFinalityStatus(vote.BlockHash)

	return nil, nil
}

// updateFinalityStatus promotes a block's status once a tally crosses
// 2/3 of total stake. Callers hold the lock.
func (g *Gadget) updateFinalityStatus(blockHash model.Hash256) {
	tracker, ok := g.voteTrackers[blockHash]
	if !ok {
		return
	}

	threshold := (g.totalStake * 2) / 3
	current := g.finalityStatus[blockHash]

	switch {
	case tracker.precommitStake > threshold:
		if current != StatusFinalized {
			g.finalityStatus[blockHash] = StatusFinalized
			prometheusFinalityFinalized.Inc()
			g.logger.Infof("[Finality] block %s finalized with %d/%d precommit stake",
				blockHash, tracker.precommitStake, g.totalStake)
		}
	case tracker.prevoteStake > threshold && current == StatusPending:
		g.finalityStatus[blockHash] = StatusPrevoted
	}
}

// reconstructVote rebuilds the earlier conflicting vote from the tracker so
// the evidence carries both signatures. Returns nil if the data was pruned.
func (g *Gadget) reconstructVote(blockHash model.Hash256, key historyKey) *model.FinalityVote {
	tracker, ok := g.voteTrackers[blockHash]
	if !ok {
		return nil
	}

	var sig model.Signature
	switch key.voteType {
	case model.VotePrevote:
		sig, ok = tracker.prevotes[key.validator]
	case model.VotePrecommit:
		sig, ok = tracker.precommits[key.validator]
	}
	if !ok {
		return nil
	}

	return &model.FinalityVote{
		BlockHash:   blockHash,
		BlockHeight: key.height,
		VoteType:    key.voteType,
		Round:       key.round,
		Validator:   key.validator,
		Signature:   sig,
	}
}

// Equivocations returns the evidence recorded for a validator.
func (g *Gadget) Equivocations(validator model.PublicKey) []EquivocationEvidence {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]EquivocationEvidence, len(g.equivocations[validator]))
	copy(out, g.equivocations[validator])
	return out
}

// AdvanceRound increments the round counter; called on timeout. Votes in
// different rounds never constitute equivocation.
func (g *Gadget) AdvanceRound() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.currentRound++
}

// CurrentRound returns the round counter.
func (g *Gadget) CurrentRound() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.currentRound
}

// VoteStats returns (prevote stake, precommit stake) for a block.
func (g *Gadget) VoteStats(blockHash model.Hash256) (uint64, uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tracker, ok := g.voteTrackers[blockHash]
	if !ok {
		return 0, 0, false
	}
	return tracker.prevoteStake, tracker.precommitStake, true
}

// TotalStake returns the current epoch's total stake.
func (g *Gadget) TotalStake() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.totalStake
}
