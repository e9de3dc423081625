// Package reputation aggregates per-miner tournament evidence as
// Beta-distribution counts (EBSL), exposing smoothed trust scores and ban
// verdicts that feed ring eligibility.
package reputation

import (
	"sync"

	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

// Outcome classifies a tournament result for one miner.
type Outcome uint8

const (
	OutcomeWin Outcome = iota
	OutcomeLoss
	OutcomeNoReveal
	OutcomeCheat
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeNoReveal:
		return "no_reveal"
	case OutcomeCheat:
		return "cheat"
	}
	return "unknown"
}

// Status is a miner's standing.
type Status uint8

const (
	StatusActive Status = iota
	StatusWarned
	StatusBanned
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusWarned:
		return "warned"
	case StatusBanned:
		return "banned"
	}
	return "unknown"
}

const (
	// banObservations is the minimum evidence before a ban can trigger.
	banObservations = 20

	// banThreshold bans below this trust once enough evidence exists.
	banThreshold = 0.2

	// warnThreshold marks a miner Warned below this trust.
	warnThreshold = 0.35
)

// Opinion is the Beta evidence pair for one miner.
type Opinion struct {
	R uint64 `cbor:"1,keyasint"`
	S uint64 `cbor:"2,keyasint"`
}

// Trust returns the smoothed Beta mean (r+1)/(r+s+2).
func (o Opinion) Trust() float64 {
	return float64(o.R+1) / float64(o.R+o.S+2)
}

// Observations returns the total evidence count.
func (o Opinion) Observations() uint64 {
	return o.R + o.S
}

// Fuse combines two independent opinions with the EBSL fusion operator.
// With a single deterministic event log per node, fusion reduces to direct
// accumulation of evidence.
func Fuse(a, b Opinion) Opinion {
	return Opinion{R: a.R + b.R, S: a.S + b.S}
}

// SlashEvent is surfaced when a cheat outcome is recorded.
type SlashEvent struct {
	Miner  model.PublicKey
	Reason string
	Height uint64
}

// Aggregator tracks opinions for all miners. It is an injected collaborator,
// not a singleton, so tests stay independent.
type Aggregator struct {
	logger ulogger.Logger

	mu       sync.RWMutex
	opinions map[model.PublicKey]Opinion
}

// NewAggregator creates an empty aggregator.
func NewAggregator(logger ulogger.Logger) *Aggregator {
	initPrometheusMetrics()

	return &Aggregator{
		logger:   logger,
		opinions: make(map[model.PublicKey]Opinion),
	}
}

// Record applies an outcome to a miner's evidence. Cheat outcomes return a
// SlashEvent for the caller to forward; everything else returns nil.
func (a *Aggregator) Record(miner model.PublicKey, outcome Outcome, height uint64) *SlashEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	op := a.opinions[miner]

	var slash *SlashEvent
	switch outcome {
	case OutcomeWin:
		op.R++
	case OutcomeLoss:
		op.S++
	case OutcomeNoReveal:
		op.S += 2
	case OutcomeCheat:
		op.S += 5
		slash = &SlashEvent{
			Miner:  miner,
			Reason: "tournament cheat",
			Height: height,
		}
	}

	a.opinions[miner] = op

	prometheusReputationOutcomes.WithLabelValues(outcome.String()).Inc()

	if status := statusOf(op); status == StatusBanned {
		a.logger.Warnf("[Reputation] miner %s banned: trust %.3f over %d observations", miner, op.Trust(), op.Observations())
		prometheusReputationBans.Inc()
	}

	return slash
}

// Opinion returns the recorded evidence for a miner.
func (a *Aggregator) Opinion(miner model.PublicKey) Opinion {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.opinions[miner]
}

// Trust returns a miner's smoothed trust score.
func (a *Aggregator) Trust(miner model.PublicKey) float64 {
	return a.Opinion(miner).Trust()
}

// Status derives a miner's standing from its evidence.
func (a *Aggregator) Status(miner model.PublicKey) Status {
	return statusOf(a.Opinion(miner))
}

// IsBanned reports whether the miner is banned. Banned miners leave the
// eligible ring at the next epoch boundary.
func (a *Aggregator) IsBanned(miner model.PublicKey) bool {
	return a.Status(miner) == StatusBanned
}

// EligibleOf filters miners down to those not banned.
func (a *Aggregator) EligibleOf(miners []model.PublicKey) []model.PublicKey {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.PublicKey, 0, len(miners))
	for _, m := range miners {
		if statusOf(a.opinions[m]) != StatusBanned {
			out = append(out, m)
		}
	}
	return out
}

func statusOf(op Opinion) Status {
	trust := op.Trust()
	if op.Observations() >= banObservations && trust < banThreshold {
		return StatusBanned
	}
	if trust < warnThreshold {
		return StatusWarned
	}
	return StatusActive
}
