package tournament

import (
	"bytes"
	"context"
	"time"

	"github.com/looplab/fsm"
	"github.com/ordishs/gocore"

	"github.com/steake/bitcell/battle"
	"github.com/steake/bitcell/crypto/clsag"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/services/reputation"
	"github.com/steake/bitcell/ulogger"
)

// Defaults for phase budgets and the per-phase commitment cap.
const (
	DefaultCommitDuration = 3 * time.Second
	DefaultRevealDuration = 3 * time.Second
	DefaultSettleDuration = 1 * time.Second
	DefaultMaxCommitments = 64
)

// ProofBuilder turns a resolved match into a BattleProof. The native
// builder fills digests and energies; the zk builder additionally attaches
// a Groth16 proof. Proof generation is CPU-bound and runs on the battle
// worker, never on a suspension point.
type ProofBuilder interface {
	Build(result *battle.Result, gliderA, gliderB *model.GliderReveal, bracketIndex uint32) (*model.BattleProof, error)
}

// Config carries the tournament parameters.
type Config struct {
	CommitDuration time.Duration
	RevealDuration time.Duration
	SettleDuration time.Duration
	MaxCommitments int
	GridSize       int
	Steps          int
}

// ConfigFromGocore reads the tournament parameters with defaults.
func ConfigFromGocore() Config {
	commitMs, _ := gocore.Config().GetInt("tournament_commitMillis", int(DefaultCommitDuration.Milliseconds()))
	revealMs, _ := gocore.Config().GetInt("tournament_revealMillis", int(DefaultRevealDuration.Milliseconds()))
	settleMs, _ := gocore.Config().GetInt("tournament_settleMillis", int(DefaultSettleDuration.Milliseconds()))
	maxCommits, _ := gocore.Config().GetInt("tournament_maxCommitments", DefaultMaxCommitments)
	gridSize, _ := gocore.Config().GetInt("tournament_gridSize", battle.DefaultGridSize)
	steps, _ := gocore.Config().GetInt("tournament_steps", battle.DefaultSteps)

	return Config{
		CommitDuration: time.Duration(commitMs) * time.Millisecond,
		RevealDuration: time.Duration(revealMs) * time.Millisecond,
		SettleDuration: time.Duration(settleMs) * time.Millisecond,
		MaxCommitments: maxCommits,
		GridSize:       gridSize,
		Steps:          steps,
	}
}

// Result is the outcome of one tournament interval. Empty tournaments carry
// no winner; the caller falls back to VRF sortition.
type Result struct {
	Winner       model.PublicKey
	BattleProofs []*model.BattleProof
	Empty        bool
}

// Tournament drives one commit/reveal/battle/settle cycle per block
// interval. The phase state is owned by the driver task; producers funnel
// commitments and reveals through bounded channels.
type Tournament struct {
	logger     ulogger.Logger
	config     Config
	engine     *battle.Engine
	registry   *KeyImageRegistry
	reputation *reputation.Aggregator
	proofs     ProofBuilder

	ring          []clsag.PublicKey
	registrations map[model.PublicKey]Registration

	machine *fsm.FSM

	commitCh chan *model.GliderCommitment
	revealCh chan *model.GliderReveal
}

// New creates a tournament driver. The ring and registrations describe the
// eligible set for the current epoch; banned miners are filtered by the
// caller before construction.
func New(logger ulogger.Logger, config Config, registry *KeyImageRegistry, rep *reputation.Aggregator, proofs ProofBuilder, registrations []Registration) (*Tournament, error) {
	initPrometheusMetrics()

	engine, err := battle.NewEngine(config.GridSize, config.Steps)
	if err != nil {
		return nil, err
	}

	if len(registrations) < clsag.MinRingSize {
		return nil, errors.NewRingSizeError("eligible set of %d is below the minimum ring size %d", len(registrations), clsag.MinRingSize)
	}

	ring := make([]clsag.PublicKey, 0, len(registrations))
	regMap := make(map[model.PublicKey]Registration, len(registrations))
	for _, reg := range registrations {
		ring = append(ring, reg.RingKey)
		regMap[reg.Miner] = reg
	}

	machine := fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: "open_commit", Src: []string{PhaseIdle}, Dst: PhaseCommit},
			{Name: "open_reveal", Src: []string{PhaseCommit}, Dst: PhaseReveal},
			{Name: "open_battle", Src: []string{PhaseReveal}, Dst: PhaseBattle},
			{Name: "settle", Src: []string{PhaseBattle}, Dst: PhaseSettle},
			{Name: "reset", Src: []string{PhaseCommit, PhaseReveal, PhaseBattle, PhaseSettle}, Dst: PhaseIdle},
		},
		fsm.Callbacks{},
	)

	return &Tournament{
		logger:        logger,
		config:        config,
		engine:        engine,
		registry:      registry,
		reputation:    rep,
		proofs:        proofs,
		ring:          ring,
		registrations: regMap,
		machine:       machine,
		commitCh:      make(chan *model.GliderCommitment, config.MaxCommitments),
		revealCh:      make(chan *model.GliderReveal, config.MaxCommitments),
	}, nil
}

// Phase returns the current phase name.
func (t *Tournament) Phase() string {
	return t.machine.Current()
}

// Ring returns the eligible ring for this epoch.
func (t *Tournament) Ring() []clsag.PublicKey {
	return t.ring
}

// SubmitCommitment enqueues a commitment for the driver. A full channel
// means back-pressure: the submission is dropped and the miner retries.
func (t *Tournament) SubmitCommitment(c *model.GliderCommitment) error {
	select {
	case t.commitCh <- c:
		return nil
	default:
		return errors.NewThresholdError("commitment channel full")
	}
}

// SubmitReveal enqueues a reveal for the driver.
func (t *Tournament) SubmitReveal(r *model.GliderReveal) error {
	select {
	case t.revealCh <- r:
		return nil
	default:
		return errors.NewThresholdError("reveal channel full")
	}
}

// Run executes one tournament for the target height. Phases advance on
// elapsed wall-clock or, for Commit, on reaching the commitment cap —
// whichever first; when both trigger in the same tick, the timer wins.
// Cancellation drains the channels and purges the registry, leaving no
// half-applied state.
func (t *Tournament) Run(ctx context.Context, height uint64, prevVRF [32]byte) (*Result, error) {
	start := time.Now()

	if err := t.machine.Event(ctx, "open_commit"); err != nil {
		return nil, errors.New(errors.ERR_ERROR, "tournament already running", err)
	}
	defer func() {
		_ = t.machine.Event(ctx, "reset")
		t.registry.Purge(height, PhaseCommit)
		t.registry.Purge(height, PhaseReveal)
		t.drain()
	}()

	commits, err := t.runCommitPhase(ctx, height)
	if err != nil {
		return nil, err
	}
	t.logger.Infof("[Tournament] height %d: %d commitments", height, len(commits.commitments))

	if err := t.machine.Event(ctx, "open_reveal"); err != nil {
		return nil, err
	}

	reveals, err := t.runRevealPhase(ctx, height, commits, prevVRF)
	if err != nil {
		return nil, err
	}

	if err := t.machine.Event(ctx, "open_battle"); err != nil {
		return nil, err
	}

	revealed := reveals.revealed()
	t.logger.Infof("[Tournament] height %d: %d reveals", height, len(revealed))

	winner, proofs, err := t.runBattlePhase(ctx, revealed, prevVRF)
	if err != nil {
		return nil, err
	}

	if err := t.machine.Event(ctx, "settle"); err != nil {
		return nil, err
	}

	result := t.settle(height, winner, proofs, revealed, reveals.unrevealed())

	prometheusTournamentDuration.Observe(time.Since(start).Seconds())

	return result, nil
}

// runCommitPhase accepts commitments until the window closes or the cap is
// hit.
func (t *Tournament) runCommitPhase(ctx context.Context, height uint64) (*commitPool, error) {
	pool := newCommitPool(height, t.ring, t.registry, t.config.MaxCommitments)

	timer := time.NewTimer(t.config.CommitDuration)
	defer timer.Stop()

	for {
		// The time-based trigger is checked first so it orders before the
		// cap-based one when both fire in the same tick.
		select {
		case <-timer.C:
			return pool, nil
		default:
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return pool, nil
		case c := <-t.commitCh:
			if err := pool.add(c); err != nil {
				if errors.Is(err, errors.ErrEquivocation) {
					prometheusTournamentDuplicateKeyImages.Inc()
				}
				t.logger.Debugf("[Tournament] commitment rejected: %v", err)
				continue
			}
			prometheusTournamentCommitments.Inc()
			if pool.full() {
				return pool, nil
			}
		}
	}
}

// runRevealPhase accepts reveals until the window closes.
func (t *Tournament) runRevealPhase(ctx context.Context, height uint64, commits *commitPool, prevVRF [32]byte) (*revealPool, error) {
	pool := newRevealPool(height, t.registry, t.registrations, commits.commitments, prevVRF)

	timer := time.NewTimer(t.config.RevealDuration)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return pool, nil
		case r := <-t.revealCh:
			if err := pool.add(r); err != nil {
				if errors.Is(err, errors.ErrEquivocation) {
					// A reveal that does not bind to the commitment's ring
					// key, or a double reveal, is a cheat.
					if slash := t.reputation.Record(r.Miner, reputation.OutcomeCheat, height); slash != nil {
						t.logger.Warnf("[Tournament] slashing %s: %s", slash.Miner, slash.Reason)
					}
				}
				t.logger.Debugf("[Tournament] reveal rejected: %v", err)
				continue
			}
			prometheusTournamentReveals.Inc()
		}
	}
}

// runBattlePhase resolves single-elimination brackets over the revealed
// entrants in commitment order. Odd entrant counts give the last one a bye.
func (t *Tournament) runBattlePhase(ctx context.Context, revealed []*entrant, prevVRF [32]byte) (*entrant, []*model.BattleProof, error) {
	if len(revealed) == 0 {
		return nil, nil, nil
	}
	if len(revealed) == 1 {
		return revealed[0], nil, nil
	}

	var proofs []*model.BattleProof
	bracketIndex := uint32(0)

	round := revealed
	for len(round) > 1 {
		var next []*entrant

		for i := 0; i+1 < len(round); i += 2 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
			}

			a, b := round[i], round[i+1]
			entropy := battle.MatchEntropy(prevVRF, bracketIndex)

			result, err := t.engine.Run(&a.reveal.Glider, &b.reveal.Glider, entropy)
			if err != nil {
				return nil, nil, err
			}

			winner := t.resolveMatch(a, b, result)
			next = append(next, winner)

			proof, err := t.proofs.Build(result, a.reveal, b.reveal, bracketIndex)
			if err != nil {
				return nil, nil, err
			}
			proofs = append(proofs, proof)

			prometheusTournamentBattles.Inc()
			bracketIndex++
		}

		if len(round)%2 == 1 {
			// Bye for the odd entrant.
			next = append(next, round[len(round)-1])
		}

		round = next
	}

	return round[0], proofs, nil
}

// resolveMatch applies the engine verdict plus the consensus tie-break: on
// equal energies the commitment whose ring signature sorts first by byte
// order wins, keeping tie resolution deterministic.
func (t *Tournament) resolveMatch(a, b *entrant, result *battle.Result) *entrant {
	switch result.Winner {
	case battle.WinnerA:
		return a
	case battle.WinnerB:
		return b
	default:
		sigA, errA := a.commitment.RingSignature.Serialize()
		sigB, errB := b.commitment.RingSignature.Serialize()
		if errA != nil || errB != nil {
			return a
		}
		if bytes.Compare(sigA, sigB) <= 0 {
			return a
		}
		return b
	}
}

// settle emits reputation updates and assembles the result: the winner
// gains positive evidence once, losers negative, and non-revealers a
// doubled penalty. Non-revealers are identified through the registration
// map's key-image binding.
func (t *Tournament) settle(height uint64, winner *entrant, proofs []*model.BattleProof, revealed, unrevealed []*entrant) *Result {
	for _, e := range unrevealed {
		if miner, ok := t.minerForKeyImage(e.commitment.RingSignature.KeyImage); ok {
			t.reputation.Record(miner, reputation.OutcomeNoReveal, height)
		}
	}

	if winner == nil {
		t.logger.Warnf("[Tournament] height %d: empty tournament", height)
		prometheusTournamentEmpty.Inc()
		return &Result{Empty: true}
	}

	winnerPK := winner.reveal.Miner
	t.reputation.Record(winnerPK, reputation.OutcomeWin, height)

	for _, e := range revealed {
		if e == winner {
			continue
		}
		t.reputation.Record(e.reveal.Miner, reputation.OutcomeLoss, height)
	}

	t.logger.Infof("[Tournament] height %d: winner %s with %d battle proofs", height, winnerPK, len(proofs))

	return &Result{
		Winner:       winnerPK,
		BattleProofs: proofs,
	}
}

func (t *Tournament) minerForKeyImage(ki clsag.KeyImage) (model.PublicKey, bool) {
	for miner, reg := range t.registrations {
		if reg.KeyImage == ki {
			return miner, true
		}
	}
	return model.PublicKey{}, false
}

// drain discards pending submissions after a phase ends or is cancelled.
func (t *Tournament) drain() {
	for {
		select {
		case <-t.commitCh:
		case <-t.revealCh:
		default:
			return
		}
	}
}
