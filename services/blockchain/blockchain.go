// Package blockchain sequences blocks: production with VRF chaining,
// validation (linkage, signature, VRF, tx root, transactions, battle
// proofs), and atomic application of state transitions. The block store is
// single writer / many reader; writers hold the lock for the whole of
// AddBlock.
package blockchain

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ordishs/gocore"

	"github.com/steake/bitcell/crypto/vrf"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/services/reputation"
	"github.com/steake/bitcell/state"
	"github.com/steake/bitcell/stores/chain"
	"github.com/steake/bitcell/ulogger"
)

// Default economics. Overridable through config for test networks.
const (
	DefaultInitialBlockReward = 50 * 100_000_000
	DefaultHalvingInterval    = 210_000
	MaxHalvings               = 64
)

// TxLocation is a transaction's position in the chain.
type TxLocation struct {
	BlockHeight uint64
	TxIndex     int
}

// Blockchain owns the chain tip, the state, and the transaction index.
type Blockchain struct {
	logger ulogger.Logger
	store  chain.Store
	state  *state.Manager

	secretKey *model.SecretKey

	initialReward   uint64
	halvingInterval uint64

	// mu guards the tip and the tx index. Readers of height/hash take the
	// read lock; AddBlock holds the write lock end to end.
	mu         sync.RWMutex
	height     uint64
	latestHash model.Hash256
	txIndex    map[model.Hash256]TxLocation
}

// New creates a blockchain over the given store, writing the genesis block
// when the store is empty.
func New(ctx context.Context, logger ulogger.Logger, store chain.Store, stateManager *state.Manager, secretKey *model.SecretKey) (*Blockchain, error) {
	initPrometheusMetrics()

	initialReward, _ := gocore.Config().GetInt("blockchain_initialReward", DefaultInitialBlockReward)
	halvingInterval, _ := gocore.Config().GetInt("blockchain_halvingInterval", DefaultHalvingInterval)

	b := &Blockchain{
		logger:          logger,
		store:           store,
		state:           stateManager,
		secretKey:       secretKey,
		initialReward:   uint64(initialReward),
		halvingInterval: uint64(halvingInterval),
		txIndex:         make(map[model.Hash256]TxLocation),
	}

	height, ok, err := store.GetLatestHeight(ctx)
	if err != nil {
		return nil, err
	}

	if !ok {
		genesis := b.createGenesisBlock()
		if err := store.StoreBlock(ctx, genesis); err != nil {
			return nil, err
		}
		b.height = model.GenesisHeight
		b.latestHash = genesis.Hash()
		b.logger.Infof("[Blockchain] genesis block %s written", b.latestHash)
	} else {
		hash, _, err := store.GetLatestHash(ctx)
		if err != nil {
			return nil, err
		}
		b.height = height
		b.latestHash = hash
		if err := b.rebuildTxIndex(ctx); err != nil {
			return nil, err
		}
		b.logger.Infof("[Blockchain] resumed at height %d (%s)", height, hash)
	}

	prometheusChainHeight.Set(float64(b.height))

	return b, nil
}

func (b *Blockchain) createGenesisBlock() *model.Block {
	header := model.BlockHeader{
		Height:    model.GenesisHeight,
		PrevHash:  model.Hash256{},
		TxRoot:    model.Hash256{},
		StateRoot: model.Hash256{},
		Timestamp: 0,
		Proposer:  b.secretKey.PublicKey(),
	}

	headerHash := header.Hash()
	return &model.Block{
		Header:    header,
		Signature: b.secretKey.Sign(headerHash.Bytes()),
	}
}

// rebuildTxIndex replays stored blocks into the in-memory index after a
// restart. Pruned heights are skipped.
func (b *Blockchain) rebuildTxIndex(ctx context.Context) error {
	for height := uint64(0); height <= b.height; height++ {
		block, err := b.store.GetBlockByHeight(ctx, height)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return err
		}
		for idx, tx := range block.Transactions {
			b.txIndex[tx.Hash()] = TxLocation{BlockHeight: height, TxIndex: idx}
		}
	}
	return nil
}

// Height returns the chain tip height.
func (b *Blockchain) Height() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.height
}

// LatestHash returns the chain tip hash.
func (b *Blockchain) LatestHash() model.Hash256 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.latestHash
}

// State returns the state manager.
func (b *Blockchain) State() *state.Manager {
	return b.state
}

// GetBlock fetches a block by height.
func (b *Blockchain) GetBlock(ctx context.Context, height uint64) (*model.Block, error) {
	return b.store.GetBlockByHeight(ctx, height)
}

// GetTransaction resolves a transaction by hash via the O(1) index.
func (b *Blockchain) GetTransaction(ctx context.Context, txHash model.Hash256) (*model.Transaction, TxLocation, error) {
	b.mu.RLock()
	loc, ok := b.txIndex[txHash]
	b.mu.RUnlock()

	if !ok {
		return nil, TxLocation{}, errors.NewNotFoundError("transaction %s not indexed", txHash)
	}

	block, err := b.store.GetBlockByHeight(ctx, loc.BlockHeight)
	if err != nil {
		return nil, TxLocation{}, err
	}
	if loc.TxIndex >= len(block.Transactions) {
		return nil, TxLocation{}, errors.NewStorageError("tx index out of range for block %d", loc.BlockHeight)
	}
	return block.Transactions[loc.TxIndex], loc, nil
}

// CalculateBlockReward halves the initial reward every halvingInterval
// blocks, clamped to zero after MaxHalvings.
func (b *Blockchain) CalculateBlockReward(height uint64) uint64 {
	halvings := height / b.halvingInterval
	if halvings >= MaxHalvings {
		return 0
	}
	return b.initialReward >> halvings
}

// vrfInput reconstructs the VRF input for a block at newHeight: the genesis
// hash for the first block, the previous block's VRF output thereafter.
// Callers hold at least the read lock so the tip cannot move between input
// read and VRF evaluation.
func (b *Blockchain) vrfInput(ctx context.Context, newHeight uint64, prevHash model.Hash256) ([]byte, error) {
	if newHeight == 1 {
		return prevHash.Bytes(), nil
	}

	prevHeader, err := b.store.GetHeaderByHeight(ctx, newHeight-1)
	if err != nil {
		return nil, errors.NewBlockInvalidError("previous block %d not found for VRF chaining", newHeight-1, err)
	}
	return prevHeader.VRFOutput[:], nil
}

// ProduceBlock assembles, signs and returns a new block. The proposer is the
// tournament winner; the VRF is evaluated under this node's key, so a node
// only produces blocks it proposes.
func (b *Blockchain) ProduceBlock(ctx context.Context, transactions []*model.Transaction, battleProofs []*model.BattleProof, winner model.PublicKey) (*model.Block, error) {
	start := time.Now()

	b.mu.RLock()
	currentHeight := b.height
	prevHash := b.latestHash

	newHeight := currentHeight + 1

	// The VRF input is read and evaluated under the same lock hold to
	// eliminate the race window against a concurrent AddBlock.
	input, err := b.vrfInput(ctx, newHeight, prevHash)
	if err != nil {
		b.mu.RUnlock()
		return nil, err
	}
	vrfOutput, vrfProof, err := vrf.Prove(b.secretKey.Ed25519(), input)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	header := model.BlockHeader{
		Height:    newHeight,
		PrevHash:  prevHash,
		TxRoot:    model.CalculateTxRoot(transactions),
		StateRoot: b.state.StateRoot(),
		Timestamp: uint64(time.Now().Unix()),
		Proposer:  winner,
		VRFOutput: vrfOutput,
		VRFProof:  vrfProof,
		Work:      uint64(len(battleProofs)) * 1000,
	}

	headerHash := header.Hash()
	block := &model.Block{
		Header:       header,
		Transactions: transactions,
		BattleProofs: battleProofs,
		Signature:    b.secretKey.Sign(headerHash.Bytes()),
	}

	prometheusBlockProduced.Inc()
	prometheusBlockProducedDuration.Observe(time.Since(start).Seconds())

	return block, nil
}

// ValidateBlock checks a block against the current tip: height continuity,
// previous-hash linkage, proposer signature, VRF chain, tx root, and every
// transaction. Any failure rejects the whole block.
func (b *Blockchain) ValidateBlock(ctx context.Context, block *model.Block) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.validateBlockLocked(ctx, block)
}

func (b *Blockchain) validateBlockLocked(ctx context.Context, block *model.Block) error {
	if block.Header.Height != b.height+1 {
		return errors.NewBlockInvalidError("invalid block height: expected %d, got %d", b.height+1, block.Header.Height)
	}

	if block.Header.PrevHash != b.latestHash {
		return errors.NewBlockInvalidError("previous hash mismatch")
	}

	headerHash := block.Header.Hash()
	if !block.Header.Proposer.Verify(headerHash.Bytes(), block.Signature) {
		return errors.NewBlockInvalidError("invalid block signature")
	}

	input, err := b.vrfInput(ctx, block.Header.Height, block.Header.PrevHash)
	if err != nil {
		return err
	}
	vrfOutput, err := vrf.Verify(block.Header.Proposer.Bytes(), input, block.Header.VRFProof)
	if err != nil {
		return errors.NewBlockInvalidError("VRF verification failed", err)
	}
	if vrfOutput != block.Header.VRFOutput {
		return errors.NewBlockInvalidError("VRF output mismatch")
	}

	if model.CalculateTxRoot(block.Transactions) != block.Header.TxRoot {
		return errors.NewBlockInvalidError("transaction root mismatch")
	}

	if err := b.validateTransactions(block); err != nil {
		return err
	}

	if err := validateBattleProofs(block); err != nil {
		return err
	}

	return nil
}

// validateBattleProofs checks the tournament outcome carried by the block
// is internally consistent and names the proposer as the final winner.
// This structural check is what a validator can do from the block alone.
// The CA replay and the Groth16 proof are not checked here, and the
// tournament path does not check them either.
func validateBattleProofs(block *model.Block) error {
	proofs := block.BattleProofs
	if len(proofs) == 0 {
		// Empty tournament: the proposer came from VRF sortition.
		return nil
	}

	for i, proof := range proofs {
		if proof.Winner > 2 {
			return errors.NewBlockInvalidError("battle proof %d has invalid winner %d", i, proof.Winner)
		}
		if proof.InitialGridRoot.IsZero() || proof.FinalGridRoot.IsZero() {
			return errors.NewBlockInvalidError("battle proof %d missing grid digests", i)
		}
		switch proof.Winner {
		case 0:
			if proof.EnergyA <= proof.EnergyB {
				return errors.NewBlockInvalidError("battle proof %d energies contradict winner", i)
			}
		case 1:
			if proof.EnergyB <= proof.EnergyA {
				return errors.NewBlockInvalidError("battle proof %d energies contradict winner", i)
			}
		default:
			if proof.EnergyA != proof.EnergyB {
				return errors.NewBlockInvalidError("battle proof %d energies contradict tie", i)
			}
		}
	}

	// The final match decides the block proposer. Ties resolve at the
	// consensus layer, so either entrant may appear; anyone else is an
	// inconsistent winner declaration.
	final := proofs[len(proofs)-1]
	winner := final.MinerA
	if final.Winner == 1 {
		winner = final.MinerB
	}
	if final.Winner != 2 && winner != block.Header.Proposer {
		return errors.NewBlockInvalidError("tournament winner inconsistent with block proposer")
	}
	if final.Winner == 2 && final.MinerA != block.Header.Proposer && final.MinerB != block.Header.Proposer {
		return errors.NewBlockInvalidError("tournament winner inconsistent with block proposer")
	}

	return nil
}

// validateTransactions dry-runs the block's transactions against a
// projection of the current state, so AddBlock never partially applies.
func (b *Blockchain) validateTransactions(block *model.Block) error {
	projection := make(map[model.PublicKey]model.Account)

	load := func(addr model.PublicKey) (model.Account, bool) {
		if acc, ok := projection[addr]; ok {
			return acc, true
		}
		acc, ok := b.state.GetAccount(addr)
		if ok {
			projection[addr] = acc
		}
		return acc, ok
	}

	// The proposer's reward and fees are visible to later transactions in
	// the same block.
	reward := b.CalculateBlockReward(block.Header.Height)
	if reward > 0 {
		acc, _ := load(block.Header.Proposer)
		acc.Balance += reward
		projection[block.Header.Proposer] = acc
	}

	for _, tx := range block.Transactions {
		if err := tx.VerifySignature(); err != nil {
			return err
		}

		sender, known := load(tx.From)
		if !known {
			// New-account policy: accepted only with nonce 0 and live gas
			// parameters within the hard caps.
			if tx.Nonce != 0 {
				return errors.NewTxInvalidError("unknown sender with nonce %d", tx.Nonce)
			}
			if tx.GasPrice == 0 || tx.GasLimit == 0 {
				return errors.NewTxInvalidError("new account requires non-zero gas parameters")
			}
		}
		if tx.GasPrice > model.MaxGasPrice || tx.GasLimit > model.MaxGasLimit {
			return errors.NewTxInvalidError("gas parameters exceed hard caps")
		}

		if tx.Nonce != sender.Nonce {
			return errors.NewTxInvalidError("invalid nonce: expected %d, got %d", sender.Nonce, tx.Nonce)
		}

		total := tx.Amount + tx.Fee()
		if total < tx.Amount || sender.Balance < total {
			return errors.NewTxInvalidError("insufficient balance: have %d, need %d", sender.Balance, total)
		}

		sender.Balance -= total
		sender.Nonce++
		projection[tx.From] = sender

		receiver, _ := load(tx.To)
		receiver.Balance += tx.Amount
		projection[tx.To] = receiver

		proposer, _ := load(block.Header.Proposer)
		proposer.Balance += tx.Fee()
		projection[block.Header.Proposer] = proposer
	}

	return nil
}

// AddBlock validates and applies a block: reward, transactions (fees go to
// the proposer), tx index, persistence, tip advance. The write lock is held
// throughout so readers never observe a half-applied block.
func (b *Blockchain) AddBlock(ctx context.Context, block *model.Block) error {
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validateBlockLocked(ctx, block); err != nil {
		prometheusBlockRejected.Inc()
		return err
	}

	blockHeight := block.Header.Height
	blockHash := block.Hash()

	reward := b.CalculateBlockReward(blockHeight)
	if reward > 0 {
		b.state.CreditAccount(block.Header.Proposer, reward)
	}

	for _, tx := range block.Transactions {
		if _, err := b.state.ApplyTransaction(tx.From, tx.To, tx.Amount, tx.Fee(), tx.Nonce); err != nil {
			// validateTransactions projected this exact sequence; a failure
			// here means the projection and the state disagree.
			return errors.NewBlockInvalidError("transaction apply failed after validation", err)
		}
		if fee := tx.Fee(); fee > 0 {
			b.state.CreditAccount(block.Header.Proposer, fee)
		}
	}

	for idx, tx := range block.Transactions {
		b.txIndex[tx.Hash()] = TxLocation{BlockHeight: blockHeight, TxIndex: idx}
	}

	if err := b.store.StoreBlock(ctx, block); err != nil {
		return err
	}
	if err := b.store.StoreStateRoot(ctx, blockHeight, b.state.StateRoot()); err != nil {
		return err
	}

	b.height = blockHeight
	b.latestHash = blockHash

	prometheusChainHeight.Set(float64(blockHeight))
	prometheusBlockAdded.Inc()
	prometheusBlockAddedDuration.Observe(time.Since(start).Seconds())

	b.logger.Infof("[Blockchain] added block %d (%s) with %d txs, %d battle proofs",
		blockHeight, blockHash, len(block.Transactions), len(block.BattleProofs))

	return nil
}

// CreateSnapshot persists the full account state at the current tip so a
// restarted node can restore without replaying the chain.
func (b *Blockchain) CreateSnapshot(ctx context.Context) error {
	b.mu.RLock()
	height := b.height
	b.mu.RUnlock()

	return b.store.CreateSnapshot(ctx, height, b.state.StateRoot(), b.state.SerializeAccounts())
}

// FallbackProposer sortitions a proposer from the eligible set when a
// tournament produces no winner. Selection is deterministic from the
// previous VRF output, weighted by trust.
func (b *Blockchain) FallbackProposer(eligible []model.PublicKey, rep *reputation.Aggregator, prevVRF [32]byte) (model.PublicKey, error) {
	if len(eligible) == 0 {
		return model.PublicKey{}, errors.NewInvalidArgumentError("empty eligible set")
	}

	candidates := make([]model.PublicKey, len(eligible))
	copy(candidates, eligible)
	sort.Slice(candidates, func(i, j int) bool {
		for k := 0; k < len(candidates[i]); k++ {
			if candidates[i][k] != candidates[j][k] {
				return candidates[i][k] < candidates[j][k]
			}
		}
		return false
	})

	best := candidates[0]
	bestScore := -1.0
	for _, pk := range candidates {
		buf := make([]byte, 0, len(prevVRF)+len(pk))
		buf = append(buf, prevVRF[:]...)
		buf = append(buf, pk[:]...)
		h := model.NewHash256(buf)

		draw := float64(binary.BigEndian.Uint64(h[:8])) / float64(math.MaxUint64)
		score := draw * rep.Trust(pk)
		if score > bestScore {
			bestScore = score
			best = pk
		}
	}

	return best, nil
}
