package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/p2p"
	"github.com/steake/bitcell/services/blockchain"
	"github.com/steake/bitcell/services/finality"
	"github.com/steake/bitcell/services/mempool"
	"github.com/steake/bitcell/services/reputation"
	"github.com/steake/bitcell/services/tournament"
	"github.com/steake/bitcell/state"
	"github.com/steake/bitcell/stores/chain"
	chainleveldb "github.com/steake/bitcell/stores/chain/leveldb"
	chainmemory "github.com/steake/bitcell/stores/chain/memory"
	"github.com/steake/bitcell/ulogger"
	"github.com/steake/bitcell/zk"
)

const progname = "bitcell"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	logLevel, _ := gocore.Config().Get("logLevel", "INFO")
	logger := ulogger.New(progname, logLevel)

	logger.Infof("[Node] starting %s %s (%s)", progname, version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Infof("[Node] shutdown signal received")
		cancel()
	}()

	if err := run(ctx, logger); err != nil {
		logger.Fatalf("[Node] %v", err)
	}
}

func run(ctx context.Context, logger ulogger.Logger) error {
	secretKey, err := loadNodeKey(logger)
	if err != nil {
		return err
	}
	logger.Infof("[Node] identity %s", secretKey.PublicKey())

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stateManager := state.NewManager()
	if err := restoreSnapshot(ctx, logger, store, stateManager); err != nil {
		return err
	}

	chainService, err := blockchain.New(ctx, logger, store, stateManager, secretKey)
	if err != nil {
		return err
	}

	rep := reputation.NewAggregator(logger)

	pool := mempool.New(logger, stateManager, 0)

	node := p2p.NewNode(logger, secretKey.PublicKey())
	if bootstrap, ok := gocore.Config().Get("p2p_bootstrapPeers"); ok && bootstrap != "" {
		node.AddBootstrapPeer(bootstrap)
	}
	go func() {
		if err := node.Start(ctx); err != nil {
			logger.Errorf("[Node] p2p stopped: %v", err)
		}
	}()

	startMetricsServer(logger)

	go consumeNetwork(ctx, logger, node, pool, chainService)

	return blockProductionLoop(ctx, logger, chainService, pool, rep, node, secretKey)
}

func loadNodeKey(logger ulogger.Logger) (*model.SecretKey, error) {
	seedHex, ok := gocore.Config().Get("node_keySeed")
	if !ok || seedHex == "" {
		logger.Warnf("[Node] no node_keySeed configured, generating an ephemeral key")
		return model.GenerateKey()
	}

	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("node_keySeed is not valid hex", err)
	}
	return model.SecretKeyFromSeed(seed)
}

func openStore(logger ulogger.Logger) (chain.Store, error) {
	storePath, _ := gocore.Config().Get("chainstore_path", "")
	if storePath == "" {
		logger.Warnf("[Node] no chainstore_path configured, using in-memory store")
		return chainmemory.New(), nil
	}
	return chainleveldb.New(logger, storePath)
}

func restoreSnapshot(ctx context.Context, logger ulogger.Logger, store chain.Store, stateManager *state.Manager) error {
	height, _, accountsBlob, ok, err := store.GetLatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := stateManager.RestoreAccounts(accountsBlob); err != nil {
		return err
	}
	logger.Infof("[Node] restored state snapshot at height %d (%d accounts)", height, stateManager.AccountCount())
	return nil
}

func startMetricsServer(logger ulogger.Logger) {
	metricsAddress, _ := gocore.Config().Get("metrics_listenAddress", ":9090")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(metricsAddress, mux); err != nil {
			logger.Errorf("[Node] metrics server stopped: %v", err)
		}
	}()
}

// consumeNetwork drains inbound gossip into the mempool and the chain.
func consumeNetwork(ctx context.Context, logger ulogger.Logger, node *p2p.Node, pool *mempool.Mempool, chainService *blockchain.Blockchain) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-node.Transactions():
			if err := pool.Add(tx); err != nil {
				logger.Debugf("[Node] gossip tx rejected: %v", err)
			}
		case block := <-node.Blocks():
			if err := chainService.AddBlock(ctx, block); err != nil {
				logger.Debugf("[Node] gossip block rejected: %v", err)
			}
		}
	}
}

// blockProductionLoop drives one tournament per block interval. With fewer
// registrations than the minimum ring size the tournament is skipped and
// every interval takes the VRF fallback path.
func blockProductionLoop(ctx context.Context, logger ulogger.Logger, chainService *blockchain.Blockchain, pool *mempool.Mempool, rep *reputation.Aggregator, node *p2p.Node, secretKey *model.SecretKey) error {
	intervalMs, _ := gocore.Config().GetInt("blockchain_intervalMillis", 10_000)
	maxBlockTxs, _ := gocore.Config().GetInt("blockchain_maxBlockTxs", 1_000)
	snapshotInterval, _ := gocore.Config().GetInt("blockchain_snapshotInterval", 100)

	selfPK := secretKey.PublicKey()

	selfStake, _ := gocore.Config().GetInt("finality_selfStake", 100)
	gadget := finality.NewGadget(logger, map[model.PublicKey]uint64{selfPK: uint64(selfStake)})

	tournamentDriver, registry := buildTournament(logger, rep)
	if registry != nil {
		defer registry.Stop()
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			height := chainService.Height() + 1

			prevVRF, err := previousVRF(ctx, chainService)
			if err != nil {
				logger.Errorf("[Node] VRF chain read failed: %v", err)
				continue
			}

			var winner model.PublicKey
			var battleProofs []*model.BattleProof

			if tournamentDriver != nil {
				result, err := tournamentDriver.Run(ctx, height, prevVRF)
				if err != nil {
					logger.Errorf("[Node] tournament failed: %v", err)
					continue
				}
				if !result.Empty {
					winner = result.Winner
					battleProofs = result.BattleProofs
				}
			}

			if winner.IsZero() {
				// Empty tournament: fall back to VRF sortition over the
				// eligible set; battle_proofs stays empty.
				eligible := rep.EligibleOf([]model.PublicKey{selfPK})
				winner, err = chainService.FallbackProposer(eligible, rep, prevVRF)
				if err != nil {
					logger.Errorf("[Node] fallback proposer failed: %v", err)
					continue
				}
			}

			if winner != selfPK {
				// Not our block to produce this interval.
				continue
			}

			txs := pool.Snapshot(maxBlockTxs)

			block, err := chainService.ProduceBlock(ctx, txs, battleProofs, winner)
			if err != nil {
				// Skip this interval; the VRF chain continues from the
				// unchanged previous block.
				logger.Errorf("[Node] block production failed: %v", err)
				continue
			}

			if err := chainService.AddBlock(ctx, block); err != nil {
				logger.Errorf("[Node] own block rejected: %v", err)
				continue
			}

			pool.Remove(txs)

			if err := node.BroadcastBlock(block); err != nil {
				logger.Warnf("[Node] block broadcast failed: %v", err)
			}

			castFinalityVotes(logger, gadget, secretKey, block)

			if snapshotInterval > 0 && block.Header.Height%uint64(snapshotInterval) == 0 {
				if err := chainService.CreateSnapshot(ctx); err != nil {
					logger.Warnf("[Node] snapshot at height %d failed: %v", block.Header.Height, err)
				} else {
					logger.Infof("[Node] state snapshot written at height %d", block.Header.Height)
				}
			}
		}
	}
}

// castFinalityVotes runs this node's own prevote/precommit round. In a
// multi-validator deployment peers' votes arrive over gossip and feed the
// same gadget.
func castFinalityVotes(logger ulogger.Logger, gadget *finality.Gadget, secretKey *model.SecretKey, block *model.Block) {
	for _, voteType := range []model.VoteType{model.VotePrevote, model.VotePrecommit} {
		vote := model.FinalityVote{
			BlockHash:   block.Hash(),
			BlockHeight: block.Header.Height,
			VoteType:    voteType,
			Round:       gadget.CurrentRound(),
		}
		model.SignVote(&vote, secretKey)

		if evidence, err := gadget.AddVote(vote); err != nil {
			logger.Errorf("[Node] finality vote failed: %v", err)
		} else if evidence != nil {
			logger.Warnf("[Node] own equivocation detected at height %d", block.Header.Height)
		}
	}

	if gadget.IsFinalized(block.Hash()) {
		logger.Infof("[Node] block %d finalized", block.Header.Height)
	}
}

// buildTournament wires the tournament driver when enough miners are
// registered for a valid ring; nil otherwise.
func buildTournament(logger ulogger.Logger, rep *reputation.Aggregator) (*tournament.Tournament, *tournament.KeyImageRegistry) {
	registrations := loadRegistrations(logger)
	if len(registrations) == 0 {
		logger.Warnf("[Node] no miner registrations, running in fallback-proposer mode")
		return nil, nil
	}

	registry := tournament.NewKeyImageRegistry(10 * time.Minute)

	driver, err := tournament.New(logger, tournament.ConfigFromGocore(), registry, rep, zk.NewNativeProofBuilder(), registrations)
	if err != nil {
		logger.Warnf("[Node] tournament disabled: %v", err)
		registry.Stop()
		return nil, nil
	}
	return driver, registry
}

func loadRegistrations(logger ulogger.Logger) []tournament.Registration {
	// Miner registration (miner key <-> ring key binding) arrives out of
	// band; the file format is one hex triple per line:
	// miner_pk:ring_pk:key_image.
	path, ok := gocore.Config().Get("tournament_registrationsFile")
	if !ok || path == "" {
		return nil
	}

	regs, err := tournament.LoadRegistrations(path)
	if err != nil {
		logger.Warnf("[Node] registrations load failed: %v", err)
		return nil
	}
	return regs
}

func previousVRF(ctx context.Context, chainService *blockchain.Blockchain) ([32]byte, error) {
	block, err := chainService.GetBlock(ctx, chainService.Height())
	if err != nil {
		return [32]byte{}, err
	}
	return block.Header.VRFOutput, nil
}
