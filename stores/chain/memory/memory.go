// Package memory is the in-memory chain store used by tests and
// single-process nodes. It mirrors the column-family layout of the durable
// store so behavior is interchangeable.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/stores/chain"
)

type senderKey struct {
	sender model.PublicKey
	height uint64
	txHash model.Hash256
}

// Memory implements chain.Store over plain maps.
type Memory struct {
	mu sync.RWMutex

	blocks          map[model.Hash256][]byte
	headersByHeight map[uint64][]byte
	headersByHash   map[model.Hash256][]byte
	accounts        map[model.PublicKey][]byte
	stateRoots      map[uint64]model.Hash256
	transactions    map[model.Hash256][]byte
	txBySender      []senderKey
	snapshots       map[uint64][]byte

	latestHeight   uint64
	latestHash     model.Hash256
	latestSnapshot uint64
	hasLatest      bool
	hasSnapshot    bool
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		blocks:          make(map[model.Hash256][]byte),
		headersByHeight: make(map[uint64][]byte),
		headersByHash:   make(map[model.Hash256][]byte),
		accounts:        make(map[model.PublicKey][]byte),
		stateRoots:      make(map[uint64]model.Hash256),
		transactions:    make(map[model.Hash256][]byte),
		snapshots:       make(map[uint64][]byte),
	}
}

func (m *Memory) StoreBlock(_ context.Context, block *model.Block) error {
	blockBytes, err := block.Serialize()
	if err != nil {
		return errors.NewStorageError("block serialize failed", err)
	}
	headerBytes, err := block.Header.Serialize()
	if err != nil {
		return errors.NewStorageError("header serialize failed", err)
	}

	hash := block.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[hash] = blockBytes
	m.headersByHeight[block.Header.Height] = headerBytes
	m.headersByHash[hash] = headerBytes

	for _, tx := range block.Transactions {
		txBytes, err := tx.Serialize()
		if err != nil {
			return errors.NewStorageError("transaction serialize failed", err)
		}
		txHash := tx.Hash()
		m.transactions[txHash] = txBytes
		m.txBySender = append(m.txBySender, senderKey{
			sender: tx.From,
			height: block.Header.Height,
			txHash: txHash,
		})
	}

	m.latestHeight = block.Header.Height
	m.latestHash = hash
	m.hasLatest = true

	return nil
}

func (m *Memory) GetBlock(_ context.Context, hash model.Hash256) (*model.Block, error) {
	m.mu.RLock()
	data, ok := m.blocks[hash]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("block %s not found", hash)
	}
	return model.DeserializeBlock(data)
}

func (m *Memory) GetBlockByHeight(ctx context.Context, height uint64) (*model.Block, error) {
	header, err := m.GetHeaderByHeight(ctx, height)
	if err != nil {
		return nil, err
	}
	return m.GetBlock(ctx, header.Hash())
}

func (m *Memory) GetHeaderByHeight(_ context.Context, height uint64) (*model.BlockHeader, error) {
	m.mu.RLock()
	data, ok := m.headersByHeight[height]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("header at height %d not found", height)
	}
	return model.DeserializeBlockHeader(data)
}

func (m *Memory) GetHeaderByHash(_ context.Context, hash model.Hash256) (*model.BlockHeader, error) {
	m.mu.RLock()
	data, ok := m.headersByHash[hash]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("header %s not found", hash)
	}
	return model.DeserializeBlockHeader(data)
}

func (m *Memory) GetLatestHeight(_ context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.latestHeight, m.hasLatest, nil
}

func (m *Memory) GetLatestHash(_ context.Context) (model.Hash256, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.latestHash, m.hasLatest, nil
}

func (m *Memory) StoreAccount(_ context.Context, addr model.PublicKey, account *model.Account) error {
	data, err := account.Serialize()
	if err != nil {
		return errors.NewStorageError("account serialize failed", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[addr] = data
	return nil
}

func (m *Memory) GetAccount(_ context.Context, addr model.PublicKey) (*model.Account, bool, error) {
	m.mu.RLock()
	data, ok := m.accounts[addr]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	acc, err := model.DeserializeAccount(data)
	if err != nil {
		return nil, false, errors.NewStorageError("account decode failed", err)
	}
	return acc, true, nil
}

func (m *Memory) StoreStateRoot(_ context.Context, height uint64, root model.Hash256) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateRoots[height] = root
	return nil
}

func (m *Memory) GetStateRoot(_ context.Context, height uint64) (model.Hash256, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root, ok := m.stateRoots[height]
	return root, ok, nil
}

func (m *Memory) GetTransaction(_ context.Context, txHash model.Hash256) (*model.Transaction, error) {
	m.mu.RLock()
	data, ok := m.transactions[txHash]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("transaction %s not found", txHash)
	}
	return model.DeserializeTransaction(data)
}

func (m *Memory) GetTransactionsBySender(_ context.Context, sender model.PublicKey, limit int) ([]model.Hash256, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []senderKey
	for _, k := range m.txBySender {
		if k.sender == sender {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].height < keys[j].height
	})

	var out []model.Hash256
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, k.txHash)
	}
	return out, nil
}

func (m *Memory) CreateSnapshot(_ context.Context, height uint64, stateRoot model.Hash256, accountsBlob []byte) error {
	blob := chain.EncodeSnapshotBlob(height, stateRoot.Bytes(), accountsBlob)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[height] = blob
	m.latestSnapshot = height
	m.hasSnapshot = true
	return nil
}

func (m *Memory) GetLatestSnapshot(_ context.Context) (uint64, []byte, []byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasSnapshot {
		return 0, nil, nil, false, nil
	}
	blob, ok := m.snapshots[m.latestSnapshot]
	if !ok {
		return 0, nil, nil, false, nil
	}
	root, accounts, err := chain.DecodeSnapshotBlob(blob, m.latestSnapshot)
	if err != nil {
		return 0, nil, nil, false, err
	}
	return m.latestSnapshot, root, accounts, true, nil
}

func (m *Memory) GetSnapshot(_ context.Context, height uint64) ([]byte, []byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.snapshots[height]
	if !ok {
		return nil, nil, false, nil
	}
	root, accounts, err := chain.DecodeSnapshotBlob(blob, height)
	if err != nil {
		return nil, nil, false, err
	}
	return root, accounts, true, nil
}

func (m *Memory) Prune(_ context.Context, keepLast uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasLatest || m.latestHeight < keepLast {
		return nil
	}
	cutoff := m.latestHeight - keepLast

	for height := uint64(0); height < cutoff; height++ {
		headerBytes, ok := m.headersByHeight[height]
		if !ok {
			continue
		}
		header, err := model.DeserializeBlockHeader(headerBytes)
		if err != nil {
			return errors.NewStorageError("header decode failed during prune", err)
		}
		hash := header.Hash()

		if blockBytes, ok := m.blocks[hash]; ok {
			block, err := model.DeserializeBlock(blockBytes)
			if err == nil {
				for _, tx := range block.Transactions {
					delete(m.transactions, tx.Hash())
				}
			}
			delete(m.blocks, hash)
		}

		delete(m.headersByHeight, height)
		delete(m.headersByHash, hash)
		delete(m.stateRoots, height)
	}

	kept := m.txBySender[:0]
	for _, k := range m.txBySender {
		if k.height >= cutoff {
			kept = append(kept, k)
		}
	}
	m.txBySender = kept

	return nil
}

func (m *Memory) Close() error {
	return nil
}

var _ chain.Store = (*Memory)(nil)
