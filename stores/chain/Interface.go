// Package chain defines the persistent key/value contract for the block
// store, addressed by column family. Two implementations are provided: an
// in-memory store for tests and single-process runs, and a goleveldb-backed
// store for durable nodes.
package chain

import (
	"context"

	"github.com/steake/bitcell/model"
)

// Store is the persistent-store contract. All methods are safe for
// concurrent use; writers serialize internally.
type Store interface {
	// StoreBlock writes the block, both header indexes, the per-transaction
	// entries (including the sender range index), and advances the chain
	// index, all in one batch.
	StoreBlock(ctx context.Context, block *model.Block) error

	// GetBlock fetches a block by hash.
	GetBlock(ctx context.Context, hash model.Hash256) (*model.Block, error)

	// GetBlockByHeight fetches a block via the height header index.
	GetBlockByHeight(ctx context.Context, height uint64) (*model.Block, error)

	// GetHeaderByHeight fetches a header by height.
	GetHeaderByHeight(ctx context.Context, height uint64) (*model.BlockHeader, error)

	// GetHeaderByHash fetches a header by block hash.
	GetHeaderByHash(ctx context.Context, hash model.Hash256) (*model.BlockHeader, error)

	// GetLatestHeight returns the chain tip height; ok is false on an empty
	// store.
	GetLatestHeight(ctx context.Context) (height uint64, ok bool, err error)

	// GetLatestHash returns the chain tip hash; ok is false on an empty
	// store.
	GetLatestHash(ctx context.Context) (hash model.Hash256, ok bool, err error)

	// StoreAccount persists an account record.
	StoreAccount(ctx context.Context, addr model.PublicKey, account *model.Account) error

	// GetAccount fetches an account; ok is false when absent.
	GetAccount(ctx context.Context, addr model.PublicKey) (account *model.Account, ok bool, err error)

	// StoreStateRoot records the state root at a height.
	StoreStateRoot(ctx context.Context, height uint64, root model.Hash256) error

	// GetStateRoot fetches the state root at a height.
	GetStateRoot(ctx context.Context, height uint64) (root model.Hash256, ok bool, err error)

	// GetTransaction fetches a raw transaction by hash.
	GetTransaction(ctx context.Context, txHash model.Hash256) (*model.Transaction, error)

	// GetTransactionsBySender range-scans the sender index in height order,
	// returning up to limit transaction hashes.
	GetTransactionsBySender(ctx context.Context, sender model.PublicKey, limit int) ([]model.Hash256, error)

	// CreateSnapshot stores the state snapshot blob at height and advances
	// the latest-snapshot pointer.
	CreateSnapshot(ctx context.Context, height uint64, stateRoot model.Hash256, accountsBlob []byte) error

	// GetLatestSnapshot returns the newest snapshot; ok is false when none
	// exists.
	GetLatestSnapshot(ctx context.Context) (height uint64, stateRoot []byte, accountsBlob []byte, ok bool, err error)

	// GetSnapshot returns the snapshot at an exact height.
	GetSnapshot(ctx context.Context, height uint64) (stateRoot []byte, accountsBlob []byte, ok bool, err error)

	// Prune deletes blocks, headers, state roots and transaction entries for
	// heights in [0, latest-keepLast) in one atomic batch. Snapshots are
	// retained regardless.
	Prune(ctx context.Context, keepLast uint64) error

	// Close releases the store.
	Close() error
}
