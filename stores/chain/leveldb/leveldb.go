// Package leveldb is the durable chain store over goleveldb. Column
// families from the store contract map to one-byte key prefixes; all
// multi-key writes go through a single batch so a crash never leaves a
// partial block on disk.
package leveldb

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/util"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/stores/chain"
	"github.com/steake/bitcell/ulogger"
)

// Column-family prefixes.
const (
	cfBlocks        byte = 0x01 // block_hash -> serialized block
	cfHeadersHeight byte = 0x02 // height_be -> serialized header
	cfHeadersHash   byte = 0x03 // block_hash -> serialized header
	cfAccounts      byte = 0x04 // address -> serialized account
	cfStateRoots    byte = 0x05 // height_be -> root hash
	cfChainIndex    byte = 0x06 // "latest_height" | "latest_hash" | "latest_snapshot"
	cfSnapshots     byte = 0x07 // "snapshot_<height>" -> snapshot blob
	cfTransactions  byte = 0x08 // tx_hash -> serialized tx
	cfTxBySender    byte = 0x09 // sender || height_be || tx_hash -> tx_hash
)

var (
	keyLatestHeight   = []byte("latest_height")
	keyLatestHash     = []byte("latest_hash")
	keyLatestSnapshot = []byte("latest_snapshot")
)

// Store implements chain.Store over a goleveldb database.
type Store struct {
	logger ulogger.Logger
	db     *leveldb.DB

	// Writers serialize so the chain index never races a block write.
	writeMu sync.Mutex
}

// New opens (or creates) the database at path.
func New(logger ulogger.Logger, path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.NewStorageError("failed to open leveldb at %s", path, err)
	}
	return &Store{logger: logger, db: db}, nil
}

func cfKey(cf byte, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, cf)
	return append(out, key...)
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, height)
}

func snapshotKey(height uint64) []byte {
	return []byte(fmt.Sprintf("snapshot_%d", height))
}

func (s *Store) get(cf byte, key []byte) ([]byte, bool, error) {
	data, err := s.db.Get(cfKey(cf, key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, errors.NewStorageError("leveldb get failed", err)
	}
	return data, true, nil
}

func (s *Store) StoreBlock(_ context.Context, block *model.Block) error {
	blockBytes, err := block.Serialize()
	if err != nil {
		return errors.NewStorageError("block serialize failed", err)
	}
	headerBytes, err := block.Header.Serialize()
	if err != nil {
		return errors.NewStorageError("header serialize failed", err)
	}

	hash := block.Hash()
	height := block.Header.Height

	batch := new(leveldb.Batch)
	batch.Put(cfKey(cfBlocks, hash.Bytes()), blockBytes)
	batch.Put(cfKey(cfHeadersHeight, heightKey(height)), headerBytes)
	batch.Put(cfKey(cfHeadersHash, hash.Bytes()), headerBytes)

	for _, tx := range block.Transactions {
		txBytes, err := tx.Serialize()
		if err != nil {
			return errors.NewStorageError("transaction serialize failed", err)
		}
		txHash := tx.Hash()
		batch.Put(cfKey(cfTransactions, txHash.Bytes()), txBytes)

		senderKey := make([]byte, 0, 32+8+32)
		senderKey = append(senderKey, tx.From[:]...)
		senderKey = binary.BigEndian.AppendUint64(senderKey, height)
		senderKey = append(senderKey, txHash.Bytes()...)
		batch.Put(cfKey(cfTxBySender, senderKey), txHash.Bytes())
	}

	batch.Put(cfKey(cfChainIndex, keyLatestHeight), heightKey(height))
	batch.Put(cfKey(cfChainIndex, keyLatestHash), hash.Bytes())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("block write failed", err)
	}
	return nil
}

func (s *Store) GetBlock(_ context.Context, hash model.Hash256) (*model.Block, error) {
	data, ok, err := s.get(cfBlocks, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFoundError("block %s not found", hash)
	}
	return model.DeserializeBlock(data)
}

func (s *Store) GetBlockByHeight(ctx context.Context, height uint64) (*model.Block, error) {
	header, err := s.GetHeaderByHeight(ctx, height)
	if err != nil {
		return nil, err
	}
	return s.GetBlock(ctx, header.Hash())
}

func (s *Store) GetHeaderByHeight(_ context.Context, height uint64) (*model.BlockHeader, error) {
	data, ok, err := s.get(cfHeadersHeight, heightKey(height))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFoundError("header at height %d not found", height)
	}
	return model.DeserializeBlockHeader(data)
}

func (s *Store) GetHeaderByHash(_ context.Context, hash model.Hash256) (*model.BlockHeader, error) {
	data, ok, err := s.get(cfHeadersHash, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFoundError("header %s not found", hash)
	}
	return model.DeserializeBlockHeader(data)
}

func (s *Store) GetLatestHeight(_ context.Context) (uint64, bool, error) {
	data, ok, err := s.get(cfChainIndex, keyLatestHeight)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, errors.NewStorageError("corrupt latest_height entry")
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func (s *Store) GetLatestHash(_ context.Context) (model.Hash256, bool, error) {
	var hash model.Hash256
	data, ok, err := s.get(cfChainIndex, keyLatestHash)
	if err != nil || !ok {
		return hash, false, err
	}
	h, valid := model.Hash256FromBytes(data)
	if !valid {
		return hash, false, errors.NewStorageError("corrupt latest_hash entry")
	}
	return h, true, nil
}

func (s *Store) StoreAccount(_ context.Context, addr model.PublicKey, account *model.Account) error {
	data, err := account.Serialize()
	if err != nil {
		return errors.NewStorageError("account serialize failed", err)
	}
	if err := s.db.Put(cfKey(cfAccounts, addr.Bytes()), data, nil); err != nil {
		return errors.NewStorageError("account write failed", err)
	}
	return nil
}

func (s *Store) GetAccount(_ context.Context, addr model.PublicKey) (*model.Account, bool, error) {
	data, ok, err := s.get(cfAccounts, addr.Bytes())
	if err != nil || !ok {
		return nil, false, err
	}
	acc, err := model.DeserializeAccount(data)
	if err != nil {
		return nil, false, errors.NewStorageError("account decode failed", err)
	}
	return acc, true, nil
}

func (s *Store) StoreStateRoot(_ context.Context, height uint64, root model.Hash256) error {
	if err := s.db.Put(cfKey(cfStateRoots, heightKey(height)), root.Bytes(), nil); err != nil {
		return errors.NewStorageError("state root write failed", err)
	}
	return nil
}

func (s *Store) GetStateRoot(_ context.Context, height uint64) (model.Hash256, bool, error) {
	var root model.Hash256
	data, ok, err := s.get(cfStateRoots, heightKey(height))
	if err != nil || !ok {
		return root, false, err
	}
	h, valid := model.Hash256FromBytes(data)
	if !valid {
		return root, false, errors.NewStorageError("corrupt state root entry")
	}
	return h, true, nil
}

func (s *Store) GetTransaction(_ context.Context, txHash model.Hash256) (*model.Transaction, error) {
	data, ok, err := s.get(cfTransactions, txHash.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFoundError("transaction %s not found", txHash)
	}
	return model.DeserializeTransaction(data)
}

func (s *Store) GetTransactionsBySender(_ context.Context, sender model.PublicKey, limit int) ([]model.Hash256, error) {
	prefix := cfKey(cfTxBySender, sender.Bytes())
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []model.Hash256
	for iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		h, valid := model.Hash256FromBytes(iter.Value())
		if !valid {
			return nil, errors.NewStorageError("corrupt tx_by_sender entry")
		}
		out = append(out, h)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.NewStorageError("sender index scan failed", err)
	}
	return out, nil
}

func (s *Store) CreateSnapshot(_ context.Context, height uint64, stateRoot model.Hash256, accountsBlob []byte) error {
	blob := chain.EncodeSnapshotBlob(height, stateRoot.Bytes(), accountsBlob)

	batch := new(leveldb.Batch)
	batch.Put(cfKey(cfSnapshots, snapshotKey(height)), blob)
	batch.Put(cfKey(cfChainIndex, keyLatestSnapshot), heightKey(height))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("snapshot write failed", err)
	}
	return nil
}

func (s *Store) GetLatestSnapshot(ctx context.Context) (uint64, []byte, []byte, bool, error) {
	data, ok, err := s.get(cfChainIndex, keyLatestSnapshot)
	if err != nil || !ok {
		return 0, nil, nil, false, err
	}
	if len(data) != 8 {
		return 0, nil, nil, false, errors.NewStorageError("corrupt latest_snapshot entry")
	}
	height := binary.BigEndian.Uint64(data)

	root, accounts, ok, err := s.GetSnapshot(ctx, height)
	if err != nil || !ok {
		return 0, nil, nil, false, err
	}
	return height, root, accounts, true, nil
}

func (s *Store) GetSnapshot(_ context.Context, height uint64) ([]byte, []byte, bool, error) {
	blob, ok, err := s.get(cfSnapshots, snapshotKey(height))
	if err != nil || !ok {
		return nil, nil, false, err
	}
	root, accounts, err := chain.DecodeSnapshotBlob(blob, height)
	if err != nil {
		return nil, nil, false, err
	}
	return root, accounts, true, nil
}

func (s *Store) Prune(ctx context.Context, keepLast uint64) error {
	latest, ok, err := s.GetLatestHeight(ctx)
	if err != nil || !ok {
		return err
	}
	if latest < keepLast {
		return nil
	}
	cutoff := latest - keepLast

	batch := new(leveldb.Batch)
	pruned := 0

	for height := uint64(0); height < cutoff; height++ {
		headerBytes, found, err := s.get(cfHeadersHeight, heightKey(height))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		header, err := model.DeserializeBlockHeader(headerBytes)
		if err != nil {
			return errors.NewStorageError("header decode failed during prune", err)
		}
		hash := header.Hash()

		if blockBytes, found, err := s.get(cfBlocks, hash.Bytes()); err != nil {
			return err
		} else if found {
			if block, err := model.DeserializeBlock(blockBytes); err == nil {
				for _, tx := range block.Transactions {
					txHash := tx.Hash()
					batch.Delete(cfKey(cfTransactions, txHash.Bytes()))

					senderKey := make([]byte, 0, 32+8+32)
					senderKey = append(senderKey, tx.From[:]...)
					senderKey = binary.BigEndian.AppendUint64(senderKey, height)
					senderKey = append(senderKey, txHash.Bytes()...)
					batch.Delete(cfKey(cfTxBySender, senderKey))
				}
			}
			batch.Delete(cfKey(cfBlocks, hash.Bytes()))
		}

		batch.Delete(cfKey(cfHeadersHeight, heightKey(height)))
		batch.Delete(cfKey(cfHeadersHash, hash.Bytes()))
		batch.Delete(cfKey(cfStateRoots, heightKey(height)))
		pruned++
	}

	if pruned == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("prune write failed", err)
	}

	s.logger.Infof("[ChainStore] pruned %d heights below %d", pruned, cutoff)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ chain.Store = (*Store)(nil)
