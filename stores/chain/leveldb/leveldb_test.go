package leveldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(ulogger.TestLogger{T: t}, filepath.Join(t.TempDir(), "chainstore"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func signedBlock(t *testing.T, height uint64, prevHash model.Hash256, txs []*model.Transaction) *model.Block {
	t.Helper()

	seed := make([]byte, 32)
	seed[0] = 0x42
	sk, err := model.SecretKeyFromSeed(seed)
	require.NoError(t, err)

	header := model.BlockHeader{
		Height:   height,
		PrevHash: prevHash,
		TxRoot:   model.CalculateTxRoot(txs),
		Proposer: sk.PublicKey(),
	}
	headerHash := header.Hash()
	return &model.Block{
		Header:       header,
		Transactions: txs,
		Signature:    sk.Sign(headerHash.Bytes()),
	}
}

func TestLevelDBBlockPersistence(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	b0 := signedBlock(t, 0, model.Hash256{}, nil)
	require.NoError(t, store.StoreBlock(ctx, b0))
	b1 := signedBlock(t, 1, b0.Hash(), nil)
	require.NoError(t, store.StoreBlock(ctx, b1))

	got, err := store.GetBlock(ctx, b1.Hash())
	require.NoError(t, err)
	assert.Equal(t, b1.Hash(), got.Hash())

	byHeight, err := store.GetBlockByHeight(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, b0.Hash(), byHeight.Hash())

	height, ok, err := store.GetLatestHeight(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), height)

	hash, ok, err := store.GetLatestHash(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b1.Hash(), hash)
}

func TestLevelDBSenderIndex(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	seed := make([]byte, 32)
	seed[0] = 0x07
	sk, err := model.SecretKeyFromSeed(seed)
	require.NoError(t, err)

	var txs []*model.Transaction
	var prev model.Hash256
	for h := uint64(0); h < 3; h++ {
		tx := &model.Transaction{
			From:     sk.PublicKey(),
			To:       sk.PublicKey(),
			Amount:   h,
			Nonce:    h,
			GasPrice: 1,
			GasLimit: 21000,
		}
		model.SignTransaction(tx, sk)
		txs = append(txs, tx)

		b := signedBlock(t, h, prev, []*model.Transaction{tx})
		require.NoError(t, store.StoreBlock(ctx, b))
		prev = b.Hash()
	}

	hashes, err := store.GetTransactionsBySender(ctx, sk.PublicKey(), 0)
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	for i, h := range hashes {
		// Height-ordered by the composite key.
		assert.Equal(t, txs[i].Hash(), h)
	}

	got, err := store.GetTransaction(ctx, txs[1].Hash())
	require.NoError(t, err)
	assert.Equal(t, txs[1].Hash(), got.Hash())
}

func TestLevelDBSnapshotAndAccounts(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	var addr model.PublicKey
	addr[0] = 5
	require.NoError(t, store.StoreAccount(ctx, addr, &model.Account{Balance: 9, Nonce: 1}))

	acc, ok, err := store.GetAccount(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(9), acc.Balance)

	root := model.NewHash256([]byte("root"))
	require.NoError(t, store.CreateSnapshot(ctx, 4, root, []byte("accounts")))

	height, gotRoot, blob, ok, err := store.GetLatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), height)
	assert.Equal(t, root.Bytes(), gotRoot)
	assert.Equal(t, []byte("accounts"), blob)
}

func TestLevelDBPrune(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	var prev model.Hash256
	var blocks []*model.Block
	for h := uint64(0); h < 5; h++ {
		b := signedBlock(t, h, prev, nil)
		require.NoError(t, store.StoreBlock(ctx, b))
		require.NoError(t, store.StoreStateRoot(ctx, h, model.NewHash256([]byte{byte(h)})))
		blocks = append(blocks, b)
		prev = b.Hash()
	}

	require.NoError(t, store.Prune(ctx, 2))

	// latest 4, keep 2: [0, 2) pruned.
	for h := uint64(0); h < 2; h++ {
		_, err := store.GetHeaderByHeight(ctx, h)
		require.Error(t, err)

		_, ok, err := store.GetStateRoot(ctx, h)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	for h := uint64(2); h < 5; h++ {
		_, err := store.GetHeaderByHeight(ctx, h)
		require.NoError(t, err)
	}
	_ = blocks
}
