package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steake/bitcell/model"
)

func addr(b byte) model.PublicKey {
	var pk model.PublicKey
	pk[0] = b
	return pk
}

func TestCreditAndGet(t *testing.T) {
	m := NewManager()

	root := m.CreditAccount(addr(1), 500)
	assert.False(t, root.IsZero())

	acc, ok := m.GetAccount(addr(1))
	require.True(t, ok)
	assert.Equal(t, uint64(500), acc.Balance)
	assert.Equal(t, uint64(0), acc.Nonce)
}

func TestApplyTransaction(t *testing.T) {
	m := NewManager()
	m.CreditAccount(addr(1), 1000)

	_, err := m.ApplyTransaction(addr(1), addr(2), 300, 50, 0)
	require.NoError(t, err)

	sender, _ := m.GetAccount(addr(1))
	assert.Equal(t, uint64(650), sender.Balance)
	assert.Equal(t, uint64(1), sender.Nonce)

	receiver, _ := m.GetAccount(addr(2))
	assert.Equal(t, uint64(300), receiver.Balance)
}

func TestApplyTransactionRejections(t *testing.T) {
	m := NewManager()
	m.CreditAccount(addr(1), 100)

	t.Run("wrong nonce", func(t *testing.T) {
		_, err := m.ApplyTransaction(addr(1), addr(2), 10, 0, 5)
		require.Error(t, err)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		_, err := m.ApplyTransaction(addr(1), addr(2), 200, 0, 0)
		require.Error(t, err)
	})

	t.Run("unknown sender non-zero nonce", func(t *testing.T) {
		_, err := m.ApplyTransaction(addr(9), addr(2), 0, 0, 3)
		require.Error(t, err)
	})
}

func TestNonceMonotonic(t *testing.T) {
	m := NewManager()
	m.CreditAccount(addr(1), 1000)

	var lastNonce uint64
	for i := uint64(0); i < 5; i++ {
		_, err := m.ApplyTransaction(addr(1), addr(2), 10, 0, i)
		require.NoError(t, err)

		acc, _ := m.GetAccount(addr(1))
		assert.GreaterOrEqual(t, acc.Nonce, lastNonce)
		lastNonce = acc.Nonce
	}
	assert.Equal(t, uint64(5), lastNonce)
}

func TestStateRootChangesWithState(t *testing.T) {
	m := NewManager()

	assert.True(t, m.StateRoot().IsZero())

	r1 := m.CreditAccount(addr(1), 100)
	r2 := m.CreditAccount(addr(1), 100)
	assert.NotEqual(t, r1, r2)

	// Same contents produce the same root, regardless of history.
	other := NewManager()
	other.CreditAccount(addr(1), 200)
	assert.Equal(t, m.StateRoot(), other.StateRoot())
}

func TestSerializeRestoreAccounts(t *testing.T) {
	m := NewManager()
	m.CreditAccount(addr(1), 100)
	m.CreditAccount(addr(2), 200)
	_, err := m.ApplyTransaction(addr(2), addr(3), 50, 0, 0)
	require.NoError(t, err)

	blob := m.SerializeAccounts()

	restored := NewManager()
	require.NoError(t, restored.RestoreAccounts(blob))

	assert.Equal(t, m.StateRoot(), restored.StateRoot())
	assert.Equal(t, m.TotalBalance(), restored.TotalBalance())
	assert.Equal(t, m.AccountCount(), restored.AccountCount())

	acc, ok := restored.GetAccount(addr(2))
	require.True(t, ok)
	assert.Equal(t, uint64(150), acc.Balance)
	assert.Equal(t, uint64(1), acc.Nonce)
}

func TestRestoreRejectsTruncatedBlob(t *testing.T) {
	m := NewManager()
	require.Error(t, m.RestoreAccounts([]byte{1, 2, 3}))

	m.CreditAccount(addr(1), 10)
	blob := m.SerializeAccounts()
	require.Error(t, m.RestoreAccounts(blob[:len(blob)-1]))

	// An empty blob restores cleanly.
	empty := NewManager()
	require.NoError(t, empty.RestoreAccounts(NewManager().SerializeAccounts()))
}
