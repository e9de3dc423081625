// Package state holds the account state: balances and nonces keyed by
// address, a Poseidon-Merkle state root, and snapshot encode/restore. The
// manager is single-writer during block application; reads take the shared
// lock.
package state

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/steake/bitcell/crypto/poseidon"
	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
)

// Manager owns the account map and the derived state root.
type Manager struct {
	mu        sync.RWMutex
	accounts  map[model.PublicKey]model.Account
	stateRoot model.Hash256
	hasher    *poseidon.Hasher
}

// NewManager creates an empty state.
func NewManager() *Manager {
	return &Manager{
		accounts: make(map[model.PublicKey]model.Account),
		hasher:   poseidon.New(),
	}
}

// GetAccount returns a copy of the account at addr.
func (m *Manager) GetAccount(addr model.PublicKey) (model.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[addr]
	return acc, ok
}

// StateRoot returns the current state root.
func (m *Manager) StateRoot() model.Hash256 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stateRoot
}

// CreditAccount adds amount to addr's balance, creating the account if it
// does not exist, and recomputes the root.
func (m *Manager) CreditAccount(addr model.PublicKey, amount uint64) model.Hash256 {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.accounts[addr]
	acc.Balance += amount
	m.accounts[addr] = acc

	m.recomputeRoot()
	return m.stateRoot
}

// ApplyTransaction moves amount+fee out of from and amount into to,
// increments from's nonce, and recomputes the root. The caller has already
// validated signature, nonce and balance; this re-checks them so a bug
// upstream cannot corrupt state.
func (m *Manager) ApplyTransaction(from, to model.PublicKey, amount, fee, nonce uint64) (model.Hash256, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.accounts[from]
	if !ok {
		// New-account funding path: the account springs into existence with
		// balance 0 and must be spending nothing but fees it can't pay —
		// only amount 0 with fee 0 would pass, so reject unless nonce 0 and
		// the transfer is affordable.
		if nonce != 0 {
			return m.stateRoot, errors.NewTxInvalidError("unknown sender with non-zero nonce %d", nonce)
		}
		sender = model.Account{}
	}

	if sender.Nonce != nonce {
		return m.stateRoot, errors.NewTxInvalidError("invalid nonce: expected %d, got %d", sender.Nonce, nonce)
	}

	total := amount + fee
	if total < amount {
		return m.stateRoot, errors.NewTxInvalidError("amount overflow")
	}
	if sender.Balance < total {
		return m.stateRoot, errors.NewTxInvalidError("insufficient balance: have %d, need %d", sender.Balance, total)
	}

	sender.Balance -= total
	sender.Nonce++
	m.accounts[from] = sender

	receiver := m.accounts[to]
	receiver.Balance += amount
	m.accounts[to] = receiver

	m.recomputeRoot()
	return m.stateRoot, nil
}

// TotalBalance sums all account balances.
func (m *Manager) TotalBalance() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total uint64
	for _, acc := range m.accounts {
		total += acc.Balance
	}
	return total
}

// AccountCount returns the number of accounts.
func (m *Manager) AccountCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.accounts)
}

// recomputeRoot folds all accounts into a Poseidon-Merkle root. Leaves are
// sorted by address so the root is independent of map iteration order.
// Callers hold the write lock.
func (m *Manager) recomputeRoot() {
	if len(m.accounts) == 0 {
		m.stateRoot = model.Hash256{}
		return
	}

	addrs := make([]model.PublicKey, 0, len(m.accounts))
	for addr := range m.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		for k := 0; k < len(addrs[i]); k++ {
			if addrs[i][k] != addrs[j][k] {
				return addrs[i][k] < addrs[j][k]
			}
		}
		return false
	})

	level := make([]fr.Element, len(addrs))
	for i, addr := range addrs {
		level[i] = m.accountLeaf(addr, m.accounts[addr])
	}

	for len(level) > 1 {
		next := make([]fr.Element, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, m.hasher.HashTwo(level[i], level[i+1]))
			} else {
				next = append(next, m.hasher.HashOne(level[i]))
			}
		}
		level = next
	}

	rootBytes := level[0].Bytes()
	copy(m.stateRoot[:], rootBytes[:])
}

// accountLeaf hashes (address, balance, nonce) into a field element. The
// 32-byte address is split into two 16-byte limbs to stay below the modulus.
func (m *Manager) accountLeaf(addr model.PublicKey, acc model.Account) fr.Element {
	var lo, hi, balance, nonce fr.Element

	var buf [32]byte
	copy(buf[16:], addr[:16])
	lo.SetBytes(buf[:])

	buf = [32]byte{}
	copy(buf[16:], addr[16:])
	hi.SetBytes(buf[:])

	balance.SetUint64(acc.Balance)
	nonce.SetUint64(acc.Nonce)

	return m.hasher.HashMany([]fr.Element{lo, hi, balance, nonce})
}

// SerializeAccounts encodes all accounts as a canonical blob for snapshots:
// count(8) then per account address(32) || balance(8) || nonce(8), sorted by
// address.
func (m *Manager) SerializeAccounts() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addrs := make([]model.PublicKey, 0, len(m.accounts))
	for addr := range m.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		for k := 0; k < len(addrs[i]); k++ {
			if addrs[i][k] != addrs[j][k] {
				return addrs[i][k] < addrs[j][k]
			}
		}
		return false
	})

	blob := binary.BigEndian.AppendUint64(nil, uint64(len(addrs)))
	for _, addr := range addrs {
		acc := m.accounts[addr]
		blob = append(blob, addr[:]...)
		blob = binary.BigEndian.AppendUint64(blob, acc.Balance)
		blob = binary.BigEndian.AppendUint64(blob, acc.Nonce)
	}
	return blob
}

// RestoreAccounts replaces the account set from a snapshot blob and
// recomputes the root.
func (m *Manager) RestoreAccounts(blob []byte) error {
	if len(blob) < 8 {
		return errors.NewStorageError("accounts blob truncated")
	}

	count := binary.BigEndian.Uint64(blob[:8])
	const entrySize = 32 + 8 + 8
	if uint64(len(blob)-8) != count*entrySize {
		return errors.NewStorageError("accounts blob length mismatch")
	}

	accounts := make(map[model.PublicKey]model.Account, count)
	off := 8
	for i := uint64(0); i < count; i++ {
		var addr model.PublicKey
		copy(addr[:], blob[off:off+32])
		off += 32
		balance := binary.BigEndian.Uint64(blob[off:])
		off += 8
		nonce := binary.BigEndian.Uint64(blob[off:])
		off += 8
		accounts[addr] = model.Account{Balance: balance, Nonce: nonce}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = accounts
	m.recomputeRoot()
	return nil
}
