// Package mempool holds signed, admission-validated transactions pending
// inclusion. Admission order does not imply inclusion order: block
// production receives a snapshot sorted deterministically by
// (sender, nonce asc, gas_price desc, hash asc).
package mempool

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

// DefaultCapacity bounds the pool when no config override is given.
const DefaultCapacity = 10_000

// AccountReader is the slice of state the mempool validates against.
type AccountReader interface {
	GetAccount(addr model.PublicKey) (model.Account, bool)
}

type entry struct {
	tx       *model.Transaction
	hash     model.Hash256
	admitted time.Time
}

// Mempool is a bounded admission-validated transaction pool.
type Mempool struct {
	logger   ulogger.Logger
	accounts AccountReader
	capacity int

	mu      sync.Mutex
	entries map[model.Hash256]*entry
	order   []*entry // admission order, oldest first
}

// New creates a mempool validating against accounts. capacity <= 0 selects
// the default.
func New(logger ulogger.Logger, accounts AccountReader, capacity int) *Mempool {
	initPrometheusMetrics()

	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mempool{
		logger:   logger,
		accounts: accounts,
		capacity: capacity,
		entries:  make(map[model.Hash256]*entry),
	}
}

// Add validates and admits a transaction. Validation failures are never
// retried and surface to the caller.
func (m *Mempool) Add(tx *model.Transaction) error {
	if err := m.validate(tx); err != nil {
		prometheusMempoolRejected.Inc()
		return err
	}

	hash := tx.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[hash]; ok {
		// Duplicate admission is idempotent.
		return nil
	}

	e := &entry{tx: tx, hash: hash, admitted: time.Now()}
	m.entries[hash] = e
	m.order = append(m.order, e)

	if len(m.entries) > m.capacity {
		m.evict()
	}

	prometheusMempoolAdmitted.Inc()
	prometheusMempoolSize.Set(float64(len(m.entries)))

	return nil
}

// validate applies the admission rules: signature, nonce, balance, gas caps.
func (m *Mempool) validate(tx *model.Transaction) error {
	if err := tx.VerifySignature(); err != nil {
		return err
	}

	if tx.GasPrice == 0 || tx.GasPrice > model.MaxGasPrice {
		return errors.NewTxInvalidError("gas price %d out of range", tx.GasPrice)
	}
	if tx.GasLimit == 0 || tx.GasLimit > model.MaxGasLimit {
		return errors.NewTxInvalidError("gas limit %d out of range", tx.GasLimit)
	}

	acc, ok := m.accounts.GetAccount(tx.From)
	if !ok {
		// New-account funding: only nonce 0 is acceptable, and the account
		// can afford nothing yet — the transfer settles (or fails) at apply
		// time once the account has been funded in the same block.
		if tx.Nonce != 0 {
			return errors.NewTxInvalidError("unknown sender with nonce %d", tx.Nonce)
		}
		return nil
	}

	if tx.Nonce != acc.Nonce {
		return errors.NewTxInvalidError("invalid nonce: expected %d, got %d", acc.Nonce, tx.Nonce)
	}

	total := tx.Amount + tx.Fee()
	if total < tx.Amount || acc.Balance < total {
		return errors.NewTxInvalidError("insufficient balance: have %d, need %d", acc.Balance, total)
	}

	return nil
}

// evict drops the oldest entry that does not carry the pool's highest gas
// price; if every entry does, the oldest goes. Callers hold the lock.
func (m *Mempool) evict() {
	if len(m.order) == 0 {
		return
	}

	var maxGas uint64
	for _, e := range m.order {
		if e.tx.GasPrice > maxGas {
			maxGas = e.tx.GasPrice
		}
	}

	victim := -1
	for i, e := range m.order {
		if e.tx.GasPrice < maxGas {
			victim = i
			break
		}
	}
	if victim < 0 {
		victim = 0
	}

	e := m.order[victim]
	m.order = append(m.order[:victim], m.order[victim+1:]...)
	delete(m.entries, e.hash)

	prometheusMempoolEvicted.Inc()
}

// Snapshot returns up to max transactions in the deterministic inclusion
// order. Admissions after the snapshot instant are deferred to the next
// block.
func (m *Mempool) Snapshot(max int) []*model.Transaction {
	m.mu.Lock()
	entries := make([]*entry, len(m.order))
	copy(entries, m.order)
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if cmp := bytes.Compare(a.tx.From[:], b.tx.From[:]); cmp != 0 {
			return cmp < 0
		}
		if a.tx.Nonce != b.tx.Nonce {
			return a.tx.Nonce < b.tx.Nonce
		}
		if a.tx.GasPrice != b.tx.GasPrice {
			return a.tx.GasPrice > b.tx.GasPrice
		}
		return bytes.Compare(a.hash[:], b.hash[:]) < 0
	})

	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}

	out := make([]*model.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// Remove drops transactions included in a block.
func (m *Mempool) Remove(txs []*model.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		hash := tx.Hash()
		if _, ok := m.entries[hash]; !ok {
			continue
		}
		delete(m.entries, hash)
		for i, e := range m.order {
			if e.hash == hash {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}

	prometheusMempoolSize.Set(float64(len(m.entries)))
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Contains reports whether the pool holds the transaction.
func (m *Mempool) Contains(hash model.Hash256) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[hash]
	return ok
}
