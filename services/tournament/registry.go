// Package tournament sequences miner interactions into deterministic
// phases — Commit, Reveal, Battle, Settle — and emits a winner per block
// interval. Anonymous commitments arrive under CLSAG ring signatures; the
// key-image registry de-duplicates them, the battle engine resolves
// brackets, and settlement feeds reputation and slashing.
package tournament

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/steake/bitcell/crypto/clsag"
)

// Phase names, also used as FSM states.
const (
	PhaseIdle   = "idle"
	PhaseCommit = "commit"
	PhaseReveal = "reveal"
	PhaseBattle = "battle"
	PhaseSettle = "settle"
)

type registryKey struct {
	height   uint64
	phase    string
	keyImage clsag.KeyImage
}

// KeyImageRegistry tracks seen key images per (height, phase). Entries
// expire after the TTL unless purged earlier at phase end; evidence for
// slashing is extracted before the purge. The registry is an injected
// collaborator, never held across network I/O.
type KeyImageRegistry struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[registryKey, struct{}]
}

// NewKeyImageRegistry creates a registry whose entries expire after ttl.
func NewKeyImageRegistry(ttl time.Duration) *KeyImageRegistry {
	cache := ttlcache.New[registryKey, struct{}](
		ttlcache.WithTTL[registryKey, struct{}](ttl),
	)
	go cache.Start()

	return &KeyImageRegistry{cache: cache}
}

// Mark records a key image for (height, phase). It returns false when the
// image was already present, which is the double-participation signal.
func (r *KeyImageRegistry) Mark(height uint64, phase string, ki clsag.KeyImage) bool {
	key := registryKey{height: height, phase: phase, keyImage: ki}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.Has(key) {
		return false
	}
	r.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return true
}

// Seen reports whether the key image was recorded for (height, phase).
func (r *KeyImageRegistry) Seen(height uint64, phase string, ki clsag.KeyImage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cache.Has(registryKey{height: height, phase: phase, keyImage: ki})
}

// Purge discards all entries for (height, phase) at phase end.
func (r *KeyImageRegistry) Purge(height uint64, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.cache.Keys() {
		if key.height == height && key.phase == phase {
			r.cache.Delete(key)
		}
	}
}

// Stop halts the expiry loop.
func (r *KeyImageRegistry) Stop() {
	r.cache.Stop()
}
