package app

import (
	"sync"
)

// Holdings maps an asset id to the quantity a wallet holds.
type Holdings map[string]float64

func (h Holdings) clone() Holdings {
	out := make(Holdings, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// SnapshotStore keeps the last observed holdings of every tracked wallet.
// Replacement is all-or-nothing per wallet.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Holdings
	baselined map[string]bool
}

// NewSnapshotStore creates an empty entry for every wallet.
func NewSnapshotStore(wallets []string) *SnapshotStore {
	s := &SnapshotStore{
		snapshots: make(map[string]Holdings, len(wallets)),
		baselined: make(map[string]bool, len(wallets)),
	}
	for _, w := range wallets {
		s.snapshots[w] = Holdings{}
	}
	return s
}

// Get returns a copy of the wallet's holdings, empty if unknown.
func (s *SnapshotStore) Get(wallet string) Holdings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[wallet].clone()
}

// Replace swaps in the full new holdings for wallet and marks it baselined.
func (s *SnapshotStore) Replace(wallet string, holdings Holdings) {
	next := holdings.clone()

	s.mu.Lock()
	s.snapshots[wallet] = next
	s.baselined[wallet] = true
	s.mu.Unlock()
}

// HasBaseline reports whether a successful fetch has been stored for wallet.
func (s *SnapshotStore) HasBaseline(wallet string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselined[wallet]
}

// Stats returns the number of baselined wallets and the total tracked positions.
func (s *SnapshotStore) Stats() (wallets, baselined, positions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for w, h := range s.snapshots {
		wallets++
		if s.baselined[w] {
			baselined++
		}
		positions += len(h)
	}
	return wallets, baselined, positions
}
