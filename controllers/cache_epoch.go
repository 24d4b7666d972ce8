package controllers

import "sync"

// writeEpoch orders cache fills against post writes. A reader records the epoch before loading
// posts and only stores its result if no write finished in between.
type writeEpoch struct {
	mu sync.RWMutex
	n  uint64
}

func (e *writeEpoch) current() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.n
}

// advance bumps the epoch and runs invalidate while no fill can be stored.
func (e *writeEpoch) advance(invalidate func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	invalidate()
}

// storeIf runs store only when the epoch still equals seen.
func (e *writeEpoch) storeIf(seen uint64, store func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.n != seen {
		return false
	}
	store()
	return true
}
