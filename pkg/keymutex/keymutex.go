// Package keymutex provides mutual exclusion keyed by an int64 identity.
// It serializes operations for one key while letting different keys proceed
// concurrently.
package keymutex

import "sync"

// KeyMutex hands out one mutex per key. Entries are reference-counted and
// removed once the last holder unlocks, so the map does not grow with the
// number of distinct keys ever seen.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{entries: make(map[int64]*entry)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (k *KeyMutex) Lock(key int64) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that is not held panics,
// same as sync.Mutex.
func (k *KeyMutex) Unlock(key int64) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("keymutex: unlock of unlocked key")
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
