package session

import "sync"

// KeyedLock serializes work per shopper. Every read-decide-write cycle on the
// session store must run inside Do for its key; without it two concurrent
// events for the same shopper can interleave their transitions (e.g. a
// double-tapped pay button finalizing two orders).
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLock creates an empty lock set.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*keyLock)}
}

// Do runs fn while holding the lock for key. Locks are created on first use
// and released from the map once no caller waits on them, so the set does not
// grow with the number of shoppers ever seen.
func (k *KeyedLock) Do(key string, fn func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	fn()
	l.mu.Unlock()

	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
