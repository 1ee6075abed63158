package common

import "sync"

// KeyedMutex hands out one mutex per key. Entries are created on first use
// and dropped once no caller holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	m := k.acquire(key)
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.release(key, m)
	}
}

// TryLock is Lock without waiting. ok is false when key is already held.
func (k *KeyedMutex) TryLock(key string) (unlock func(), ok bool) {
	m := k.acquire(key)
	if !m.mu.TryLock() {
		k.release(key, m)
		return nil, false
	}
	return func() {
		m.mu.Unlock()
		k.release(key, m)
	}, true
}

// Len reports how many keys currently have an entry.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedMutex) acquire(key string) *refMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	return m
}

func (k *KeyedMutex) release(key string, m *refMutex) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
}
