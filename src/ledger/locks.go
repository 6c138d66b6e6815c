package ledger

import (
	"context"
	"slices"
	"sync"
)

// KeyedMutex hands out one mutex per key. Entries are freed when their last
// holder unlocks, so the map only grows with concurrent keys, not total keys.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

// keyedLock is a one-slot channel so a waiter can give up on ctx.
type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// -----------------------------------------------------------------------------

// Lock acquires every key in sorted order and returns the matching unlock func.
// Duplicate keys are locked once. If ctx ends first, the keys already taken are
// released and ctx.Err() is returned.
func (k *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*keyedLock, 0, len(sorted))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			k.release(sorted[i])
		}
	}

	for _, key := range sorted {
		l := k.acquire(key)
		select {
		case l.ch <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			k.release(key)
			unlock()
			return nil, ctx.Err()
		}
	}
	return unlock, nil
}

// -----------------------------------------------------------------------------

func (k *KeyedMutex) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *KeyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
