package service

import "sync"

// IdentityLock allows one holder per identity at a time. Entries are
// dropped once nobody holds or waits for them.
type IdentityLock struct {
	mu    sync.Mutex
	locks map[int64]*identityEntry
}

type identityEntry struct {
	mu   sync.Mutex
	refs int
}

func NewIdentityLock() *IdentityLock {
	return &IdentityLock{locks: make(map[int64]*identityEntry)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (l *IdentityLock) Lock(id int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &identityEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

func (l *IdentityLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
