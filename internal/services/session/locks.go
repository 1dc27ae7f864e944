package session

import (
	"sync"

	"paircrypt/internal/domain"
)

// peerLocks is a keyed mutex. Entries are reference counted and removed
// once no goroutine holds or waits on them.
type peerLocks struct {
	mu sync.Mutex
	m  map[domain.Address]*peerLock
}

type peerLock struct {
	sync.Mutex
	refs int
}

func newPeerLocks() *peerLocks {
	return &peerLocks{m: make(map[domain.Address]*peerLock)}
}

// lock acquires the lock for peer and returns its release function.
func (l *peerLocks) lock(peer domain.Address) func() {
	l.mu.Lock()
	pl, ok := l.m[peer]
	if !ok {
		pl = &peerLock{}
		l.m[peer] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.m, peer)
		}
		l.mu.Unlock()
	}
}

// len reports how many peers currently have a lock entry.
func (l *peerLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
