package memory

import (
	"sync"

	"github.com/hupe1980/saathi/core"
)

// keyLock serializes writers of one record key. Each writer draws a ticket in
// arrival order before it contends for the mutex; applied holds the highest
// ticket whose write has landed, so a writer that wins the mutex after a later
// arrival already wrote knows it was superseded.
type keyLock struct {
	mu      sync.Mutex
	refs    int
	next    uint64
	applied uint64
}

type keyLocks struct {
	mu    sync.Mutex
	locks map[core.RecordKey]*keyLock
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[core.RecordKey]*keyLock)}
}

// enter registers a writer for key and returns its lock and ticket. Every
// enter must be paired with leave.
func (l *keyLocks) enter(key core.RecordKey) (*keyLock, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	kl.next++
	return kl, kl.next
}

func (l *keyLocks) leave(key core.RecordKey, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
