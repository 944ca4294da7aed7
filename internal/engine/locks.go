package engine

import "sync"

// accountLocks serializes mutating operations per account. The lock is only
// held around the storage commit step, never across a quote fetch that could
// block.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for one account and returns its unlock function.
func (a *accountLocks) Lock(accountID string) func() {
	a.mu.Lock()
	m, ok := a.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		a.locks[accountID] = m
	}
	a.mu.Unlock()

	m.Lock()
	return m.Unlock
}
