package pipeline

import "sync"

// keyLocks provides per-encounter mutual exclusion so two concurrent
// submissions for the same encounter cannot interleave writes to the same job
// record. Entries are created lazily and reference-counted away when the last
// holder leaves.
type keyLocks struct {
	mu      sync.Mutex
	entries map[int64]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[int64]*keyLockEntry)}
}

// lock blocks until the caller holds the per-key mutex for id and returns the
// matching unlock function.
func (k *keyLocks) lock(id int64) func() {
	k.mu.Lock()
	entry, ok := k.entries[id]
	if !ok {
		entry = &keyLockEntry{}
		k.entries[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys currently have holders or waiters.
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
