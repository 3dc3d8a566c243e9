package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()
	var inCritical int
	var maxInCritical int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(42)
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "same key must never run concurrently")
	assert.Zero(t, locks.size(), "entries are reference-counted away")
}

func TestKeyLockAllowsDifferentKeysConcurrently(t *testing.T) {
	t.Parallel()

	locks := newKeyLocks()

	unlockA := locks.lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock(2)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different keys must not block each other")
	}
	unlockA()
}
