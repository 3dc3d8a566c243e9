// Package admission bounds how many transcription jobs run concurrently.
package admission

import "context"

// Gate is a counting semaphore limiting system-wide job concurrency,
// independent of the engine pool size. It provides backpressure: workers
// block in Acquire until a slot frees.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate admitting at most capacity jobs at a time.
func NewGate(capacity int) *Gate {
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is done. The wait is otherwise
// unbounded; only process shutdown abandons queued jobs.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Callers pair it with Acquire via defer so release
// happens on every exit path.
func (g *Gate) Release() {
	<-g.slots
}

// Capacity reports the maximum number of concurrently admitted jobs.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}

// InUse reports how many slots are currently held. Informational only; the
// value may be stale by the time it is read.
func (g *Gate) InUse() int {
	return len(g.slots)
}
