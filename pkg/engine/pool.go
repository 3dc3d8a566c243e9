package engine

import (
	"sync"
	"sync/atomic"
)

// Slot pairs one loaded engine with its exclusive-use lock. Only the job
// holding the lock may invoke the engine.
type Slot struct {
	engine Transcriber
	mu     sync.Mutex
}

// Engine returns the slot's transcriber. Callers must hold the slot lock
// while invoking it.
func (s *Slot) Engine() Transcriber { return s.engine }

// Lock takes exclusive use of the slot's engine, blocking while another job
// holds it.
func (s *Slot) Lock() { s.mu.Lock() }

// Unlock releases exclusive use of the slot's engine.
func (s *Slot) Unlock() { s.mu.Unlock() }

// Pool holds a fixed set of loaded engines distributed round-robin. Rotation
// itself never blocks; contention, if any, happens on the returned slot's
// lock.
type Pool struct {
	slots  []*Slot
	cursor atomic.Uint64
}

// NewPool loads size engines through factory. Construction fails fast on the
// first factory error: a partial pool is not tolerated.
func NewPool(size int, factory func(index int) (Transcriber, error)) (*Pool, error) {
	slots := make([]*Slot, 0, size)
	for i := 0; i < size; i++ {
		eng, err := factory(i)
		if err != nil {
			return nil, err
		}
		slots = append(slots, &Slot{engine: eng})
	}
	return &Pool{slots: slots}, nil
}

// Next returns the next slot in rotation. Safe for concurrent use; the shared
// cursor advances atomically.
func (p *Pool) Next() *Slot {
	idx := p.cursor.Add(1) - 1
	return p.slots[idx%uint64(len(p.slots))]
}

// Size reports the number of engines in the pool.
func (p *Pool) Size() int { return len(p.slots) }
