// Package notify pushes one-shot completion events to per-encounter
// subscribers.
package notify

import (
	"sync"

	"github.com/medscribe/medscribe/pkg/logging"
)

// Event is the payload pushed to a subscriber when its job finishes.
type Event struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

// Registry maps encounter ids to open subscriber channels. A missing entry is
// not an error; it only means no one is currently listening. Entries are weak
// back-references: they never keep a job alive.
type Registry struct {
	mu     sync.Mutex
	subs   map[int64]chan Event
	logger *logging.Logger
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		subs:   make(map[int64]chan Event),
		logger: logger,
	}
}

// Register opens a subscription for encounterID and returns its channel. At
// most one live subscriber per encounter: an existing registration is
// displaced and its channel closed so the old reader unblocks.
func (r *Registry) Register(encounterID int64) chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.subs[encounterID]; ok {
		close(prev)
	}

	ch := make(chan Event, 1)
	r.subs[encounterID] = ch
	return ch
}

// Unregister removes the subscription for encounterID, but only when ch is
// still the registered channel: a subscriber that was displaced by a newer
// registration must not tear that one down.
func (r *Registry) Unregister(encounterID int64, ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.subs[encounterID]; ok && cur == ch {
		delete(r.subs, encounterID)
	}
}

// Notify pushes a one-shot event to the subscriber for encounterID, if any.
// The send never blocks: the channel is buffered for exactly one event, and a
// second notification before the first is drained is dropped.
func (r *Registry) Notify(encounterID int64, event Event) {
	r.mu.Lock()
	ch, ok := r.subs[encounterID]
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("no subscriber for completion event", "encounterID", encounterID)
		return
	}

	select {
	case ch <- event:
		r.logger.Debug("completion event delivered", "encounterID", encounterID, "status", event.Status)
	default:
		r.logger.Warn("subscriber channel full, event dropped", "encounterID", encounterID)
	}
}

// Len reports the number of open subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
