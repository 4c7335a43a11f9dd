package tables

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pollsync/pollsync/internal/core/observability/log"
)

// Observer receives the full new snapshot of a table it subscribed to.
type Observer func(Snapshot)

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	id    string
	table Name
	hub   *Hub
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Table() Name {
	return s.table
}

// Cancel unregisters the observer. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.remove(s.table, s.id)
}

type registration struct {
	id       string
	observer Observer
}

// Hub is the per-table observer registry. Delivery is synchronous and in
// registration order.
type Hub struct {
	mu        sync.RWMutex
	observers [nameCount][]registration
	logger    log.Log
}

func NewHub(logger log.Log) *Hub {
	return &Hub{
		logger: logger.With(log.String("component", "subscriber_hub")),
	}
}

// Subscribe registers an observer for the named table. The caller is
// expected to have validated the name.
func (h *Hub) Subscribe(name Name, observer Observer) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	h.observers[name] = append(h.observers[name], registration{id: id, observer: observer})

	h.logger.Debug("observer registered",
		log.String("table", name.String()),
		log.String("subscription_id", id))

	return &Subscription{id: id, table: name, hub: h}
}

// Notify delivers snap to every observer of snap.Table, in registration
// order, in the caller's goroutine.
func (h *Hub) Notify(snap Snapshot) {
	h.mu.RLock()
	regs := make([]registration, len(h.observers[snap.Table]))
	copy(regs, h.observers[snap.Table])
	h.mu.RUnlock()

	for _, reg := range regs {
		reg.observer(snap)
	}
}

func (h *Hub) remove(name Name, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	regs := h.observers[name]
	for i, reg := range regs {
		if reg.id == id {
			h.observers[name] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}
