package host

import (
	"sync"
)

// Subscription is a disposable handle for an event subscription.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Hub is a per-session in-memory event bus. Handlers run synchronously on
// the publishing goroutine, in subscription order.
type Hub struct {
	mu             sync.RWMutex
	nextID         uint64
	transcriptions map[uint64]func(TranscriptionEvent)
	locations      map[uint64]func(LocationEvent)
	order          []uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		transcriptions: make(map[uint64]func(TranscriptionEvent)),
		locations:      make(map[uint64]func(LocationEvent)),
	}
}

// OnTranscription subscribes fn to transcription events.
func (h *Hub) OnTranscription(fn func(TranscriptionEvent)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.register()
	h.transcriptions[id] = fn
	return h.handle(id)
}

// OnLocation subscribes fn to location events.
func (h *Hub) OnLocation(fn func(LocationEvent)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.register()
	h.locations[id] = fn
	return h.handle(id)
}

// PublishTranscription delivers event to current subscribers and reports how many received it.
func (h *Hub) PublishTranscription(event TranscriptionEvent) int {
	handlers := h.snapshotTranscriptions()
	for _, fn := range handlers {
		fn(event)
	}
	return len(handlers)
}

// PublishLocation delivers event to current subscribers and reports how many received it.
func (h *Hub) PublishLocation(event LocationEvent) int {
	handlers := h.snapshotLocations()
	for _, fn := range handlers {
		fn(event)
	}
	return len(handlers)
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.transcriptions) + len(h.locations)
}

// register must be called with mu held.
func (h *Hub) register() uint64 {
	h.nextID++
	h.order = append(h.order, h.nextID)
	return h.nextID
}

func (h *Hub) handle(id uint64) Subscription {
	return &subscription{cancel: func() { h.remove(id) }}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.transcriptions, id)
	delete(h.locations, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Handlers are copied out so they can unsubscribe while being called.
func (h *Hub) snapshotTranscriptions() []func(TranscriptionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]func(TranscriptionEvent), 0, len(h.transcriptions))
	for _, id := range h.order {
		if fn, ok := h.transcriptions[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (h *Hub) snapshotLocations() []func(LocationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]func(LocationEvent), 0, len(h.locations))
	for _, id := range h.order {
		if fn, ok := h.locations[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
