package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Hub fans events out to subscribers. A subscriber whose buffer is full is
// dropped so that publishing never blocks the session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan event.Event
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan event.Event)}
}

// Subscribe registers a subscriber. The returned channel is closed when the
// subscriber is dropped, cancel is called or the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan event.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	id := uuid.NewString()
	ch := make(chan event.Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() { h.remove(id) }
}

// Emit stamps and publishes e to every subscriber.
func (h *Hub) Emit(e event.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			log.Warn().Str("component", "events").Str("subscriber", id).Msg("dropping slow event subscriber")
			delete(h.subs, id)
			close(ch)
		}
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Recorder keeps every emitted event; used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *Recorder) Emit(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Last returns the most recent event of kind, if any.
func (r *Recorder) Last(kind event.Kind) (event.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return event.Event{}, false
}
