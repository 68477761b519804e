// Package events fans UI-bound events out to connected front-ends.
package events

import (
	"sync"
	"time"

	"github.com/kjstillabower/stb-remote/internal/observability"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindNotification Kind = "notification"
	KindReport       Kind = "report"
	KindNetwork      Kind = "network"
)

// Event is one message pushed to the front-end.
type Event struct {
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Haptic    bool      `json:"haptic,omitempty"`
	Visible   bool      `json:"visible,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub delivers published events to every subscriber. A subscriber whose buffer is full
// misses the event; publishers never block.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewHub creates a Hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps and delivers e.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			observability.EventsDroppedTotal.Inc()
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
