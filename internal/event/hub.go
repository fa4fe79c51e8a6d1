package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultHubCapacity   = 256
	subscriberBufferSize = 128
)

// Event is one emitted notification as seen by subscribers.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event.
type Hub struct {
	nextID    atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
	closed    bool
}

// NewHub creates a hub that remembers the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Emit implements Emitter.
func (h *Hub) Emit(name string, payload any) {
	h.Publish(name, payload)
}

// Publish records the event and offers it to every subscriber.
func (h *Hub) Publish(eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.published.Add(1)
	h.pushLocked(ev)

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of live events and a cancel func that
// removes the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextSubID
	h.nextSubID++
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Stats returns (published, dropped, subscribers).
func (h *Hub) Stats() (published, dropped int64, subscribers int) {
	h.mu.Lock()
	subscribers = len(h.subs)
	h.mu.Unlock()
	return h.published.Load(), h.dropped.Load(), subscribers
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

var _ Emitter = (*Hub)(nil)
