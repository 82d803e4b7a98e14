package assistant

import (
	"sync"

	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/live"
)

type EventKind string

const (
	EventState EventKind = "state"
	EventLive  EventKind = "live"
)

// Event is pushed to watchers after every state change and every realtime
// status change. Each one carries the full value, so a watcher that misses
// some only loses intermediate steps.
type Event struct {
	Kind  EventKind        `json:"kind"`
	State *bank.State      `json:"state,omitempty"`
	Live  *live.StatusInfo `json:"live,omitempty"`
}

type hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan Event)}
}

func (h *hub) subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// publish never blocks; slow watchers drop events.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
