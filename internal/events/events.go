// Package events fans out scheduler and tree events to subscribers.
//
// Publish never blocks: a subscriber whose buffer is full misses the event and
// the hub counts the drop. The workflow manager publishes from its owner
// goroutine, so events for one transfer arrive in transition order.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"dlq/internal/queue"
)

// Type names an event.
type Type string

const (
	TypeTreeChanged       Type = "tree_changed"
	TypeStatusChanged     Type = "status_changed"
	TypeInteraction       Type = "interaction"
	TypeActiveCount       Type = "active_count"
	TypeTotalSpeed        Type = "total_speed"
	TypeTransferCompleted Type = "transfer_completed"
	TypeTransferFailed    Type = "transfer_failed"
	TypeQueueDrained      Type = "queue_drained"
)

// Event is one published notification. Only the fields relevant to Type are set.
type Event struct {
	Type        Type               `json:"type"`
	Time        time.Time          `json:"time"`
	TransferID  string             `json:"transfer_id,omitempty"`
	PackageID   string             `json:"package_id,omitempty"`
	Name        string             `json:"name,omitempty"`
	Status      queue.Status       `json:"status,omitempty"`
	Change      *queue.Change      `json:"change,omitempty"`
	Interaction *queue.Interaction `json:"interaction,omitempty"`
	Count       int                `json:"count,omitempty"`
	Speed       int64              `json:"speed,omitempty"`
	Path        string             `json:"path,omitempty"`
	Error       string             `json:"error,omitempty"`
	Completed   int                `json:"completed,omitempty"`
	Failed      int                `json:"failed,omitempty"`
	Duration    time.Duration      `json:"duration,omitempty"`
}

// Hub is a non-blocking broadcaster.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped atomic.Int64
	now     func() time.Time
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[int]chan Event{}, now: time.Now}
}

// Subscribe returns a channel receiving every later event and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers evt to every subscriber with room for it.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Time.IsZero() {
		evt.Time = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
