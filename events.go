package vessel

import (
	"sync"
	"time"
)

// EventType tags a lifecycle event.
type EventType string

const (
	EventCreated EventType = "created"
	EventStarted EventType = "started"
	EventPaused  EventType = "paused"
	EventResumed EventType = "resumed"
	EventStopped EventType = "stopped"
	EventDied    EventType = "died"
	EventRemoved EventType = "removed"
)

// Event is a single lifecycle notification.
type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// eventBus fans lifecycle events out to subscribers. Delivery is
// best-effort: if a subscriber's channel is full the event is discarded
// rather than blocking the state machine. Subscribers should size their
// buffer accordingly.
type eventBus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

const eventBuffer = 64

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener. The returned cancel func removes the
// registration and closes the channel; it is safe to call more than once.
func (b *eventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *eventBus) publish(t EventType, id string) {
	e := Event{Type: t, ID: id, Timestamp: time.Now()}
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *eventBus) close() {
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
