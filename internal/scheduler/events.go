package scheduler

import "sync"

// EventKind identifies scheduler notifications.
type EventKind int

const (
	// EventStep fires when a step is committed to the engine. At is the
	// audio time it will sound, swing included.
	EventStep EventKind = iota
	EventStarted
	EventStopped
	// EventChanged fires after any parameter mutation.
	EventChanged
	// EventError fires when a tick fails and transport has been stopped.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStep:
		return "step"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventChanged:
		return "changed"
	case EventError:
		return "error"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	Step int
	At   float64
	Err  error
}

const subscriberBuffer = 16

type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
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

// publish never blocks; a subscriber that falls behind loses events.
func (h *hub) publish(events ...Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
