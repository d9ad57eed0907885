package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	TimerCreated        Kind = "timer.created"
	TimerUpdated        Kind = "timer.updated"
	TimerDeleted        Kind = "timer.deleted"
	TimerCompleted      Kind = "timer.completed"
	TimerPhaseChanged   Kind = "timer.phase_changed"
	AutomationChanged   Kind = "automation.changed"
	AutomationDeleted   Kind = "automation.deleted"
	AutomationOrphaned  Kind = "automation.orphaned"
	AutomationFired     Kind = "automation.fired"
	MessageSent         Kind = "message.sent"
	ConversationCleared Kind = "conversation.cleared"
)

type Event struct {
	Kind         Kind
	At           time.Time
	TimerID      string
	AutomationID string
	CalendarID   string
	Detail       string
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event and Dropped counts it.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	closed  bool
	dropped uint64
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Bus{subs: make(map[int]chan Event), buffer: bufferSize}
}

// Subscribe returns a receive channel and a cancel func. The channel is
// closed by cancel or by Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
