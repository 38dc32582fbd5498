// Package eventbus is an in-memory, non-blocking fanout of lifecycle events.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the bot.
const (
	ReminderCreated   = "reminder.created"
	ReminderCancelled = "reminder.cancelled"
	ReminderFired     = "reminder.fired"
	ReminderRestored  = "reminder.restored"
	ReminderSaveError = "reminder.save_failed"

	CheckSkipped      = "check.skipped"
	CheckCompleted    = "check.completed"
	CheckRateLimited  = "check.rate_limited"
	CheckFailed       = "check.failed"
	CheckRetryPlanned = "check.retry_scheduled"

	NotifySent    = "notifier.sent"
	NotifyFailed  = "notifier.failed"
	NotifyDropped = "notifier.dropped"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered subscriber. unsubscribe closes ch.
func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Holding the write lock excludes in-flight Publish sends.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
