package mcpruntime

import (
	"log/slog"
	"sync"
)

// defaultEventBufferSize is the per-subscriber channel depth used when a
// RuntimeConfig doesn't override it.
const defaultEventBufferSize = 64

// eventBus is a multi-producer, multi-subscriber broadcast channel for
// ConnectionEvents. Publishing never blocks: a subscriber whose buffer is
// full simply misses the event instead of slowing down or deadlocking
// against the registry. Per-subscriber ordering is FIFO because publish()
// only ever appends, never reorders.
type eventBus struct {
	mu      sync.Mutex
	subs    map[int]chan ConnectionEvent
	nextID  int
	bufSize int
	logger  *slog.Logger
}

func newEventBus(bufSize int, logger *slog.Logger) *eventBus {
	if bufSize <= 0 {
		bufSize = defaultEventBufferSize
	}
	return &eventBus{
		subs:    make(map[int]chan ConnectionEvent),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscription is a handle a caller uses to receive events and, later,
// stop receiving them.
type Subscription struct {
	id int
	ch chan ConnectionEvent
}

// Events returns the channel events arrive on. The channel is never closed
// while the subscription is active; callers select on it alongside their
// own cancellation.
func (s *Subscription) Events() <-chan ConnectionEvent {
	return s.ch
}

func (b *eventBus) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan ConnectionEvent, b.bufSize)
	b.subs[id] = ch
	return &Subscription{id: id, ch: ch}
}

func (b *eventBus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s.id)
}

// publish fans an event out to every current subscriber without blocking.
func (b *eventBus) publish(ev ConnectionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("event subscriber buffer full, dropping event", "subscriber", id, "topic", ev.Topic, "server_id", ev.ServerID)
		}
	}
}

// shutdown drops every subscriber. It does not close subscriber channels,
// since a concurrent publish could otherwise race a send on a closed
// channel; subscribers instead observe no further events after unsubscribe.
func (b *eventBus) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[int]chan ConnectionEvent)
}
