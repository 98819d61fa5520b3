package events

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/mcoot/tagmatch/internal/model"
)

// Handler receives published events
type Handler func(model.Event)

type subscription struct {
	id      uint64
	types   map[model.EventType]bool // nil means all types
	handler Handler
}

// Bus is a publish/subscribe bus scoped to one hosted match.
// Handlers run synchronously on the publishing goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	closed bool
	logger *slog.Logger
}

// NewBus creates a new Bus
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With(slog.String("component", "event-bus")),
	}
}

// Subscribe registers a handler for the given event types (all types if none given).
// The returned function removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(handler Handler, types ...model.EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	if len(types) > 0 {
		sub.types = make(map[model.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber
func (b *Bus) Publish(evt model.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[evt.Type] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(s, evt)
	}
}

func (b *Bus) deliver(s *subscription, evt model.Event) {
	defer func() {
		if err := recover(); err != nil {
			b.logger.Error("event handler panicked",
				slog.String("event", string(evt.Type)),
				slog.Any("error", err),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	s.handler(evt)
}

// SubscriberCount returns the number of live subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscription; later publishes are ignored
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.subs = nil
	b.logger.Debug("event bus closed")
}
