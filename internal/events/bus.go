// Package events carries cycle notifications from the engine to its
// observers: phase boundaries, cycle wraparounds, and isolated module
// failures. Delivery is synchronous and ordered; late subscribers never see
// past events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the notifications emitted over the bus.
type Type string

const (
	TypePhaseStart    Type = "phase_start"
	TypePhaseEnd      Type = "phase_end"
	TypeCycleComplete Type = "cycle_complete"
	TypeModuleError   Type = "module_error"
)

// Event is a single immutable cycle notification. Phase is empty for
// cycle_complete and module_error events. The engine constructs an event,
// broadcasts it once, and never retains it; subscribers buffer their own
// history if they need one.
type Event struct {
	ID        string         `json:"event_id"`
	Type      Type           `json:"type"`
	Phase     string         `json:"phase,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New constructs an event with a fresh id. The caller stamps Timestamp from
// its own clock so simulated time flows through unchanged.
func New(t Type, phaseName string) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  t,
		Phase: phaseName,
	}
}

// Handler consumes a single event.
type Handler func(Event)

// Logger records bus diagnostics. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

// Subscription represents an active handler registration.
type Subscription struct {
	cancel func()
}

// Close releases the subscription. Safe to call more than once.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

type subscriber struct {
	handler Handler

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) deliver(evt Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.handler(evt)
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Bus fans events out to per-type handler lists. Handlers for a type run in
// registration order, synchronously on the publisher's goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]*subscriber
	logger      Logger
}

// Option customizes bus construction.
type Option func(*Bus)

// WithLogger injects a logger for handler diagnostics.
func WithLogger(logger Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus constructs an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{subscribers: map[Type][]*subscriber{}}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers a handler for one event type and returns the handle
// that releases it. Registration never replays past events.
func (b *Bus) Subscribe(t Type, handler Handler) Subscription {
	if handler == nil {
		return Subscription{}
	}
	sub := &subscriber{handler: handler}
	b.mu.Lock()
	b.subscribers[t] = append(b.subscribers[t], sub)
	b.mu.Unlock()
	return Subscription{
		cancel: func() {
			sub.close()
			b.removeSubscriber(t, sub)
		},
	}
}

// Publish delivers the event to every live handler of its type, in
// registration order. A closed subscription between snapshot and delivery
// is skipped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	live := b.subscribers[evt.Type]
	snapshot := make([]*subscriber, len(live))
	copy(snapshot, live)
	b.mu.RUnlock()
	for _, sub := range snapshot {
		sub.deliver(evt)
	}
}

func (b *Bus) removeSubscriber(t Type, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[t]
	for i, sub := range subs {
		if sub == target {
			b.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[t]) == 0 {
		delete(b.subscribers, t)
	}
}
