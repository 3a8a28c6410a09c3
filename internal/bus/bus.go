// Package bus implements the synchronous in-process event bus that
// sequences the stages of one pipeline run. Dispatch happens on the
// publisher's goroutine: handler N publishing the next event directly
// invokes handler N+1 on the same call stack.
package bus

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/apura-ai/apura/internal/model"
)

// Handler consumes one event. Handlers run synchronously on the
// publisher's goroutine and must not retain the event payload.
type Handler func(ctx context.Context, ev model.Event)

// Bus routes events to subscribers by exact type name, in registration
// order. Each pipeline run owns a private Bus; instances are never shared
// across runs. The zero value is not usable, construct with New.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string][]*Subscription
}

// Subscription is the cancel handle returned by Subscribe.
type Subscription struct {
	bus       *Bus
	eventType string
	handler   Handler
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "bus"),
		subs:   make(map[string][]*Subscription),
	}
}

// Subscribe registers handler for eventType. The same handler may be
// registered under multiple types, and a type may have any number of
// handlers; delivery order is registration order.
func (b *Bus) Subscribe(eventType string, h Handler) *Subscription {
	sub := &Subscription{bus: b, eventType: eventType, handler: h}
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers an event to every handler currently registered for
// eventType, in registration order, before returning. Zero subscribers
// is normal chain termination, not an error. A panicking handler is
// recovered and logged; the remaining handlers still run. Publishing
// from within a handler is permitted and processed depth-first.
func (b *Bus) Publish(ctx context.Context, eventType string, payload map[string]any) {
	ev := model.NewEvent(eventType, payload)

	// Snapshot under lock so cancellations during this pass only take
	// effect on future passes.
	b.mu.Lock()
	snapshot := slices.Clone(b.subs[eventType])
	b.mu.Unlock()

	if len(snapshot) == 0 {
		b.logger.DebugContext(ctx, "event without subscribers, chain terminal",
			"event_type", eventType, "event_id", ev.ID.String())
		return
	}

	for _, sub := range snapshot {
		b.dispatch(ctx, sub, ev)
	}
}

// dispatch invokes one handler, containing any panic so subsequent
// subscribers for the same event still run.
func (b *Bus) dispatch(ctx context.Context, sub *Subscription, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "subscriber panicked",
				"event_type", ev.Type,
				"event_id", ev.ID.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.handler(ctx, ev)
}

// SubscriberCount reports how many handlers are registered for eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[eventType])
}

// Cancel removes the subscription from its bus. Safe to call from inside
// a handler during a publish pass and safe to call more than once; an
// in-flight pass that already snapshotted this subscription still
// delivers to it.
func (s *Subscription) Cancel() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	list := slices.DeleteFunc(b.subs[s.eventType], func(cur *Subscription) bool {
		return cur == s
	})
	if len(list) == 0 {
		delete(b.subs, s.eventType)
		return
	}
	b.subs[s.eventType] = list
}
