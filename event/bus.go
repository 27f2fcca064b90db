package event

import (
	"context"
	"fmt"
)

// Handler reacts to a single event. A non-nil error aborts dispatch.
type Handler func(ctx context.Context, e Event) error

// Bus is a synchronous dispatch table mapping event kind to handlers.
//
// Handlers are registered at construction time and invoked in registration
// order on the publisher's goroutine. A Bus is not safe for concurrent
// Publish calls; callers serialize all events of a run through one publisher.
type Bus struct {
	handlers map[Kind][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers h for events of the given kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
}

// HasSubscribers returns true if at least one handler is registered for kind.
func (b *Bus) HasSubscribers(kind Kind) bool {
	return len(b.handlers[kind]) > 0
}

// Publish delivers e to every handler registered for its kind and returns
// the first handler error unchanged. Events with no subscribers are ignored.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	for _, h := range b.handlers[e.Kind()] {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// On registers a typed handler. T must be a value (non-pointer) event type;
// its zero value supplies the kind.
func On[T Event](b *Bus, fn func(ctx context.Context, e T) error) {
	var zero T
	kind := zero.Kind()
	b.Subscribe(kind, func(ctx context.Context, e Event) error {
		typed, ok := e.(T)
		if !ok {
			return fmt.Errorf("event kind %q delivered as %T, want %T", kind, e, zero)
		}
		return fn(ctx, typed)
	})
}
