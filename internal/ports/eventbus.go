// Package ports define the EventBus interface for event-driven communication.
// Workers publish lifecycle, preset and diagnostics events through it so observers
// stay decoupled from the render loop.
package ports

import (
	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

// EventBus is the interface for publishing and subscribing to events.
//
// Workers publish from their own goroutine; observers (logging, persistence, the CLI
// status line) subscribe without knowing which instance produced the event.
//
// Thread-safety: Implementations must be thread-safe as events may be published and
// subscribed from multiple goroutines simultaneously.
//
// Example usage:
//
//	// In the worker: publish an event
//	bus.Publish(domain.NewPresetLoadedEvent(id, path, meta))
//
//	// In an observer: subscribe to events
//	subID := bus.Subscribe(domain.EventPresetLoaded, func(event domain.Event) {
//	    e := event.(domain.PresetLoadedEvent)
//	    state.SetPresetPath(e.Path)
//	})
//
//	// Later: Unsubscribe
//	bus.Unsubscribe(subID)
type EventBus interface {
	// Publish publishes an event to all subscribers of that event type.
	// The event is delivered to handlers synchronously in the order they subscribed
	// (for synchronous implementations) or asynchronously (for async implementations).
	//
	// Publish is called from the render worker, so handlers must return quickly.
	Publish(event domain.Event)

	// Subscribe registers a handler for events of the specified type.
	// Each subscription gets a unique SubscriptionID.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes a previously registered event handler.
	// If the subscription ID is invalid or already unsubscribed, this is a no-op.
	Unsubscribe(id domain.SubscriptionID)

	// SubscribeAll registers a handler that receives all events regardless of type.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// HasSubscribers returns true if there are any active subscriptions for the given event type.
	// Workers use it to skip building diagnostics events nobody listens to.
	HasSubscribers(eventType domain.EventType) bool

	// Close shuts down the event bus and cleans up resources.
	Close() error
}

// EventFilter is a function that determines if an event should be delivered to a subscriber.
type EventFilter func(event domain.Event) bool

// FilteringEventBus extends EventBus with filtered subscriptions.
type FilteringEventBus interface {
	EventBus

	// SubscribeFiltered registers a handler with a filter function.
	//
	// Example: only handle events from one instance
	//	bus.SubscribeFiltered(domain.EventDiagnostics, func(e domain.Event) bool {
	//	    return e.(domain.DiagnosticsEvent).InstanceID == id
	//	}, handleDiagnostics)
	SubscribeFiltered(eventType domain.EventType, filter EventFilter, handler domain.EventHandler) domain.SubscriptionID
}
