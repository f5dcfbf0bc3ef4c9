// Observer pattern interfaces for event-driven integration. Unlike the
// kernel's Event/Bus dispatch, which is synchronous framework plumbing,
// observers receive CloudEvents describing framework lifecycle activity in
// a format external systems understand.
package arbor

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of framework lifecycle events. Observers register
// with Subjects and should handle events quickly to avoid blocking other
// observers.
type Observer interface {
	// OnEvent is called for each event the observer subscribed to.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration
	// tracking and debugging.
	ObserverID() string
}

// Subject maintains a list of observers and notifies them when events
// occur. The Application implements it.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered to the given
	// event types. No types means all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Unregistering an unknown
	// observer is a no-op.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to every matching observer,
	// collecting observer errors without aborting delivery.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers reports the currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes one registered observer for monitoring surfaces.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the subscribed event types; empty means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for framework lifecycle events, in reverse domain
// notation per the CloudEvents specification.
const (
	// Application lifecycle events
	EventTypeApplicationStarted = "com.arborframe.application.started"
	EventTypeApplicationStopped = "com.arborframe.application.stopped"
	EventTypeApplicationFailed  = "com.arborframe.application.failed"

	// Component events
	EventTypeComponentRegistered = "com.arborframe.component.registered"
	EventTypeComponentResolved   = "com.arborframe.component.resolved"

	// Module tree events
	EventTypeModuleLoaded = "com.arborframe.module.loaded"

	// Route resolution events
	EventTypeRouteResolved = "com.arborframe.route.resolved"
	EventTypeRouteFailed   = "com.arborframe.route.failed"

	// Configuration events
	EventTypeConfigLoaded   = "com.arborframe.config.loaded"
	EventTypeConfigChanged  = "com.arborframe.config.changed"
	EventTypeConfigReloaded = "com.arborframe.config.reloaded"

	// Web server events
	EventTypeServerStarted = "com.arborframe.server.started"
	EventTypeServerStopped = "com.arborframe.server.stopped"

	// Scheduler events
	EventTypeJobScheduled = "com.arborframe.schedule.job.scheduled"
	EventTypeJobCompleted = "com.arborframe.schedule.job.completed"
	EventTypeJobFailed    = "com.arborframe.schedule.job.failed"
)

// FunctionalObserver wraps a function as an Observer for quick observer
// creation without defining a struct.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements Observer by calling the wrapped function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
