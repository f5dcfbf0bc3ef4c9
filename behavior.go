package arbor

import "sync"

// Behavior extends the property and method surface of the component it is
// attached to. A behavior belongs to at most one component at a time;
// attaching it elsewhere moves it.
//
// Behaviors that also implement PropertyAccessor (for example by embedding
// Object) contribute their properties to the owning component's surface.
type Behavior interface {
	// Attach is called by the component after the behavior is registered.
	// Implementations must record owner so Owner can report it.
	Attach(owner *Component)

	// Detach is called by the component after the behavior is removed.
	// Implementations must clear the recorded owner.
	Detach()

	// Owner returns the component the behavior is attached to, or nil.
	Owner() *Component

	// Events declares the event handlers the behavior wants subscribed on
	// its owner. They are attached on Attach and removed on Detach.
	Events() map[string]HandlerFunc
}

// BaseBehavior is a ready-made Behavior core tracking the owner. Embed it
// and override Events to subscribe to owner events. It carries an Object
// so behaviors expose configurable properties the same way components do.
type BaseBehavior struct {
	Object

	mu    sync.RWMutex
	owner *Component
}

// NewBaseBehavior creates a behavior core with the given property bag.
func NewBaseBehavior(props map[string]any) *BaseBehavior {
	b := &BaseBehavior{}
	b.initProperties(props)
	return b
}

// Attach records the owning component.
func (b *BaseBehavior) Attach(owner *Component) {
	b.mu.Lock()
	b.owner = owner
	b.mu.Unlock()
}

// Detach clears the owning component.
func (b *BaseBehavior) Detach() {
	b.mu.Lock()
	b.owner = nil
	b.mu.Unlock()
}

// Owner returns the component the behavior is attached to, or nil when
// detached.
func (b *BaseBehavior) Owner() *Component {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

// Events returns no handlers. Embedding types override it to declare
// subscriptions.
func (b *BaseBehavior) Events() map[string]HandlerFunc {
	return nil
}
