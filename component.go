package arbor

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Component is the base unit with property, event and behavior capabilities.
// It extends Object with an instance-level event registry (ordered handler
// lists per event name) and an ordered list of attached behaviors that
// extend its apparent property and method surface.
//
// Components are safe for concurrent use. Event dispatch is strictly
// sequential within one Trigger call.
type Component struct {
	Object

	emu      sync.RWMutex
	handlers map[string][]handlerEntry

	bmu       sync.RWMutex
	behaviors map[string]Behavior
	border    []string
	subs      map[string][]behaviorSub
}

// behaviorSub records one event subscription made on behalf of an attached
// behavior so detaching can unsubscribe exactly what attaching wired.
type behaviorSub struct {
	event string
	fn    HandlerFunc
}

// NewComponent creates a Component from a configuration bag. The bag
// populates the property registry exactly as NewObject does.
func NewComponent(props map[string]any) *Component {
	c := &Component{}
	c.initProperties(props)
	return c
}

// On attaches an event handler at the tail of the handler list for name.
// Handlers fire in attachment order. data is merged under event-supplied
// data when the handler runs.
func (c *Component) On(name string, fn HandlerFunc, data map[string]any) {
	c.attach(name, fn, data, false)
}

// OnFirst attaches an event handler at the head of the handler list, so it
// fires before previously attached handlers.
func (c *Component) OnFirst(name string, fn HandlerFunc, data map[string]any) {
	c.attach(name, fn, data, true)
}

func (c *Component) attach(name string, fn HandlerFunc, data map[string]any, first bool) {
	if fn == nil {
		return
	}
	c.emu.Lock()
	defer c.emu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string][]handlerEntry)
	}
	entry := newHandlerEntry(fn, data)
	if first {
		c.handlers[name] = append([]handlerEntry{entry}, c.handlers[name]...)
	} else {
		c.handlers[name] = append(c.handlers[name], entry)
	}
}

// Off detaches event handlers for name. A nil fn detaches every handler for
// the name. It reports whether anything was detached; repeat calls are
// no-ops returning false.
func (c *Component) Off(name string, fn HandlerFunc) bool {
	c.emu.Lock()
	defer c.emu.Unlock()
	kept, removed := removeHandler(c.handlers[name], fn)
	if !removed {
		return false
	}
	if len(kept) == 0 {
		delete(c.handlers, name)
	} else {
		c.handlers[name] = kept
	}
	return true
}

// HasEventHandlers reports whether any handler is attached for name.
func (c *Component) HasEventHandlers(name string) bool {
	c.emu.RLock()
	defer c.emu.RUnlock()
	return len(c.handlers[name]) > 0
}

// Trigger dispatches an event to the handlers attached for name, in order,
// stopping early when a handler sets Handled or returns an error. A nil
// event is allocated on the spot. The event's name is set and its handled
// flag cleared before dispatch; the sender defaults to the component itself
// when the event carries none.
//
// Instance dispatch never consults a class-level Bus; the two registries
// are independent event spaces.
func (c *Component) Trigger(ctx context.Context, name string, e *Event) error {
	if e == nil {
		e = &Event{}
	}
	e.Name = name
	e.Handled = false
	if e.Sender == nil {
		e.Sender = c
	}
	c.emu.RLock()
	entries := slices.Clone(c.handlers[name])
	c.emu.RUnlock()
	if len(entries) == 0 {
		return nil
	}
	return dispatch(ctx, entries, e)
}

// AttachBehavior attaches a behavior under name. Ownership transfers to the
// component: a behavior attached elsewhere is detached from its previous
// owner first, and a behavior already held under name is detached before
// the new one takes its place. The behavior's declared event handlers are
// subscribed on the component.
func (c *Component) AttachBehavior(name string, b Behavior) error {
	if b == nil {
		return fmt.Errorf("%w: nil behavior %q", ErrInvalidConfig, name)
	}
	if prev := b.Owner(); prev != nil && prev != c {
		prev.detachBehaviorValue(b)
	}

	c.bmu.Lock()
	if c.behaviors == nil {
		c.behaviors = make(map[string]Behavior)
		c.subs = make(map[string][]behaviorSub)
	}
	existing := c.behaviors[name]
	c.bmu.Unlock()
	if existing != nil && existing != b {
		c.DetachBehavior(name)
	}

	c.bmu.Lock()
	if _, held := c.behaviors[name]; !held {
		c.border = append(c.border, name)
	}
	c.behaviors[name] = b
	c.bmu.Unlock()

	b.Attach(c)
	for event, fn := range b.Events() {
		if fn == nil {
			continue
		}
		c.On(event, fn, nil)
		c.bmu.Lock()
		c.subs[name] = append(c.subs[name], behaviorSub{event: event, fn: fn})
		c.bmu.Unlock()
	}
	return nil
}

// AttachBehaviors attaches a set of behaviors. Names are processed in
// sorted order so attachment order is deterministic.
func (c *Component) AttachBehaviors(behaviors map[string]Behavior) error {
	names := make([]string, 0, len(behaviors))
	for name := range behaviors {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := c.AttachBehavior(name, behaviors[name]); err != nil {
			return err
		}
	}
	return nil
}

// DetachBehavior detaches the behavior held under name, unsubscribing the
// event handlers attaching wired and clearing the behavior's owner. It
// returns the detached behavior, or nil when none was held.
func (c *Component) DetachBehavior(name string) Behavior {
	c.bmu.Lock()
	b := c.behaviors[name]
	if b == nil {
		c.bmu.Unlock()
		return nil
	}
	delete(c.behaviors, name)
	subs := c.subs[name]
	delete(c.subs, name)
	if i := slices.Index(c.border, name); i >= 0 {
		c.border = slices.Delete(c.border, i, i+1)
	}
	c.bmu.Unlock()

	for _, sub := range subs {
		c.Off(sub.event, sub.fn)
	}
	b.Detach()
	return b
}

// DetachBehaviors detaches every attached behavior.
func (c *Component) DetachBehaviors() {
	for _, name := range c.BehaviorNames() {
		c.DetachBehavior(name)
	}
}

// detachBehaviorValue detaches a behavior located by identity rather than
// name, used when ownership transfers to another component.
func (c *Component) detachBehaviorValue(b Behavior) {
	c.bmu.RLock()
	var found string
	ok := false
	for name, held := range c.behaviors {
		if held == b {
			found, ok = name, true
			break
		}
	}
	c.bmu.RUnlock()
	if ok {
		c.DetachBehavior(found)
	}
}

// GetBehavior returns the behavior attached under name, or nil.
func (c *Component) GetBehavior(name string) Behavior {
	c.bmu.RLock()
	defer c.bmu.RUnlock()
	return c.behaviors[name]
}

// BehaviorNames returns the attached behavior names in attachment order.
func (c *Component) BehaviorNames() []string {
	c.bmu.RLock()
	defer c.bmu.RUnlock()
	return slices.Clone(c.border)
}

// behaviorList snapshots the attached behaviors in attachment order.
func (c *Component) behaviorList() []Behavior {
	c.bmu.RLock()
	defer c.bmu.RUnlock()
	out := make([]Behavior, 0, len(c.border))
	for _, name := range c.border {
		out = append(out, c.behaviors[name])
	}
	return out
}

// HasProperty reports whether the component or one of its attached
// behaviors (searched in attachment order) registers name as a property.
func (c *Component) HasProperty(name string) bool {
	if c.Object.HasProperty(name) {
		return true
	}
	return c.findPropertyBehavior(name) != nil
}

// CanGetProperty reports whether name is readable on the component or the
// first behavior registering it.
func (c *Component) CanGetProperty(name string) bool {
	if c.Object.HasProperty(name) {
		return c.Object.CanGetProperty(name)
	}
	if p := c.findPropertyBehavior(name); p != nil {
		return p.CanGetProperty(name)
	}
	return false
}

// CanSetProperty reports whether name is writable on the component or the
// first behavior registering it.
func (c *Component) CanSetProperty(name string) bool {
	if c.Object.HasProperty(name) {
		return c.Object.CanSetProperty(name)
	}
	if p := c.findPropertyBehavior(name); p != nil {
		return p.CanSetProperty(name)
	}
	return false
}

// GetProperty reads a property, falling through to attached behaviors in
// attachment order when the component's own registry misses. The first
// behavior registering the name wins; its own visibility then applies.
func (c *Component) GetProperty(name string) (any, error) {
	if c.Object.HasProperty(name) {
		return c.Object.GetProperty(name)
	}
	if p := c.findPropertyBehavior(name); p != nil {
		return p.GetProperty(name)
	}
	return nil, fmt.Errorf("%w: getting %q", ErrUnknownProperty, name)
}

// SetProperty writes a property with the same fallthrough rules as
// GetProperty.
func (c *Component) SetProperty(name string, value any) error {
	if c.Object.HasProperty(name) {
		return c.Object.SetProperty(name, value)
	}
	if p := c.findPropertyBehavior(name); p != nil {
		return p.SetProperty(name, value)
	}
	return fmt.Errorf("%w: setting %q", ErrUnknownProperty, name)
}

// findPropertyBehavior returns the first attached behavior registering name
// as a property, or nil.
func (c *Component) findPropertyBehavior(name string) PropertyAccessor {
	for _, b := range c.behaviorList() {
		if p, ok := b.(PropertyAccessor); ok && p.HasProperty(name) {
			return p
		}
	}
	return nil
}

// HasMethod reports whether target or one of its attached behaviors exposes
// an exported method with the given name. target is the full component
// value (the outermost type), since Go method sets are not visible from an
// embedded Component.
func HasMethod(target any, name string) bool {
	if methodOf(target, name).IsValid() {
		return true
	}
	if holder, ok := target.(behaviorHolder); ok {
		for _, b := range holder.behaviorList() {
			if methodOf(b, name).IsValid() {
				return true
			}
		}
	}
	return false
}

// CallMethod invokes an exported method by name on target, falling through
// to attached behaviors in attachment order (first match wins). When the
// method's last result is an error it is split off and returned as the
// call error. Unknown methods and argument mismatches fail with
// ErrInvalidCall.
func CallMethod(target any, name string, args ...any) ([]any, error) {
	m := methodOf(target, name)
	if !m.IsValid() {
		if holder, ok := target.(behaviorHolder); ok {
			for _, b := range holder.behaviorList() {
				if bm := methodOf(b, name); bm.IsValid() {
					m = bm
					break
				}
			}
		}
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: calling unknown method %q", ErrInvalidCall, name)
	}
	return callReflected(m, name, args)
}

// behaviorHolder lets CallMethod reach the behavior list through any type
// embedding Component.
type behaviorHolder interface {
	behaviorList() []Behavior
}

func methodOf(target any, name string) reflect.Value {
	if target == nil {
		return reflect.Value{}
	}
	return reflect.ValueOf(target).MethodByName(name)
}

func callReflected(m reflect.Value, name string, args []any) ([]any, error) {
	mt := m.Type()
	if mt.IsVariadic() {
		if len(args) < mt.NumIn()-1 {
			return nil, fmt.Errorf("%w: method %q expects at least %d arguments, got %d",
				ErrInvalidCall, name, mt.NumIn()-1, len(args))
		}
	} else if len(args) != mt.NumIn() {
		return nil, fmt.Errorf("%w: method %q expects %d arguments, got %d",
			ErrInvalidCall, name, mt.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := mt.In(min(i, mt.NumIn()-1))
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			want = mt.In(mt.NumIn() - 1).Elem()
		}
		v := reflect.ValueOf(arg)
		if arg == nil {
			v = reflect.Zero(want)
		} else if !v.Type().AssignableTo(want) {
			return nil, fmt.Errorf("%w: method %q argument %d: %s is not assignable to %s",
				ErrInvalidCall, name, i, v.Type(), want)
		}
		in[i] = v
	}
	outs := m.Call(in)
	results := make([]any, 0, len(outs))
	var err error
	for i, out := range outs {
		if i == len(outs)-1 && out.Type() == reflect.TypeOf((*error)(nil)).Elem() {
			if !out.IsNil() {
				err = out.Interface().(error)
			}
			continue
		}
		results = append(results, out.Interface())
	}
	return results, err
}
