package arbor

import (
	"context"
	"reflect"
	"slices"
	"sync"
)

// Event is the value passed through a single dispatch. Events are transient:
// one is built (or accepted from the caller) immediately before dispatch and
// holds no state between triggers.
type Event struct {
	// Name is the event name the dispatch ran under.
	Name string

	// Sender is the component the event was triggered on, or nil for
	// bus-level triggers without a sender.
	Sender any

	// Handled stops the remaining handlers of the current dispatch when a
	// handler sets it. It has no effect outside that one trigger call.
	Handled bool

	// Data carries auxiliary data. During dispatch it is the merge of the
	// handler's registration-time data and the event-supplied data, with
	// the event-supplied entries winning on key conflicts.
	Data map[string]any
}

// HandlerFunc handles one dispatched event. Returning an error aborts the
// remaining handlers of the dispatch and propagates to the Trigger caller.
type HandlerFunc func(ctx context.Context, event *Event) error

// handlerEntry pairs a handler with its registration-time auxiliary data.
type handlerEntry struct {
	fn   HandlerFunc
	ptr  uintptr
	data map[string]any
}

func newHandlerEntry(fn HandlerFunc, data map[string]any) handlerEntry {
	return handlerEntry{fn: fn, ptr: reflect.ValueOf(fn).Pointer(), data: data}
}

// mergeEventData overlays event-supplied data on registration-time data.
// A nil result means neither side carried data.
func mergeEventData(registered, supplied map[string]any) map[string]any {
	if len(registered) == 0 {
		return supplied
	}
	merged := make(map[string]any, len(registered)+len(supplied))
	for k, v := range registered {
		merged[k] = v
	}
	for k, v := range supplied {
		merged[k] = v
	}
	return merged
}

// dispatch runs entries in order against e, honoring the Handled flag and
// restoring the caller-supplied data afterward. The handler slice must be a
// snapshot owned by the caller.
func dispatch(ctx context.Context, entries []handlerEntry, e *Event) error {
	supplied := e.Data
	defer func() { e.Data = supplied }()
	for _, entry := range entries {
		e.Data = mergeEventData(entry.data, supplied)
		if err := entry.fn(ctx, e); err != nil {
			return err
		}
		if e.Handled {
			return nil
		}
	}
	return nil
}

// removeHandler deletes every entry matching fn's identity from entries,
// reporting whether anything was removed. A nil fn removes everything.
func removeHandler(entries []handlerEntry, fn HandlerFunc) ([]handlerEntry, bool) {
	if fn == nil {
		return nil, len(entries) > 0
	}
	ptr := reflect.ValueOf(fn).Pointer()
	kept := entries[:0]
	removed := false
	for _, entry := range entries {
		if entry.ptr == ptr {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return entries, false
	}
	return kept, true
}

// Bus is the class-level event registry: handlers attach to a component
// type rather than an instance, and fire for events triggered through the
// bus on any sender of that exact dynamic type. The bus and per-component
// handler lists are fully independent event spaces; a component's Trigger
// never consults a bus.
//
// A Bus is safe for concurrent use. The Application owns one; standalone
// buses can be created for tests.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]map[string][]handlerEntry
}

// NewBus creates an empty class-level event registry.
func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type]map[string][]handlerEntry)}
}

// On attaches a handler for name on all senders of the given type, in FIFO
// position. data is merged under event-supplied data at dispatch time.
func (b *Bus) On(target reflect.Type, name string, fn HandlerFunc, data map[string]any) {
	b.attach(target, name, fn, data, false)
}

// OnFirst attaches a handler at the head of the list (LIFO position).
func (b *Bus) OnFirst(target reflect.Type, name string, fn HandlerFunc, data map[string]any) {
	b.attach(target, name, fn, data, true)
}

func (b *Bus) attach(target reflect.Type, name string, fn HandlerFunc, data map[string]any, first bool) {
	if target == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	byName := b.handlers[target]
	if byName == nil {
		byName = make(map[string][]handlerEntry)
		b.handlers[target] = byName
	}
	entry := newHandlerEntry(fn, data)
	if first {
		byName[name] = append([]handlerEntry{entry}, byName[name]...)
	} else {
		byName[name] = append(byName[name], entry)
	}
}

// Off detaches handlers for name on the given type. A nil fn detaches all
// handlers for the name. It reports whether anything was detached and is a
// no-op on repeat calls.
func (b *Bus) Off(target reflect.Type, name string, fn HandlerFunc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	byName := b.handlers[target]
	kept, removed := removeHandler(byName[name], fn)
	if !removed {
		return false
	}
	if len(kept) == 0 {
		delete(byName, name)
		if len(byName) == 0 {
			delete(b.handlers, target)
		}
	} else {
		byName[name] = kept
	}
	return true
}

// Clear detaches every handler on the bus.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[reflect.Type]map[string][]handlerEntry)
}

// HasHandlers reports whether any handler is attached for name on the type.
func (b *Bus) HasHandlers(target reflect.Type, name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[target][name]) > 0
}

// Trigger dispatches an event to the handlers attached for the sender's
// dynamic type. A nil event is allocated on the spot; the event's name,
// sender and handled flag are (re)set before dispatch.
func (b *Bus) Trigger(ctx context.Context, sender any, name string, e *Event) error {
	if e == nil {
		e = &Event{}
	}
	e.Name = name
	e.Sender = sender
	e.Handled = false
	if sender == nil {
		return nil
	}
	b.mu.RLock()
	entries := slices.Clone(b.handlers[reflect.TypeOf(sender)][name])
	b.mu.RUnlock()
	if len(entries) == 0 {
		return nil
	}
	return dispatch(ctx, entries, e)
}

// OnType attaches a class-level handler for the component type T.
func OnType[T any](b *Bus, name string, fn HandlerFunc, data map[string]any) {
	b.On(reflect.TypeOf((*T)(nil)).Elem(), name, fn, data)
}

// OffType detaches class-level handlers for the component type T.
func OffType[T any](b *Bus, name string, fn HandlerFunc) bool {
	return b.Off(reflect.TypeOf((*T)(nil)).Elem(), name, fn)
}
