package arbor

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Property visibility is declared through configuration key prefixes when an
// Object is constructed:
//
//	"-name"  read-only
//	"+name"  write-only
//	"!name"  private (registered but neither readable nor writable)
//	"name"   read-write
//
// The prefix is stripped from the stored property name. A key whose value is
// itself a map or a function is recorded as structural configuration rather
// than a property: HasProperty reports false for it and Get/Set treat it as
// undefined. Structural entries exist so composite types (Module,
// Application) can consume nested sections of their configuration without
// exposing them through the property surface.
type propertyAccess uint8

const (
	propertyReadable   propertyAccess = 1 << 0
	propertyWritable   propertyAccess = 1 << 1
	propertyStructural propertyAccess = 1 << 2
)

// PropertyAccessor is the property surface shared by objects, components and
// behaviors. Component property lookups fall through an ordered list of
// accessors (its own Object first, then attached behaviors).
type PropertyAccessor interface {
	HasProperty(name string) bool
	CanGetProperty(name string) bool
	CanSetProperty(name string) bool
	GetProperty(name string) (any, error)
	SetProperty(name string, value any) error
}

// Object is the base of the framework's object lifecycle. It carries the
// property registry: a per-object mapping from property name to visibility,
// populated once during construction and immutable afterward. Property
// values may change through SetProperty; visibility may not.
//
// The zero value is usable and has no registered properties. Internal state
// of types embedding Object lives in ordinary struct fields and never passes
// through the registry.
type Object struct {
	mu     sync.RWMutex
	values map[string]any
	access map[string]propertyAccess
}

// NewObject creates an Object from a configuration bag, populating the
// property registry from the key prefixes described above.
func NewObject(props map[string]any) *Object {
	o := &Object{}
	o.initProperties(props)
	return o
}

// Configure populates the property registry from a configuration bag,
// honoring the key prefixes described above. Types in other packages
// embedding Object call it from their constructors.
func (o *Object) Configure(props map[string]any) {
	o.initProperties(props)
}

// initProperties populates the registry. Called exactly once, from a
// constructor, before the object is shared.
func (o *Object) initProperties(props map[string]any) {
	if len(props) == 0 {
		return
	}
	o.values = make(map[string]any, len(props))
	o.access = make(map[string]propertyAccess, len(props))
	for key, value := range props {
		name, acc := splitPropertyKey(key)
		if isStructuralValue(value) {
			acc |= propertyStructural
		}
		o.values[name] = value
		o.access[name] = acc
	}
}

// splitPropertyKey strips a visibility prefix from a configuration key.
// Single-character keys are stored verbatim as read-write properties.
func splitPropertyKey(key string) (string, propertyAccess) {
	if len(key) > 1 {
		switch key[0] {
		case '-':
			return key[1:], propertyReadable
		case '+':
			return key[1:], propertyWritable
		case '!':
			return key[1:], 0
		}
	}
	return key, propertyReadable | propertyWritable
}

// isStructuralValue reports whether a configured value is nested
// configuration (a map) or a function rather than a plain property value.
func isStructuralValue(value any) bool {
	if value == nil {
		return false
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Map, reflect.Func:
		return true
	default:
		return false
	}
}

// HasProperty reports whether name was supplied in the construction
// configuration as a plain property. Names absent from the registry are
// undefined even if a storage slot exists; structural entries are not
// properties.
func (o *Object) HasProperty(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	acc, ok := o.access[name]
	if !ok {
		return false
	}
	if _, stored := o.values[name]; !stored {
		return false
	}
	return acc&propertyStructural == 0
}

// CanGetProperty reports whether name is a property whose visibility allows
// reading.
func (o *Object) CanGetProperty(name string) bool {
	if !o.HasProperty(name) {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.access[name]&propertyReadable != 0
}

// CanSetProperty reports whether name is a property whose visibility allows
// writing.
func (o *Object) CanSetProperty(name string) bool {
	if !o.HasProperty(name) {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.access[name]&propertyWritable != 0
}

// GetProperty returns the value of a readable property. Unregistered names
// fail with ErrUnknownProperty; registered names whose visibility excludes
// reading fail with ErrInvalidCall.
func (o *Object) GetProperty(name string) (any, error) {
	if !o.HasProperty(name) {
		return nil, fmt.Errorf("%w: getting %q", ErrUnknownProperty, name)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.access[name]&propertyReadable == 0 {
		return nil, fmt.Errorf("%w: getting write-only property %q", ErrInvalidCall, name)
	}
	return o.values[name], nil
}

// SetProperty assigns a writable property. Unregistered names fail with
// ErrUnknownProperty; registered names whose visibility excludes writing
// fail with ErrInvalidCall.
func (o *Object) SetProperty(name string, value any) error {
	if !o.HasProperty(name) {
		return fmt.Errorf("%w: setting %q", ErrUnknownProperty, name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.access[name]&propertyWritable == 0 {
		return fmt.Errorf("%w: setting read-only property %q", ErrInvalidCall, name)
	}
	o.values[name] = value
	return nil
}

// PropertyNames returns the registered plain property names in sorted order.
func (o *Object) PropertyNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.access))
	for name, acc := range o.access {
		if acc&propertyStructural != 0 {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// structuralValue returns the raw value of a structural configuration entry.
// Composite types use it to consume nested sections of their configuration.
func (o *Object) structuralValue(name string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	acc, ok := o.access[name]
	if !ok || acc&propertyStructural == 0 {
		return nil, false
	}
	return o.values[name], true
}
