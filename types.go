package arbor

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sync"
)

// Constructor builds an instance of a registered type. args are the
// positional constructor arguments; props is the named-parameter bag taken
// from the trailing map of an argument list or from a configuration
// definition.
type Constructor func(args []any, props map[string]any) (any, error)

// Registration describes one loadable type: its namespace, its constructor
// and the concrete Go type the constructor produces. Type lets callers
// check interface conformance before instantiating, which route resolution
// uses to verify a namespace names a controller.
type Registration struct {
	Namespace string
	New       Constructor
	Type      reflect.Type
}

// Constructible reports whether the registration can produce instances.
func (r Registration) Constructible() bool {
	return r.New != nil
}

// Implements reports whether the registered product type satisfies iface,
// which must be a pointer to an interface type, as in
// (*Controller)(nil).
func (r Registration) Implements(iface any) bool {
	if r.Type == nil {
		return false
	}
	it := reflect.TypeOf(iface).Elem()
	if it.Kind() != reflect.Interface {
		return false
	}
	return r.Type.Implements(it)
}

// TypeRegistry maps namespaces to registered types. It is the loadable-unit
// boundary of the kernel: anywhere a definition or route names a namespace,
// the registry answers whether the name exists, whether it can be
// constructed and what it produces.
//
// A TypeRegistry is safe for concurrent use. Registering a namespace twice
// replaces the earlier registration.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]Registration
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]Registration)}
}

var namespacePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(/[A-Za-z_][A-Za-z0-9_]*)*$`)

// IsNamespace reports whether s has the shape of a namespace: slash-
// delimited identifier segments. It says nothing about whether the
// namespace is registered.
func IsNamespace(s string) bool {
	return namespacePattern.MatchString(s)
}

// Register records a type under its namespace. product is a nil pointer of
// the produced type, as in (*SiteController)(nil); it may be nil when the
// product type does not matter.
func (r *TypeRegistry) Register(namespace string, ctor Constructor, product any) error {
	if !IsNamespace(namespace) {
		return fmt.Errorf("%w: %q is not a namespace", ErrInvalidConfig, namespace)
	}
	if ctor == nil {
		return fmt.Errorf("%w: namespace %q needs a constructor", ErrInvalidConfig, namespace)
	}
	reg := Registration{Namespace: namespace, New: ctor}
	if product != nil {
		reg.Type = reflect.TypeOf(product)
	}
	r.mu.Lock()
	r.types[namespace] = reg
	r.mu.Unlock()
	return nil
}

// RegisterType records a type under namespace with the product type taken
// from the constructor's return type. It is the generic companion of
// Register for constructors returning concrete types.
func RegisterType[T any](r *TypeRegistry, namespace string, ctor func(args []any, props map[string]any) (T, error)) error {
	wrapped := func(args []any, props map[string]any) (any, error) {
		return ctor(args, props)
	}
	if !IsNamespace(namespace) {
		return fmt.Errorf("%w: %q is not a namespace", ErrInvalidConfig, namespace)
	}
	if ctor == nil {
		return fmt.Errorf("%w: namespace %q needs a constructor", ErrInvalidConfig, namespace)
	}
	reg := Registration{
		Namespace: namespace,
		New:       wrapped,
		Type:      reflect.TypeOf((*T)(nil)).Elem(),
	}
	r.mu.Lock()
	r.types[namespace] = reg
	r.mu.Unlock()
	return nil
}

// Lookup returns the registration for a namespace.
func (r *TypeRegistry) Lookup(namespace string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[namespace]
	return reg, ok
}

// Has reports whether the namespace is registered.
func (r *TypeRegistry) Has(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[namespace]
	return ok
}

// Unregister removes a namespace. Missing namespaces are a no-op.
func (r *TypeRegistry) Unregister(namespace string) {
	r.mu.Lock()
	delete(r.types, namespace)
	r.mu.Unlock()
}

// Namespaces returns the registered namespaces in sorted order.
func (r *TypeRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
