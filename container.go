package arbor

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Initable is implemented by types wanting a hook after construction and
// property assignment. Container.Build calls Init once on every instance it
// constructs; constructors must not call it themselves.
type Initable interface {
	Init() error
}

// Container is the dependency-injection registry: definitions keyed by
// namespace or alias string, resolved on demand with parameter merging and
// optional singleton caching. Each Application owns one container and the
// type registry it resolves namespaces against; nothing is process-global.
//
// A Container is safe for concurrent use. Definitions are not resolved
// under the registry lock, so factories and constructors may call back
// into the container.
type Container struct {
	types *TypeRegistry

	mu          sync.RWMutex
	definitions map[string]definition
	singletons  map[string]bool
	cache       map[string]any
}

// NewContainer creates a container resolving namespaces against types. A
// nil registry gets a fresh empty one.
func NewContainer(types *TypeRegistry) *Container {
	if types == nil {
		types = NewTypeRegistry()
	}
	return &Container{
		types:       types,
		definitions: make(map[string]definition),
		singletons:  make(map[string]bool),
		cache:       make(map[string]any),
	}
}

// Types returns the registry the container resolves namespaces against.
func (c *Container) Types() *TypeRegistry {
	return c.types
}

// Set registers a transient definition under id, replacing any earlier one
// and discarding a previously cached singleton for the key. def may be a
// namespace string, a configuration map, a Factory or an instance; nil
// means the id itself names the namespace. args are the registered
// constructor arguments, merged under caller-supplied ones at resolution.
func (c *Container) Set(id string, def any, args ...any) error {
	d, err := normalizeDefinition(id, def, args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.definitions[id] = d
	delete(c.singletons, id)
	delete(c.cache, id)
	c.mu.Unlock()
	return nil
}

// SetSingleton registers a definition like Set but marks the key for
// single-instance caching. The cache slot stays empty until the first Get
// resolves it.
func (c *Container) SetSingleton(id string, def any, args ...any) error {
	d, err := normalizeDefinition(id, def, args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.definitions[id] = d
	c.singletons[id] = true
	delete(c.cache, id)
	c.mu.Unlock()
	return nil
}

// Has reports whether a definition is registered under id.
func (c *Container) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.definitions[id]
	return ok
}

// HasSingleton reports whether id is marked for singleton caching. With
// checkInstance it additionally requires the instance to have been
// resolved already.
func (c *Container) HasSingleton(id string, checkInstance bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.singletons[id] {
		return false
	}
	if !checkInstance {
		return true
	}
	_, built := c.cache[id]
	return built
}

// Clear removes the definition and any cached singleton for id.
func (c *Container) Clear(id string) {
	c.mu.Lock()
	delete(c.definitions, id)
	delete(c.singletons, id)
	delete(c.cache, id)
	c.mu.Unlock()
}

// Get resolves id to an instance. Resolution order: a cached singleton is
// returned as-is; an unregistered id falls back to direct Build; a Factory
// definition is invoked with the container; a namespace or configuration
// definition recurses through Get unless it references itself, which
// short-circuits to Build; an instance definition is returned verbatim.
// Registered constructor arguments are the base and caller-supplied args
// override them index by index; property bags deep-merge with the caller
// winning.
//
// When id is marked singleton the resolved instance is cached; concurrent
// first resolutions agree on one winner.
func (c *Container) Get(id string, args ...any) (any, error) {
	c.mu.RLock()
	if obj, ok := c.cache[id]; ok {
		c.mu.RUnlock()
		return obj, nil
	}
	def, registered := c.definitions[id]
	c.mu.RUnlock()

	if !registered {
		return c.Build(id, args...)
	}

	obj, err := c.resolve(id, def, args)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.singletons[id] {
		return obj, nil
	}
	if cached, ok := c.cache[id]; ok {
		return cached, nil
	}
	c.cache[id] = obj
	return obj, nil
}

func (c *Container) resolve(id string, def definition, args []any) (any, error) {
	switch def.kind {
	case defInstance:
		return def.instance, nil

	case defFactory:
		pos, props := c.mergeRequest(def, args)
		obj, err := def.factory(c, pos, props)
		if err != nil {
			return nil, fmt.Errorf("factory for %q: %w", id, err)
		}
		if !isValidInstance(obj) {
			return nil, fmt.Errorf("%w: factory for %q returned %T", ErrNotInstantiable, id, obj)
		}
		return obj, nil

	case defNamespace, defConfig:
		pos, props := c.mergeRequest(def, args)
		if def.namespace == id {
			return c.build(def.namespace, pos, props)
		}
		forwarded := slices.Clone(pos)
		if props != nil {
			forwarded = append(forwarded, props)
		}
		return c.Get(def.namespace, forwarded...)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDefinition, id)
	}
}

// mergeRequest overlays the caller's argument list on a definition's
// registered one, returning the merged positional arguments and property
// bag.
func (c *Container) mergeRequest(def definition, args []any) ([]any, map[string]any) {
	regPos, regProps := splitArgs(def.args)
	calPos, calProps := splitArgs(args)
	return mergeArgs(regPos, calPos), mergeProps(mergeProps(def.props, regProps), calProps)
}

// Build constructs an instance of a namespace directly, bypassing any
// definition chain. The trailing map of args is the property bag. It fails
// with ErrNotInstantiable when the namespace is unknown, has no
// constructor, or yields something that is not a component. Instances
// implementing Initable are initialized after construction.
func (c *Container) Build(namespace string, args ...any) (any, error) {
	pos, props := splitArgs(args)
	return c.build(namespace, pos, props)
}

func (c *Container) build(namespace string, pos []any, props map[string]any) (any, error) {
	reg, ok := c.types.Lookup(namespace)
	if !ok {
		return nil, fmt.Errorf("%w: namespace %q cannot be loaded", ErrNotInstantiable, namespace)
	}
	if !reg.Constructible() {
		return nil, fmt.Errorf("%w: namespace %q has no constructor", ErrNotInstantiable, namespace)
	}
	obj, err := reg.New(pos, props)
	if err != nil {
		return nil, fmt.Errorf("building %q: %w", namespace, err)
	}
	if !isValidInstance(obj) {
		return nil, fmt.Errorf("%w: namespace %q produced %T", ErrNotInstantiable, namespace, obj)
	}
	if in, ok := obj.(Initable); ok {
		if err := in.Init(); err != nil {
			return nil, fmt.Errorf("initializing %q: %w", namespace, err)
		}
	}
	return obj, nil
}

// CreateObject builds an instance from an inline definition: a namespace
// string, a configuration map or a Factory. It is the entry point the
// service locator and module tree use for definition slots.
func (c *Container) CreateObject(def any, args ...any) (any, error) {
	switch v := def.(type) {
	case string:
		return c.Get(v, args...)

	case map[string]any:
		namespace, props, err := splitConfigMap("", v)
		if err != nil {
			return nil, err
		}
		pos, callerProps := splitArgs(args)
		merged := mergeProps(props, callerProps)
		forwarded := slices.Clone(pos)
		if merged != nil {
			forwarded = append(forwarded, merged)
		}
		return c.Get(namespace, forwarded...)

	case Factory:
		return c.callFactory(v, args)

	case func(c *Container, args []any, props map[string]any) (any, error):
		return c.callFactory(v, args)

	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidDefinition, def)
	}
}

func (c *Container) callFactory(f Factory, args []any) (any, error) {
	pos, props := splitArgs(args)
	obj, err := f(c, pos, props)
	if err != nil {
		return nil, err
	}
	if !isValidInstance(obj) {
		return nil, fmt.Errorf("%w: factory returned %T", ErrNotInstantiable, obj)
	}
	return obj, nil
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// Invoke applies fn to args reflectively, splitting a trailing error result
// off as the call error. Functions taking a context as their first
// parameter are context-aware and rejected here; use InvokeContext for
// those.
func (c *Container) Invoke(fn any, args ...any) ([]any, error) {
	v, err := callableValue(fn)
	if err != nil {
		return nil, err
	}
	if isContextAware(v.Type()) {
		return nil, fmt.Errorf("%w: context-aware function passed to Invoke", ErrInvalidConfig)
	}
	return callReflected(v, v.Type().String(), args)
}

// InvokeContext applies fn to args like Invoke, prepending ctx when the
// function's first parameter is a context.
func (c *Container) InvokeContext(ctx context.Context, fn any, args ...any) ([]any, error) {
	v, err := callableValue(fn)
	if err != nil {
		return nil, err
	}
	if isContextAware(v.Type()) {
		args = append([]any{ctx}, args...)
	}
	return callReflected(v, v.Type().String(), args)
}

func callableValue(fn any) (reflect.Value, error) {
	if fn == nil {
		return reflect.Value{}, fmt.Errorf("%w: nil function", ErrInvalidConfig)
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a function", ErrInvalidConfig, fn)
	}
	return v, nil
}

func isContextAware(t reflect.Type) bool {
	return t.NumIn() > 0 && t.In(0) == contextType
}
