package arbor

import (
	"fmt"
	"slices"
	"sync"
)

// ServiceLocator resolves string IDs to lazily constructed, cached
// component instances. It differs from the container in two ways: keys are
// arbitrary IDs rather than namespaces, and every resolved component is
// cached, with no separate singleton flag.
//
// ServiceLocator embeds Component, so locators carry the full property,
// event and behavior surface. Module and Application build on it.
type ServiceLocator struct {
	Component

	container *Container

	cmu         sync.RWMutex
	definitions map[string]definition
	instances   map[string]any
}

// NewServiceLocator creates a locator resolving definitions through c. A
// nil container gets a fresh one.
func NewServiceLocator(c *Container) *ServiceLocator {
	l := &ServiceLocator{}
	l.initLocator(c)
	return l
}

// initLocator wires the locator core. Types embedding ServiceLocator call
// it from their constructors.
func (l *ServiceLocator) initLocator(c *Container) {
	if c == nil {
		c = NewContainer(nil)
	}
	l.container = c
	l.definitions = make(map[string]definition)
	l.instances = make(map[string]any)
}

// Container returns the container backing object creation.
func (l *ServiceLocator) Container() *Container {
	return l.container
}

// Has reports whether id can be resolved. With checkInstance it reports
// whether id has already been resolved to an instance.
func (l *ServiceLocator) Has(id string, checkInstance bool) bool {
	l.cmu.RLock()
	defer l.cmu.RUnlock()
	if checkInstance {
		_, ok := l.instances[id]
		return ok
	}
	if _, ok := l.instances[id]; ok {
		return true
	}
	_, ok := l.definitions[id]
	return ok
}

// Get returns the component registered under id, resolving and caching its
// definition on first access. With throwIfMissing false an unknown id
// yields nil instead of ErrComponentNotFound.
func (l *ServiceLocator) Get(id string, throwIfMissing bool) (any, error) {
	l.cmu.RLock()
	if obj, ok := l.instances[id]; ok {
		l.cmu.RUnlock()
		return obj, nil
	}
	def, ok := l.definitions[id]
	l.cmu.RUnlock()

	if !ok {
		if throwIfMissing {
			return nil, fmt.Errorf("%w: %q", ErrComponentNotFound, id)
		}
		return nil, nil
	}

	obj, err := l.resolveDefinition(id, def)
	if err != nil {
		return nil, err
	}

	l.cmu.Lock()
	defer l.cmu.Unlock()
	if cached, ok := l.instances[id]; ok {
		return cached, nil
	}
	l.instances[id] = obj
	return obj, nil
}

func (l *ServiceLocator) resolveDefinition(id string, def definition) (any, error) {
	switch def.kind {
	case defInstance:
		return def.instance, nil
	case defNamespace:
		return l.container.CreateObject(def.namespace)
	case defConfig:
		config := make(map[string]any, len(def.props)+1)
		for k, v := range def.props {
			config[k] = v
		}
		config[NamespaceKey] = def.namespace
		return l.container.CreateObject(config)
	case defFactory:
		return l.container.CreateObject(def.factory)
	default:
		return nil, fmt.Errorf("%w: component %q", ErrInvalidDefinition, id)
	}
}

// Set registers a component definition under id, dropping any previously
// cached instance. Accepted shapes are a namespace string resolvable
// against the type registry, a configuration map carrying a namespace, a
// Factory and a ready instance. A nil definition removes the component.
func (l *ServiceLocator) Set(id string, def any) error {
	if def == nil {
		l.cmu.Lock()
		delete(l.definitions, id)
		delete(l.instances, id)
		l.cmu.Unlock()
		return nil
	}
	d, err := normalizeDefinition(id, def, nil)
	if err != nil {
		return err
	}
	if d.kind == defNamespace && !l.container.Has(d.namespace) && !l.container.Types().Has(d.namespace) {
		return fmt.Errorf("%w: namespace %q for component %q does not resolve", ErrInvalidDefinition, d.namespace, id)
	}
	l.cmu.Lock()
	l.definitions[id] = d
	delete(l.instances, id)
	l.cmu.Unlock()
	return nil
}

// SetComponents registers a definition per map entry, in sorted ID order.
func (l *ServiceLocator) SetComponents(defs map[string]any) error {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := l.Set(id, defs[id]); err != nil {
			return err
		}
	}
	return nil
}

// ComponentIDs returns the registered component IDs, resolved or not, in
// sorted order.
func (l *ServiceLocator) ComponentIDs() []string {
	l.cmu.RLock()
	defer l.cmu.RUnlock()
	ids := make([]string, 0, len(l.definitions)+len(l.instances))
	for id := range l.definitions {
		ids = append(ids, id)
	}
	for id := range l.instances {
		if _, ok := l.definitions[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ComponentAs resolves id and asserts the result to T.
func ComponentAs[T any](l *ServiceLocator, id string) (T, error) {
	var zero T
	obj, err := l.Get(id, true)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: component %q is %T, not %T", ErrInvalidConfig, id, obj, zero)
	}
	return typed, nil
}
