// Package arbor provides an application framework kernel for Go. It
// supports property-based configuration, component events and behaviors,
// dependency injection, and route resolution across a module tree.
//
// An application is the root of a tree of modules. Each module owns
// controllers, child modules, components and path aliases; a route string
// like "admin/users/list" walks that tree to a controller action.
// Components carry the event and behavior surface, the container builds
// objects from registered namespaces, and the service locator resolves
// shared components lazily.
//
// Basic usage:
//
//	app, err := arbor.NewApplication(map[string]any{
//		"id":       "web",
//		"basePath": ".",
//	}, arbor.WithTypeRegistry(registry))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//		log.Fatal(err)
//	}
package arbor

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Module is a node in the application tree: a service locator with an ID, a
// parent, child modules and the route-resolution machinery turning a
// slash-delimited route into a controller and action ID.
//
// Concrete module types embed Module; the tree stores and navigates the
// embedded core. Children are declared as pending definitions and loaded on
// first access, at which point the instance replaces the definition slot.
type Module struct {
	ServiceLocator

	id     string
	parent *Module
	app    *Application

	basePath            string
	controllerNamespace string
	defaultRoute        string
	params              map[string]any

	tmu           sync.RWMutex
	controllerMap map[string]any
	children      map[string]any
}

// ModuleInstance is satisfied by Module and everything embedding it. Tree
// operations accept any ModuleInstance and work on the embedded core.
type ModuleInstance interface {
	base() *Module
}

func (m *Module) base() *Module { return m }

// NewModule creates a module under parent, applying the configuration bag.
// Recognized keys are "basePath", "controllerNamespace", "controllerMap",
// "defaultRoute", "modules", "components", "params" and "aliases"; the
// remaining keys populate the property registry with the usual visibility
// prefixes.
func NewModule(id string, parent *Module, props map[string]any) (*Module, error) {
	m := &Module{}
	if err := m.Init(id, parent, props); err != nil {
		return nil, err
	}
	return m, nil
}

// Init wires the module core under parent and applies the configuration
// bag. Types embedding Module call it from their constructors before
// registering anything of their own.
func (m *Module) Init(id string, parent *Module, props map[string]any) error {
	m.id = id
	m.parent = parent
	var container *Container
	if parent != nil {
		m.app = parent.app
		container = parent.Container()
	}
	m.initLocator(container)
	m.controllerNamespace = "app/controllers"
	m.defaultRoute = "default"
	m.controllerMap = make(map[string]any)
	m.children = make(map[string]any)
	return m.applyConfig(props)
}

// applyConfig consumes the structural configuration keys in a fixed order,
// aliases before paths so a base path may use an alias declared alongside
// it, and registers the remaining keys as properties.
func (m *Module) applyConfig(props map[string]any) error {
	rest := make(map[string]any, len(props))
	for key, value := range props {
		rest[key] = value
	}
	take := func(key string) (any, bool) {
		value, ok := rest[key]
		if ok {
			delete(rest, key)
		}
		return value, ok
	}

	if value, ok := take("aliases"); ok {
		aliases, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: aliases of module %q must be a map", ErrInvalidArgument, m.id)
		}
		if err := m.registerAliases(aliases); err != nil {
			return err
		}
	}
	if value, ok := take("basePath"); ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: basePath of module %q must be a string", ErrInvalidArgument, m.id)
		}
		if err := m.SetBasePath(s); err != nil {
			return err
		}
	}
	if value, ok := take("controllerNamespace"); ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: controllerNamespace of module %q must be a namespace", ErrInvalidConfig, m.id)
		}
		if err := m.SetControllerNamespace(s); err != nil {
			return err
		}
	}
	if value, ok := take("defaultRoute"); ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: defaultRoute of module %q must be a string", ErrInvalidConfig, m.id)
		}
		m.defaultRoute = s
	}
	if value, ok := take("controllerMap"); ok {
		cm, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: controllerMap of module %q must be a map", ErrInvalidConfig, m.id)
		}
		m.SetControllerMap(cm)
	}
	if value, ok := take("params"); ok {
		p, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: params of module %q must be a map", ErrInvalidConfig, m.id)
		}
		m.params = p
	}
	if value, ok := take("components"); ok {
		comps, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: components of module %q must be a map", ErrInvalidConfig, m.id)
		}
		if err := m.SetComponents(comps); err != nil {
			return err
		}
	}
	if value, ok := take("modules"); ok {
		mods, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: modules of module %q must be a map", ErrInvalidConfig, m.id)
		}
		m.SetModules(mods)
	}

	m.initProperties(rest)
	return nil
}

func (m *Module) registerAliases(aliases map[string]any) error {
	if m.app == nil {
		return fmt.Errorf("%w: module %q declares aliases outside an application", ErrInvalidConfig, m.id)
	}
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		path, ok := aliases[name].(string)
		if !ok {
			return fmt.Errorf("%w: alias %q of module %q must be a string", ErrInvalidArgument, name, m.id)
		}
		if err := m.app.Aliases().Set(name, path); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the module ID in its parent.
func (m *Module) ID() string { return m.id }

// Parent returns the parent module, nil for the application root.
func (m *Module) Parent() *Module { return m.parent }

// App returns the application owning the tree, nil for detached modules.
func (m *Module) App() *Application { return m.app }

// UniqueID returns the module's slash-joined path of IDs below the root.
// The application root's unique ID is empty.
func (m *Module) UniqueID() string {
	if m.parent == nil {
		return ""
	}
	prefix := m.parent.UniqueID()
	if prefix == "" {
		return m.id
	}
	return prefix + "/" + m.id
}

// BasePath returns the module's base path, defaulting to a directory named
// after the module under the parent's base path.
func (m *Module) BasePath() string {
	if m.basePath != "" {
		return m.basePath
	}
	if m.parent != nil {
		return m.parent.BasePath() + "/" + m.id
	}
	return ""
}

// SetBasePath assigns the module's base path. Aliases resolve first; the
// result must name an existing directory.
func (m *Module) SetBasePath(path string) error {
	resolved := path
	if strings.HasPrefix(path, "@") {
		if m.app == nil {
			return fmt.Errorf("%w: base path %q of module %q needs an application to resolve", ErrInvalidArgument, path, m.id)
		}
		var err error
		resolved, err = m.app.Aliases().Get(path)
		if err != nil {
			return err
		}
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: base path %q of module %q is not a directory", ErrInvalidArgument, resolved, m.id)
	}
	m.basePath = strings.TrimRight(resolved, "/")
	return nil
}

// ControllerNamespace returns the namespace controller classes resolve
// under.
func (m *Module) ControllerNamespace() string { return m.controllerNamespace }

// SetControllerNamespace assigns the namespace controller classes resolve
// under.
func (m *Module) SetControllerNamespace(ns string) error {
	if !IsNamespace(ns) {
		return fmt.Errorf("%w: %q is not a namespace", ErrInvalidConfig, ns)
	}
	m.controllerNamespace = ns
	return nil
}

// DefaultRoute returns the route used when resolution is handed an empty
// one.
func (m *Module) DefaultRoute() string { return m.defaultRoute }

// SetDefaultRoute assigns the route used for empty routes.
func (m *Module) SetDefaultRoute(route string) { m.defaultRoute = route }

// Params returns the module's parameter bag from configuration.
func (m *Module) Params() map[string]any { return m.params }

// SetControllerMap replaces the explicit controller-ID-to-definition map
// consulted before any namespace lookup.
func (m *Module) SetControllerMap(cm map[string]any) {
	m.tmu.Lock()
	m.controllerMap = make(map[string]any, len(cm))
	for id, def := range cm {
		m.controllerMap[id] = def
	}
	m.tmu.Unlock()
}

// SetModule declares a child module under id. def may be a namespace
// string, a configuration map, a built Module or nil to remove the child.
func (m *Module) SetModule(id string, def any) {
	m.tmu.Lock()
	if def == nil {
		delete(m.children, id)
	} else {
		m.children[id] = def
	}
	m.tmu.Unlock()
}

// SetModules declares a child module per map entry.
func (m *Module) SetModules(defs map[string]any) {
	for id, def := range defs {
		m.SetModule(id, def)
	}
}

// HasModule reports whether id (possibly a slash path of IDs) names a
// declared or loaded descendant.
func (m *Module) HasModule(id string) bool {
	first, rest, nested := strings.Cut(id, "/")
	m.tmu.RLock()
	v, ok := m.children[first]
	m.tmu.RUnlock()
	if !ok {
		return false
	}
	if !nested {
		return true
	}
	child, ok := v.(ModuleInstance)
	if !ok {
		return false
	}
	return child.base().HasModule(rest)
}

// ModuleIDs returns the declared child module IDs in sorted order.
func (m *Module) ModuleIDs() []string {
	m.tmu.RLock()
	defer m.tmu.RUnlock()
	ids := make([]string, 0, len(m.children))
	for id := range m.children {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// GetModule returns the descendant module named by id, a single ID or a
// slash path of IDs. With load true a pending definition is instantiated,
// replacing its slot; otherwise only already-loaded modules are returned.
// An unknown id yields nil without error.
func (m *Module) GetModule(id string, load bool) (*Module, error) {
	first, rest, nested := strings.Cut(id, "/")

	m.tmu.RLock()
	v, ok := m.children[first]
	m.tmu.RUnlock()
	if !ok {
		return nil, nil
	}

	var child *Module
	if inst, isInstance := v.(ModuleInstance); isInstance {
		child = inst.base()
	} else if load {
		loaded, err := m.loadModule(first, v)
		if err != nil {
			return nil, err
		}
		child = loaded
	} else {
		return nil, nil
	}

	if nested {
		return child.GetModule(rest, load)
	}
	return child, nil
}

// loadModule instantiates a pending child definition and adopts the result.
func (m *Module) loadModule(id string, def any) (*Module, error) {
	var inst ModuleInstance
	switch v := def.(type) {
	case string:
		obj, err := m.Container().CreateObject(v, id, m)
		if err != nil {
			return nil, err
		}
		mi, ok := obj.(ModuleInstance)
		if !ok {
			return nil, fmt.Errorf("%w: namespace %q for module %q did not produce a module", ErrInvalidConfig, v, id)
		}
		inst = mi
	case map[string]any:
		if _, hasNS := v[NamespaceKey]; hasNS {
			obj, err := m.Container().CreateObject(v, id, m)
			if err != nil {
				return nil, err
			}
			mi, ok := obj.(ModuleInstance)
			if !ok {
				return nil, fmt.Errorf("%w: configuration for module %q did not produce a module", ErrInvalidConfig, id)
			}
			inst = mi
		} else {
			built, err := NewModule(id, m, v)
			if err != nil {
				return nil, err
			}
			inst = built
		}
	default:
		return nil, fmt.Errorf("%w: module %q declared as %T", ErrInvalidConfig, id, def)
	}

	child := inst.base()
	child.id = id
	child.parent = m
	child.app = m.app

	m.tmu.Lock()
	m.children[id] = inst
	m.tmu.Unlock()

	if m.app != nil {
		m.app.registerLoadedModule(child)
		m.app.Logger().Debug("module loaded", "module", child.UniqueID())
		m.app.emit(context.Background(), EventTypeModuleLoaded, child.UniqueID(), map[string]any{
			"id":     child.id,
			"parent": m.UniqueID(),
		})
	}
	return child, nil
}

var (
	routeSegmentPattern    = regexp.MustCompile(`^[a-z][a-z0-9_]*(-[a-z0-9_]+)*$`)
	controllerPrefixFormat = regexp.MustCompile(`^[a-zA-Z0-9_/]+$`)
)

// CreateController resolves a route into a controller and the remaining
// action ID. Resolution order: the controller map, then child modules
// (loading them as needed), then the controller namespace, first treating
// the whole remaining route as a controller path and then retrying with the
// first segment as the controller ID and the rest as the action ID.
//
// Controllers constructed from the namespace receive their ID and the
// owning module as positional constructor arguments.
//
// A route that survives every attempt unresolved fails with ErrInvalidRoute
// carrying the route qualified by the module's unique ID.
func (m *Module) CreateController(route string) (Controller, string, error) {
	if route == "" {
		route = m.defaultRoute
	}
	route = strings.Trim(route, "/")
	if strings.Contains(route, "//") {
		return nil, "", m.invalidRoute(route)
	}

	id, rest, _ := strings.Cut(route, "/")

	m.tmu.RLock()
	mapped, inMap := m.controllerMap[id]
	m.tmu.RUnlock()
	if inMap {
		ctrl, err := m.buildController(mapped, id)
		if err != nil {
			return nil, "", err
		}
		return ctrl, rest, nil
	}

	child, err := m.GetModule(id, true)
	if err != nil {
		return nil, "", err
	}
	if child != nil {
		return child.CreateController(rest)
	}

	ctrl, err := m.createControllerByID(route)
	if err != nil {
		return nil, "", err
	}
	if ctrl != nil {
		return ctrl, "", nil
	}

	if rest != "" {
		ctrl, err = m.createControllerByID(id)
		if err != nil {
			return nil, "", err
		}
		if ctrl != nil {
			return ctrl, rest, nil
		}
	}

	return nil, "", m.invalidRoute(route)
}

// createControllerByID resolves a controller path against the controller
// namespace. The last segment becomes the PascalCased class name with a
// Controller suffix; earlier segments extend the namespace. A nil, nil
// return means the path does not name a controller.
func (m *Module) createControllerByID(id string) (Controller, error) {
	prefix, name := "", id
	if pos := strings.LastIndex(id, "/"); pos >= 0 {
		prefix, name = id[:pos], id[pos+1:]
	}
	if !routeSegmentPattern.MatchString(name) {
		return nil, nil
	}
	if prefix != "" && !controllerPrefixFormat.MatchString(prefix) {
		return nil, nil
	}

	namespace := m.controllerNamespace
	if prefix != "" {
		namespace += "/" + prefix
	}
	class := namespace + "/" + pascalCase(name) + "Controller"
	if strings.Contains(class, "-") {
		return nil, nil
	}

	reg, ok := m.Container().Types().Lookup(class)
	if !ok {
		return nil, nil
	}
	if !reg.Implements((*Controller)(nil)) {
		return nil, nil
	}
	return m.buildController(class, id)
}

// buildController instantiates a controller definition, passing the
// controller ID and the module as constructor arguments.
func (m *Module) buildController(def any, id string) (Controller, error) {
	obj, err := m.Container().CreateObject(def, id, m)
	if err != nil {
		return nil, err
	}
	ctrl, ok := obj.(Controller)
	if !ok {
		return nil, fmt.Errorf("%w: controller %q resolved to %T", ErrInvalidConfig, id, obj)
	}
	return ctrl, nil
}

// RunAction resolves a route and executes the resulting action, firing the
// module's "beforeAction" and "afterAction" events around it.
func (m *Module) RunAction(ctx context.Context, route string, params map[string]any) (any, error) {
	ctrl, actionID, err := m.CreateController(route)
	if err != nil {
		if m.app != nil {
			m.app.emit(ctx, EventTypeRouteFailed, m.UniqueID(), map[string]any{"route": route})
		}
		return nil, err
	}
	if m.app != nil {
		m.app.Logger().Debug("route resolved", "route", route, "controller", ctrl.ID(), "action", actionID)
		m.app.emit(ctx, EventTypeRouteResolved, m.UniqueID(), map[string]any{
			"route":      route,
			"controller": ctrl.ID(),
			"action":     actionID,
		})
	}

	before := &Event{Sender: m, Data: map[string]any{"route": route, "params": params}}
	if err := m.Trigger(ctx, EventBeforeAction, before); err != nil {
		return nil, err
	}
	if before.Handled {
		return before.Data["result"], nil
	}

	result, err := ctrl.RunAction(ctx, actionID, params)
	if err != nil {
		return nil, err
	}

	after := &Event{Sender: m, Data: map[string]any{"route": route, "result": result}}
	if err := m.Trigger(ctx, EventAfterAction, after); err != nil {
		return nil, err
	}
	return after.Data["result"], nil
}

func (m *Module) invalidRoute(route string) error {
	qualified := route
	if uid := m.UniqueID(); uid != "" {
		qualified = uid + "/" + route
	}
	return fmt.Errorf("%w: %q", ErrInvalidRoute, qualified)
}

// pascalCase joins hyphen-separated words with each word's first letter
// uppercased: "users-admin" becomes "UsersAdmin".
func pascalCase(segment string) string {
	var b strings.Builder
	for _, word := range strings.Split(segment, "-") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	return b.String()
}
