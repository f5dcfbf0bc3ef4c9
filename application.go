package arbor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

// Startable is implemented by components that need starting when the
// application starts. Start is called once; the context is canceled when
// the application stops.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by components that need graceful shutdown.
// Components stop in reverse start order under a shutdown timeout.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Bootstrapper is implemented by components and modules listed in the
// application's bootstrap configuration that want a hook during Init,
// after being resolved.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, app *Application) error
}

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// Application is the root of the module tree. It owns the container, the
// type registry, the class-level event bus and the alias table, so nothing
// in the framework is process-global and several applications can coexist
// in one process.
//
// An application is built from a configuration map whose "id" and
// "basePath" keys are required. The remaining keys configure the root
// module: "components", "modules", "bootstrap", "aliases", "params",
// "controllerMap", "controllerNamespace", "defaultRoute" and free
// properties.
type Application struct {
	Module

	logger  Logger
	bus     *Bus
	aliases *AliasTable
	version string

	bootstrap []any

	ctx    context.Context
	cancel context.CancelFunc

	smu     sync.Mutex
	started []string

	lmu           sync.RWMutex
	loadedModules map[string]*Module

	omu       sync.RWMutex
	observers map[string]*observerRegistration
}

var _ Subject = (*Application)(nil)

// NewApplication builds an application from a configuration map. The map
// must carry "id" and "basePath"; "basePath" must name an existing
// directory and is registered as the "@app" alias, with "@runtime"
// beneath it. Options run before the configuration is applied, so an
// injected container or type registry is visible to component and module
// definitions.
func NewApplication(config map[string]any, opts ...Option) (*Application, error) {
	id, ok := config["id"].(string)
	if !ok || id == "" {
		return nil, ErrAppIDMissing
	}
	if _, ok := config["basePath"].(string); !ok {
		return nil, ErrAppBasePathMissing
	}

	a := &Application{
		logger:        NewNopLogger(),
		bus:           NewBus(),
		aliases:       NewAliasTable(),
		version:       "1.0",
		loadedModules: make(map[string]*Module),
		observers:     make(map[string]*observerRegistration),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	a.Module.app = a
	a.id = id
	if a.Container() == nil {
		a.initLocator(nil)
	}
	a.controllerNamespace = "app/controllers"
	a.defaultRoute = "default"
	a.controllerMap = make(map[string]any)
	a.children = make(map[string]any)

	rest := make(map[string]any, len(config))
	for key, value := range config {
		switch key {
		case "id":
		case "basePath":
			if err := a.SetBasePath(value.(string)); err != nil {
				return nil, err
			}
		case "version":
			if v, ok := value.(string); ok {
				a.version = v
			}
		case "bootstrap":
			entries, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: bootstrap must be a list", ErrInvalidConfig)
			}
			a.bootstrap = entries
		default:
			rest[key] = value
		}
	}
	// The base path aliases exist before the rest of the configuration is
	// applied, so component, module and alias definitions can use them.
	if err := a.aliases.Set("@app", a.BasePath()); err != nil {
		return nil, err
	}
	if err := a.aliases.Set("@runtime", "@app/runtime"); err != nil {
		return nil, err
	}
	if err := a.applyConfig(rest); err != nil {
		return nil, err
	}

	a.logger.Debug("application constructed", "id", a.id, "basePath", a.BasePath())
	return a, nil
}

// Logger returns the application logger. It is never nil.
func (a *Application) Logger() Logger { return a.logger }

// Bus returns the class-level event registry.
func (a *Application) Bus() *Bus { return a.bus }

// Aliases returns the application's alias table.
func (a *Application) Aliases() *AliasTable { return a.aliases }

// Version returns the application version from configuration.
func (a *Application) Version() string { return a.version }

// registerLoadedModule records a loaded module under its unique ID, so two
// sibling instances of the same module type track independently.
func (a *Application) registerLoadedModule(m *Module) {
	a.lmu.Lock()
	a.loadedModules[m.UniqueID()] = m
	a.lmu.Unlock()
}

// LoadedModule returns the loaded module with the given unique ID.
func (a *Application) LoadedModule(uniqueID string) (*Module, bool) {
	a.lmu.RLock()
	defer a.lmu.RUnlock()
	m, ok := a.loadedModules[uniqueID]
	return m, ok
}

// LoadedModuleIDs returns the unique IDs of every loaded module in sorted
// order.
func (a *Application) LoadedModuleIDs() []string {
	a.lmu.RLock()
	defer a.lmu.RUnlock()
	ids := make([]string, 0, len(a.loadedModules))
	for id := range a.loadedModules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Set registers a component definition with the application and announces
// the registration to observers. Removal with a nil definition is silent.
func (a *Application) Set(id string, def any) error {
	if err := a.Module.Set(id, def); err != nil {
		return err
	}
	if def != nil {
		a.emit(context.Background(), EventTypeComponentRegistered, "", map[string]any{"component": id})
	}
	return nil
}

// Init runs the bootstrap list: each entry is a component ID, a module ID,
// a namespace or an inline definition. Resolved entries implementing
// Bootstrapper get their hook called with the application.
func (a *Application) Init() error {
	ctx := context.Background()
	a.emit(ctx, EventTypeConfigLoaded, "", map[string]any{"phase": "bootstrap"})

	for _, entry := range a.bootstrap {
		obj, err := a.resolveBootstrapEntry(entry)
		if err != nil {
			return err
		}
		if b, ok := obj.(Bootstrapper); ok {
			if err := b.Bootstrap(ctx, a); err != nil {
				return fmt.Errorf("bootstrapping %v: %w", entry, err)
			}
		}
	}
	return nil
}

func (a *Application) resolveBootstrapEntry(entry any) (any, error) {
	switch v := entry.(type) {
	case string:
		if a.Has(v, false) {
			a.logger.Debug("bootstrapping component", "id", v)
			return a.Get(v, true)
		}
		if a.HasModule(v) {
			a.logger.Debug("bootstrapping module", "id", v)
			m, err := a.GetModule(v, true)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
		if a.Container().Has(v) || a.Container().Types().Has(v) {
			a.logger.Debug("bootstrapping namespace", "namespace", v)
			return a.Container().Get(v)
		}
		return nil, fmt.Errorf("%w: bootstrap entry %q is neither a component, a module nor a namespace", ErrInvalidConfig, v)
	case map[string]any:
		return a.Container().CreateObject(v)
	default:
		return nil, fmt.Errorf("%w: bootstrap entry %T", ErrInvalidConfig, entry)
	}
}

// Start resolves every registered component in sorted ID order and starts
// the ones implementing Startable. The application context stays alive
// until Stop.
func (a *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel

	for _, id := range a.ComponentIDs() {
		obj, err := a.Get(id, true)
		if err != nil {
			a.emit(ctx, EventTypeApplicationFailed, "", map[string]any{"phase": "start", "component": id, "error": err.Error()})
			return fmt.Errorf("starting component %q: %w", id, err)
		}
		a.emit(ctx, EventTypeComponentResolved, "", map[string]any{"component": id})
		s, ok := obj.(Startable)
		if !ok {
			a.logger.Debug("component is not startable, skipping", "component", id)
			continue
		}
		a.logger.Info("starting component", "component", id)
		if err := s.Start(ctx); err != nil {
			a.emit(ctx, EventTypeApplicationFailed, "", map[string]any{"phase": "start", "component": id, "error": err.Error()})
			return fmt.Errorf("starting component %q: %w", id, err)
		}
		a.smu.Lock()
		a.started = append(a.started, id)
		a.smu.Unlock()
	}

	a.emit(ctx, EventTypeApplicationStarted, "", nil)
	return nil
}

// Stop stops started components in reverse order under a shutdown timeout
// and cancels the application context. The last stop error wins.
func (a *Application) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.smu.Lock()
	started := slices.Clone(a.started)
	a.started = nil
	a.smu.Unlock()
	slices.Reverse(started)

	var lastErr error
	for _, id := range started {
		obj, err := a.Get(id, false)
		if err != nil || obj == nil {
			continue
		}
		s, ok := obj.(Stoppable)
		if !ok {
			continue
		}
		a.logger.Info("stopping component", "component", id)
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("error stopping component", "component", id, "error", err)
			lastErr = err
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.emit(context.Background(), EventTypeApplicationStopped, "", nil)
	return lastErr
}

// Run initializes and starts the application, blocks until SIGINT or
// SIGTERM, then stops it.
func (a *Application) Run() error {
	if err := a.Init(); err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	a.logger.Info("received signal, shutting down", "signal", sig)

	return a.Stop()
}

// Context returns the application context, live between Start and Stop.
func (a *Application) Context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// RegisterObserver adds an observer for framework lifecycle events,
// optionally filtered by event type. No types means all events.
func (a *Application) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	a.omu.Lock()
	defer a.omu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}
	a.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	a.logger.Debug("observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Unknown observers are a no-op.
func (a *Application) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	a.omu.Lock()
	defer a.omu.Unlock()
	delete(a.observers, observer.ObserverID())
	return nil
}

// NotifyObservers delivers an event to the matching observers. Each
// observer runs in its own goroutine so a slow observer cannot block the
// caller; observer errors and panics are logged, not propagated.
func (a *Application) NotifyObservers(ctx context.Context, event CloudEvent) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		a.logger.Error("invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	a.omu.RLock()
	defer a.omu.RUnlock()
	for _, registration := range a.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		registration := registration
		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := registration.observer.OnEvent(ctx, event); err != nil {
				a.logger.Error("observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// GetObservers reports the currently registered observers.
func (a *Application) GetObservers() []ObserverInfo {
	a.omu.RLock()
	defer a.omu.RUnlock()

	info := make([]ObserverInfo, 0, len(a.observers))
	for _, registration := range a.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// emit builds and delivers a framework CloudEvent without blocking the
// emitting operation. An empty source defaults to the application ID.
func (a *Application) emit(ctx context.Context, eventType, source string, data map[string]any) {
	if source == "" {
		source = a.id
	}
	event := NewCloudEvent(eventType, source, data, nil)
	go func() {
		if err := a.NotifyObservers(ctx, event); err != nil {
			a.logger.Error("failed to notify observers", "event", eventType, "error", err)
		}
	}()
}
