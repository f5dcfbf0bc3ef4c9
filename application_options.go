package arbor

// Option configures an application at construction time. Options run
// before the configuration map is applied, so injected collaborators are
// visible to component and module definitions.
type Option func(*Application) error

// WithLogger replaces the default no-op logger.
func WithLogger(logger Logger) Option {
	return func(a *Application) error {
		if logger == nil {
			return ErrLoggerNil
		}
		a.logger = logger
		return nil
	}
}

// WithContainer makes the application use an existing container, sharing
// its definitions, singletons and type registry.
func WithContainer(c *Container) Option {
	return func(a *Application) error {
		if c == nil {
			return ErrContainerNil
		}
		a.initLocator(c)
		return nil
	}
}

// WithTypeRegistry makes the application's container resolve namespaces
// against an existing registry. Ignored when WithContainer is also given,
// since the container carries its own registry.
func WithTypeRegistry(types *TypeRegistry) Option {
	return func(a *Application) error {
		if types == nil {
			return ErrTypeRegistryNil
		}
		if a.Container() == nil {
			a.initLocator(NewContainer(types))
		}
		return nil
	}
}

// WithBus replaces the class-level event registry, letting applications
// share type-keyed handlers.
func WithBus(bus *Bus) Option {
	return func(a *Application) error {
		if bus == nil {
			return ErrBusNil
		}
		a.bus = bus
		return nil
	}
}

// WithVersion sets the application version ahead of configuration; a
// "version" key in the configuration map still wins.
func WithVersion(version string) Option {
	return func(a *Application) error {
		a.version = version
		return nil
	}
}
