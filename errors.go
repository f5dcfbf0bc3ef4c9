package arbor

import (
	"errors"
	"fmt"
)

// Framework errors. The six base sentinels cover the kernel's failure
// taxonomy; more specific sentinels wrap a base one so callers can match
// either level with errors.Is.
var (
	// Property access errors
	ErrUnknownProperty = errors.New("unknown property")
	ErrInvalidCall     = errors.New("invalid call")

	// Definition and configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Path and alias errors
	ErrInvalidArgument = errors.New("invalid argument")

	// Container errors
	ErrNotInstantiable = errors.New("not instantiable")

	// Route resolution errors
	ErrInvalidRoute = errors.New("unable to resolve the request")
)

// Derived sentinels
var (
	// ErrComponentNotFound is returned when a service locator or instance
	// reference names a component ID with no definition behind it.
	ErrComponentNotFound = fmt.Errorf("%w: component not found", ErrInvalidConfig)

	// ErrInvalidAlias is returned when an alias root has never been
	// registered.
	ErrInvalidAlias = fmt.Errorf("%w: invalid path alias", ErrInvalidArgument)

	// ErrInvalidDefinition is returned when a container or locator
	// definition has an unsupported shape.
	ErrInvalidDefinition = fmt.Errorf("%w: unsupported definition shape", ErrInvalidConfig)
)

// Application configuration errors
var (
	ErrAppIDMissing       = fmt.Errorf("%w: application configuration requires an \"id\" key", ErrInvalidConfig)
	ErrAppBasePathMissing = fmt.Errorf("%w: application configuration requires a \"basePath\" key", ErrInvalidConfig)
	ErrLoggerNil          = errors.New("logger is nil")
	ErrContainerNil       = errors.New("container is nil")
	ErrTypeRegistryNil    = errors.New("type registry is nil")
	ErrBusNil             = errors.New("event bus is nil")
)

// Config builder errors
var (
	ErrConfigFeederError = errors.New("config feeder error")
	ErrConfigSetupError  = errors.New("config setup error")
	ErrConfigNotPointer  = errors.New("config target must be a non-nil pointer")
	ErrConfigRequired    = errors.New("required config fields missing")
)

// Observer errors
var (
	ErrObserverNil = errors.New("observer is nil")
)
