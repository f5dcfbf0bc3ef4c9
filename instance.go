package arbor

import (
	"fmt"
	"reflect"
)

// Ref is a late-bound reference to a component or container entry by ID.
// Definitions use it where a dependency should be looked up at resolution
// time rather than captured eagerly. An optional reference resolves to nil
// instead of failing when the ID is unknown.
type Ref struct {
	ID       string
	Optional bool
}

// NewRef creates a required reference to id.
func NewRef(id string) *Ref {
	return &Ref{ID: id}
}

// NewOptionalRef creates a reference resolving to nil when id is unknown.
func NewOptionalRef(id string) *Ref {
	return &Ref{ID: id, Optional: true}
}

// Get resolves the reference against a service locator. A missing ID fails
// for required references and yields nil for optional ones.
func (r *Ref) Get(l *ServiceLocator) (any, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: resolving reference %q without a locator", ErrInvalidConfig, r.ID)
	}
	return l.Get(r.ID, !r.Optional)
}

// Ensure resolves reference into an instance, optionally checking it
// against iface, a pointer to an interface type such as (*Controller)(nil).
// Accepted reference shapes are a *Ref, a component ID string, a
// configuration map and a ready instance. A string or *Ref naming an ID
// with no definition behind it fails with ErrComponentNotFound; optional
// references resolve to nil instead.
func Ensure(reference any, iface any, c *Container) (any, error) {
	if reference == nil {
		return nil, fmt.Errorf("%w: nil reference", ErrInvalidConfig)
	}

	switch v := reference.(type) {
	case *Ref:
		obj, err := resolveRef(v, c)
		if err != nil || obj == nil {
			return obj, err
		}
		return checkInstanceType(obj, iface)

	case string:
		obj, err := resolveRef(&Ref{ID: v}, c)
		if err != nil || obj == nil {
			return obj, err
		}
		return checkInstanceType(obj, iface)

	case map[string]any:
		if c == nil {
			return nil, fmt.Errorf("%w: resolving a configuration without a container", ErrInvalidConfig)
		}
		obj, err := c.CreateObject(v)
		if err != nil {
			return nil, err
		}
		return checkInstanceType(obj, iface)

	default:
		return checkInstanceType(reference, iface)
	}
}

func resolveRef(r *Ref, c *Container) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: resolving reference %q without a container", ErrInvalidConfig, r.ID)
	}
	if !c.Has(r.ID) && !c.Types().Has(r.ID) {
		if r.Optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrComponentNotFound, r.ID)
	}
	obj, err := c.Get(r.ID)
	if err != nil {
		if r.Optional {
			return nil, nil
		}
		return nil, err
	}
	return obj, nil
}

func checkInstanceType(obj any, iface any) (any, error) {
	if iface == nil {
		return obj, nil
	}
	it := reflect.TypeOf(iface)
	if it == nil || it.Kind() != reflect.Pointer || it.Elem().Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: type constraint must be a pointer to an interface, got %T", ErrInvalidConfig, iface)
	}
	want := it.Elem()
	if !reflect.TypeOf(obj).Implements(want) {
		return nil, fmt.Errorf("%w: %T does not implement %s", ErrInvalidConfig, obj, want)
	}
	return obj, nil
}
