package arbor

import (
	"fmt"
	"reflect"
)

// NamespaceKey is the configuration-map key naming the namespace to
// instantiate. The remaining keys of the map configure the instance.
const NamespaceKey = "namespace"

// Factory builds an instance on demand. The container passes itself so the
// factory can resolve its own dependencies, plus the merged positional
// arguments and property bag of the request.
type Factory func(c *Container, args []any, props map[string]any) (any, error)

// definitionKind tags the four definition shapes a container or locator
// accepts.
type definitionKind uint8

const (
	defNamespace definitionKind = iota + 1 // bare namespace string
	defConfig                              // map carrying a namespace plus properties
	defFactory                             // Factory callable
	defInstance                            // concrete instance stored verbatim
)

// definition is the normalized form of whatever shape was registered.
// Exactly the fields of its kind are set.
type definition struct {
	kind      definitionKind
	namespace string         // defNamespace, defConfig
	props     map[string]any // defConfig
	args      []any          // registered constructor arguments
	factory   Factory        // defFactory
	instance  any            // defInstance
}

// normalizeDefinition converts a registered shape into its tagged form.
// Supported shapes are a namespace string, a configuration map with a
// "namespace" key, a Factory (or a func with the Factory signature) and a
// concrete instance. Anything else fails with ErrInvalidDefinition.
//
// A nil def stands for the key itself: the id must then be a namespace.
func normalizeDefinition(id string, def any, args []any) (definition, error) {
	switch v := def.(type) {
	case nil:
		if !IsNamespace(id) {
			return definition{}, fmt.Errorf("%w: %q registered without a definition and is not a namespace", ErrInvalidDefinition, id)
		}
		return definition{kind: defNamespace, namespace: id, args: args}, nil

	case string:
		if !IsNamespace(v) {
			return definition{}, fmt.Errorf("%w: %q is not a namespace", ErrInvalidDefinition, v)
		}
		return definition{kind: defNamespace, namespace: v, args: args}, nil

	case map[string]any:
		namespace, props, err := splitConfigMap(id, v)
		if err != nil {
			return definition{}, err
		}
		return definition{kind: defConfig, namespace: namespace, props: props, args: args}, nil

	case Factory:
		return definition{kind: defFactory, factory: v, args: args}, nil

	case func(c *Container, args []any, props map[string]any) (any, error):
		return definition{kind: defFactory, factory: v, args: args}, nil

	default:
		if isValidInstance(def) {
			return definition{kind: defInstance, instance: def}, nil
		}
		return definition{}, fmt.Errorf("%w: %T for %q", ErrInvalidDefinition, def, id)
	}
}

// splitConfigMap extracts the required namespace from a configuration map,
// leaving the remaining keys as the property bag.
func splitConfigMap(id string, config map[string]any) (string, map[string]any, error) {
	raw, ok := config[NamespaceKey]
	if !ok {
		return "", nil, fmt.Errorf("%w: configuration for %q carries no %q key", ErrInvalidDefinition, id, NamespaceKey)
	}
	namespace, ok := raw.(string)
	if !ok || !IsNamespace(namespace) {
		return "", nil, fmt.Errorf("%w: %q key of %q is not a namespace", ErrInvalidDefinition, NamespaceKey, id)
	}
	props := make(map[string]any, len(config))
	for k, v := range config {
		if k == NamespaceKey {
			continue
		}
		props[k] = v
	}
	return namespace, props, nil
}

// isValidInstance reports whether v can be stored and handed out as a
// component instance: a pointer to a struct, or anything implementing
// PropertyAccessor. Scalars and other plain values are not components.
func isValidInstance(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(PropertyAccessor); ok {
		return true
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct
}

// splitArgs applies the constructor-argument convention: a trailing
// map[string]any is the named-parameter bag, everything before it is
// positional.
func splitArgs(args []any) ([]any, map[string]any) {
	if len(args) == 0 {
		return nil, nil
	}
	if props, ok := args[len(args)-1].(map[string]any); ok {
		return args[:len(args)-1], props
	}
	return args, nil
}

// mergeArgs overlays caller-supplied positional arguments on registered
// ones, index by index. The longer list sets the length.
func mergeArgs(registered, supplied []any) []any {
	if len(supplied) == 0 {
		return registered
	}
	if len(registered) == 0 {
		return supplied
	}
	n := max(len(registered), len(supplied))
	merged := make([]any, n)
	copy(merged, registered)
	for i, v := range supplied {
		merged[i] = v
	}
	return merged
}

// mergeProps deep-merges property bags: base entries are kept unless the
// overlay carries the key, and nested maps merge recursively. Everything
// else the overlay wins.
func mergeProps(base, overlay map[string]any) map[string]any {
	if len(base) == 0 {
		return overlay
	}
	if len(overlay) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		bm, bok := merged[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			merged[k] = mergeProps(bm, om)
			continue
		}
		merged[k] = v
	}
	return merged
}
