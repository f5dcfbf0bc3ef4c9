package arbor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AliasTable maps @-prefixed names to paths. Aliases registered under the
// same root resolve by longest prefix, so "@app/runtime" can point
// somewhere other than "@app" while both stay registered. Each Application
// owns its table; nothing is process-wide.
//
// An AliasTable is safe for concurrent use.
type AliasTable struct {
	mu    sync.RWMutex
	roots map[string]map[string]string
}

// NewAliasTable creates an empty alias table.
func NewAliasTable() *AliasTable {
	return &AliasTable{roots: make(map[string]map[string]string)}
}

// Set registers an alias for a path. A missing @ prefix is added to the
// alias. A path that is itself an alias is resolved first, so chains stay
// flat. Trailing slashes on the path are dropped.
func (t *AliasTable) Set(alias, path string) error {
	alias = atPrefixed(alias)
	root := aliasRoot(alias)
	if root == "@" {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	if strings.HasPrefix(path, "@") {
		resolved, err := t.Get(path)
		if err != nil {
			return err
		}
		path = resolved
	} else {
		path = strings.TrimRight(path, "/")
	}
	t.mu.Lock()
	byAlias := t.roots[root]
	if byAlias == nil {
		byAlias = make(map[string]string)
		t.roots[root] = byAlias
	}
	byAlias[alias] = path
	t.mu.Unlock()
	return nil
}

// Remove unregisters an alias. Unknown aliases are a no-op.
func (t *AliasTable) Remove(alias string) {
	alias = atPrefixed(alias)
	root := aliasRoot(alias)
	t.mu.Lock()
	if byAlias := t.roots[root]; byAlias != nil {
		delete(byAlias, alias)
		if len(byAlias) == 0 {
			delete(t.roots, root)
		}
	}
	t.mu.Unlock()
}

// Get translates an alias into the path it stands for, substituting the
// longest registered prefix. Strings without the @ prefix are no aliases
// and pass through unchanged. An alias whose root was never registered
// fails with ErrInvalidAlias.
func (t *AliasTable) Get(alias string) (string, error) {
	if !strings.HasPrefix(alias, "@") {
		return alias, nil
	}
	root := aliasRoot(alias)

	t.mu.RLock()
	defer t.mu.RUnlock()
	byAlias := t.roots[root]
	if byAlias == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	for _, name := range sortedByLengthDesc(byAlias) {
		if alias == name || strings.HasPrefix(alias, name+"/") {
			return byAlias[name] + alias[len(name):], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
}

// Root returns the registered root of an alias and whether one exists.
func (t *AliasTable) Root(alias string) (string, bool) {
	if !strings.HasPrefix(alias, "@") {
		return "", false
	}
	root := aliasRoot(alias)
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.roots[root]
	return root, ok
}

func atPrefixed(alias string) string {
	if strings.HasPrefix(alias, "@") {
		return alias
	}
	return "@" + alias
}

func aliasRoot(alias string) string {
	if i := strings.Index(alias, "/"); i >= 0 {
		return alias[:i]
	}
	return alias
}

func sortedByLengthDesc(byAlias map[string]string) []string {
	names := make([]string, 0, len(byAlias))
	for name := range byAlias {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}
