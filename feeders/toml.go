package feeders

import (
	"fmt"
	"os"
	"reflect"

	"github.com/BurntSushi/toml"
)

// TomlFeeder populates targets from a TOML document. Struct targets decode
// with toml tags; *map[string]any targets deep-merge the document.
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a feeder reading the TOML document at path.
func NewTomlFeeder(path string) *TomlFeeder {
	return &TomlFeeder{Path: path}
}

// Feed decodes the document into structure.
func (f *TomlFeeder) Feed(structure any) error {
	v := reflect.ValueOf(structure)
	if structure == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrInvalidTarget
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("reading TOML config: %w", err)
	}

	if bag, ok := structure.(*map[string]any); ok {
		doc := make(map[string]any)
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing TOML config %s: %w", f.Path, err)
		}
		if *bag == nil {
			*bag = make(map[string]any)
		}
		mergeMaps(*bag, doc)
		return nil
	}

	if err := toml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("parsing TOML config %s: %w", f.Path, err)
	}
	return nil
}

// FeedKey decodes the named top-level table of the document into target.
func (f *TomlFeeder) FeedKey(key string, target any) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("reading TOML config: %w", err)
	}

	doc := make(map[string]any)
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing TOML config %s: %w", f.Path, err)
	}
	section, ok := doc[key]
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrSectionNotFound, key, f.Path)
	}

	raw, err := toml.Marshal(section)
	if err != nil {
		return fmt.Errorf("re-encoding TOML table %q: %w", key, err)
	}
	if err := toml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("parsing TOML table %q: %w", key, err)
	}
	return nil
}
