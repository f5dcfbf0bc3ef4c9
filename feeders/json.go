package feeders

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
)

// JSONFeeder populates targets from a JSON document. Struct targets decode
// with the usual json tags; *map[string]any targets deep-merge the
// document into the map, which is how application configuration bags are
// assembled from several files.
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a feeder reading the JSON document at path.
func NewJSONFeeder(path string) *JSONFeeder {
	return &JSONFeeder{Path: path}
}

// Feed decodes the document into structure.
func (f *JSONFeeder) Feed(structure any) error {
	v := reflect.ValueOf(structure)
	if structure == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrInvalidTarget
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("reading JSON config: %w", err)
	}

	if bag, ok := structure.(*map[string]any); ok {
		doc := make(map[string]any)
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", f.Path, err)
		}
		if *bag == nil {
			*bag = make(map[string]any)
		}
		mergeMaps(*bag, doc)
		return nil
	}

	if err := json.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("parsing JSON config %s: %w", f.Path, err)
	}
	return nil
}

// FeedKey decodes the named top-level section of the document into target.
func (f *JSONFeeder) FeedKey(key string, target any) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("reading JSON config: %w", err)
	}

	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing JSON config %s: %w", f.Path, err)
	}
	section, ok := doc[key]
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrSectionNotFound, key, f.Path)
	}
	if err := json.Unmarshal(section, target); err != nil {
		return fmt.Errorf("parsing JSON section %q: %w", key, err)
	}
	return nil
}
