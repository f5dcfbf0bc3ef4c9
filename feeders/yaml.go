package feeders

import (
	"fmt"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"
)

// YamlFeeder populates targets from a YAML document. Struct targets decode
// with yaml tags; *map[string]any targets deep-merge the document.
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a feeder reading the YAML document at path.
func NewYamlFeeder(path string) *YamlFeeder {
	return &YamlFeeder{Path: path}
}

// Feed decodes the document into structure.
func (f *YamlFeeder) Feed(structure any) error {
	v := reflect.ValueOf(structure)
	if structure == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrInvalidTarget
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("reading YAML config: %w", err)
	}

	if bag, ok := structure.(*map[string]any); ok {
		doc := make(map[string]any)
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", f.Path, err)
		}
		if *bag == nil {
			*bag = make(map[string]any)
		}
		mergeMaps(*bag, doc)
		return nil
	}

	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("parsing YAML config %s: %w", f.Path, err)
	}
	return nil
}

// FeedKey decodes the named top-level section of the document into target.
func (f *YamlFeeder) FeedKey(key string, target any) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("reading YAML config: %w", err)
	}

	doc := make(map[string]any)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing YAML config %s: %w", f.Path, err)
	}
	section, ok := doc[key]
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrSectionNotFound, key, f.Path)
	}

	raw, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("re-encoding YAML section %q: %w", key, err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("parsing YAML section %q: %w", key, err)
	}
	return nil
}
