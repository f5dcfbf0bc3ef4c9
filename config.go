package arbor

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// Struct tag keys recognized by the configuration pipeline.
const (
	tagDefault  = "default"
	tagRequired = "required"
)

// ConfigProvider supplies a configuration object to whoever loads it.
type ConfigProvider interface {
	// GetConfig returns the configuration object
	GetConfig() any
}

// StdConfigProvider wraps a fixed configuration value.
type StdConfigProvider struct {
	cfg any
}

// NewStdConfigProvider creates a provider returning cfg as-is.
func NewStdConfigProvider(cfg any) *StdConfigProvider {
	return &StdConfigProvider{cfg: cfg}
}

// GetConfig returns the configuration object
func (s *StdConfigProvider) GetConfig() any {
	return s.cfg
}

// Feeder populates a configuration target from one source. Targets are
// non-nil pointers, usually to a struct or to a map[string]any.
type Feeder interface {
	Feed(structure any) error
}

// ComplexFeeder additionally feeds a keyed section of its source into a
// target, for sources holding several named configuration blocks.
type ComplexFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// ConfigSetup is implemented by configuration structs wanting a hook after
// feeding and validation.
type ConfigSetup interface {
	Setup() error
}

// ConfigValidator is implemented by configuration structs carrying custom
// validation beyond required-field checking. Validate runs after defaults
// are applied.
type ConfigValidator interface {
	Validate() error
}

// Config combines feeders and targets into one load: every feeder feeds
// every plain target, ComplexFeeders feed keyed targets by section, then
// defaults, required checks and the optional Setup hook run per target.
type Config struct {
	feeders []Feeder
	targets []any
	keyed   map[string]any
}

// NewConfig creates an empty configuration builder.
func NewConfig() *Config {
	return &Config{keyed: make(map[string]any)}
}

// AddFeeder appends a feeder. Feeders run in registration order, later
// ones overwriting earlier values.
func (c *Config) AddFeeder(f Feeder) *Config {
	c.feeders = append(c.feeders, f)
	return c
}

// AddStruct adds a plain target fed by every feeder.
func (c *Config) AddStruct(target any) *Config {
	c.targets = append(c.targets, target)
	return c
}

// AddStructKey adds a target fed from the named section of every
// ComplexFeeder.
func (c *Config) AddStructKey(key string, target any) *Config {
	c.keyed[key] = target
	return c
}

// Feed loads every target and validates it.
func (c *Config) Feed() error {
	for _, target := range c.targets {
		if err := checkConfigTarget(target); err != nil {
			return err
		}
		for _, f := range c.feeders {
			if err := f.Feed(target); err != nil {
				return fmt.Errorf("%w: %w", ErrConfigFeederError, err)
			}
		}
		if err := c.finalize(target, ""); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(c.keyed))
	for key := range c.keyed {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		target := c.keyed[key]
		if err := checkConfigTarget(target); err != nil {
			return err
		}
		for _, f := range c.feeders {
			cf, ok := f.(ComplexFeeder)
			if !ok {
				continue
			}
			if err := cf.FeedKey(key, target); err != nil {
				return fmt.Errorf("%w: section %q: %w", ErrConfigFeederError, key, err)
			}
		}
		if err := c.finalize(target, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) finalize(target any, key string) error {
	label := "config"
	if key != "" {
		label = fmt.Sprintf("config section %q", key)
	}
	if err := ValidateConfig(target); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if setup, ok := target.(ConfigSetup); ok {
		if err := setup.Setup(); err != nil {
			return fmt.Errorf("%w for %s: %w", ErrConfigSetupError, label, err)
		}
	}
	return nil
}

func checkConfigTarget(target any) error {
	v := reflect.ValueOf(target)
	if target == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrConfigNotPointer
	}
	return nil
}

// ValidateConfig applies `default` tags to zero struct fields, errors on
// zero `required:"true"` fields and runs the target's ConfigValidator hook
// if it has one. Non-struct targets such as maps skip the tag phases.
func ValidateConfig(target any) error {
	if err := checkConfigTarget(target); err != nil {
		return err
	}

	v := reflect.ValueOf(target).Elem()
	if v.Kind() == reflect.Struct {
		if err := applyStructDefaults(v); err != nil {
			return err
		}
		var missing []string
		collectMissingRequired(v, "", &missing)
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrConfigRequired, strings.Join(missing, ", "))
		}
	}

	if validator, ok := target.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

func applyStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyStructDefaults(field); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Ptr && !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			if err := applyStructDefaults(field.Elem()); err != nil {
				return err
			}
			continue
		}

		def, ok := t.Field(i).Tag.Lookup(tagDefault)
		if !ok || !isZeroValue(field) {
			continue
		}
		if err := setFromString(field, def); err != nil {
			return fmt.Errorf("default for field %s: %w", t.Field(i).Name, err)
		}
	}
	return nil
}

func collectMissingRequired(v reflect.Value, prefix string, missing *[]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		name := t.Field(i).Name
		if prefix != "" {
			name = prefix + "." + name
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			collectMissingRequired(field, name, missing)
			continue
		}
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				collectMissingRequired(field.Elem(), name, missing)
			} else if t.Field(i).Tag.Get(tagRequired) == "true" {
				*missing = append(*missing, name)
			}
			continue
		}

		if t.Field(i).Tag.Get(tagRequired) == "true" && isZeroValue(field) {
			*missing = append(*missing, name)
		}
	}
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	default:
		return false
	}
}

// setFromString converts a string to the field's type and assigns it.
// Durations and string slices are handled directly; everything else goes
// through golobby/cast.
func setFromString(field reflect.Value, s string) error {
	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	case field.Kind() == reflect.String:
		field.SetString(s)
		return nil
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		parts := strings.Split(s, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			out = reflect.Append(out, reflect.ValueOf(strings.TrimSpace(p)))
		}
		field.Set(out)
		return nil
	}

	converted, err := cast.FromType(s, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert %q to %v: %w", s, field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted))
	return nil
}
