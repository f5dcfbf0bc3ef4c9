package feeders

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// EnvFeeder populates struct fields carrying `env:"NAME"` tags from the
// process environment. An optional prefix and suffix are joined onto every
// variable name with underscores, so a prefix "APP" turns `env:"PORT"`
// into APP_PORT. Nested structs are walked; fields without an env tag are
// left alone.
type EnvFeeder struct {
	Prefix string
	Suffix string
}

// NewEnvFeeder creates a feeder reading unprefixed environment variables.
func NewEnvFeeder() EnvFeeder {
	return EnvFeeder{}
}

// NewAffixedEnvFeeder creates a feeder wrapping every variable name with
// the given prefix and suffix.
func NewAffixedEnvFeeder(prefix, suffix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed populates structure from the environment.
func (f EnvFeeder) Feed(structure any) error {
	v := reflect.ValueOf(structure)
	if structure == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrInvalidTarget
	}
	if v.Elem().Kind() != reflect.Struct {
		return wrapStructureError(structure)
	}
	return f.feedStruct(v.Elem(), func(name string) (string, bool) {
		return os.LookupEnv(name)
	})
}

// feedStruct walks fields, resolving tagged ones through lookup.
func (f EnvFeeder) feedStruct(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := f.feedStruct(field, lookup); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Ptr && !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			if err := f.feedStruct(field.Elem(), lookup); err != nil {
				return err
			}
			continue
		}

		tag, ok := t.Field(i).Tag.Lookup("env")
		if !ok || tag == "" {
			continue
		}
		value, ok := lookup(f.variableName(tag))
		if !ok || value == "" {
			continue
		}
		if err := setFieldFromString(field, value); err != nil {
			return err
		}
	}
	return nil
}

func (f EnvFeeder) variableName(tag string) string {
	name := strings.ToUpper(tag)
	if f.Prefix != "" {
		name = strings.ToUpper(f.Prefix) + "_" + name
	}
	if f.Suffix != "" {
		name = name + "_" + strings.ToUpper(f.Suffix)
	}
	return name
}

// setFieldFromString converts value to the field's type and assigns it.
// Durations go through time.ParseDuration, everything else through
// golobby/cast.
func setFieldFromString(field reflect.Value, value string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return wrapConvertError(value, field.Type().String(), err)
		}
		field.SetInt(int64(d))
		return nil
	}
	if field.Kind() == reflect.String {
		field.SetString(value)
		return nil
	}

	converted, err := cast.FromType(value, field.Type())
	if err != nil {
		return wrapConvertError(value, field.Type().String(), err)
	}
	field.Set(reflect.ValueOf(converted))
	return nil
}
