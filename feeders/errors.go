// Package feeders provides configuration sources for the arbor Config
// builder: process environment, .env files and JSON, YAML and TOML
// documents. File feeders also implement FeedKey for named sections.
package feeders

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStructureType is returned when a feeder needs a pointer
	// to a struct and got something else.
	ErrInvalidStructureType = errors.New("expected pointer to struct")

	// ErrInvalidTarget is returned for nil or non-pointer feed targets.
	ErrInvalidTarget = errors.New("feed target must be a non-nil pointer")

	// ErrCannotConvert is returned when an environment value does not
	// convert to the field's type.
	ErrCannotConvert = errors.New("cannot convert value to field type")

	// ErrInvalidLineFormat is returned for malformed .env lines.
	ErrInvalidLineFormat = errors.New("invalid .env line format")

	// ErrSectionNotFound is returned by FeedKey when the document has no
	// such top-level section.
	ErrSectionNotFound = errors.New("config section not found")
)

func wrapStructureError(got any) error {
	return fmt.Errorf("%w, got %T", ErrInvalidStructureType, got)
}

func wrapConvertError(value, fieldType string, err error) error {
	return fmt.Errorf("%w: %q as %s: %w", ErrCannotConvert, value, fieldType, err)
}
