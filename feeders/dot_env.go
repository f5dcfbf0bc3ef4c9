package feeders

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
)

// DotEnvFeeder reads a .env file and populates struct fields carrying
// `env:"NAME"` tags from it. A variable set in the process environment
// wins over the file, matching the usual dotenv precedence.
type DotEnvFeeder struct {
	Path string
}

// NewDotEnvFeeder creates a feeder reading the .env file at path.
func NewDotEnvFeeder(path string) *DotEnvFeeder {
	return &DotEnvFeeder{Path: path}
}

// Feed parses the file and populates structure.
func (f *DotEnvFeeder) Feed(structure any) error {
	v := reflect.ValueOf(structure)
	if structure == nil || v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrInvalidTarget
	}
	if v.Elem().Kind() != reflect.Struct {
		return wrapStructureError(structure)
	}

	vars, err := f.parse()
	if err != nil {
		return err
	}

	env := EnvFeeder{}
	return env.feedStruct(v.Elem(), func(name string) (string, bool) {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value, true
		}
		value, ok := vars[name]
		return value, ok
	})
}

// parse reads the file into a map. Blank lines and #-comments are skipped,
// an optional "export " prefix is dropped and single or double quotes
// around values are stripped.
func (f *DotEnvFeeder) parse() (map[string]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening .env file: %w", err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %s:%d", ErrInvalidLineFormat, f.Path, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%w: %s:%d", ErrInvalidLineFormat, f.Path, lineNo)
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}
	return vars, nil
}
