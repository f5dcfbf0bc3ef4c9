package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

// ControllerOptions contains the configuration for generating a controller.
type ControllerOptions struct {
	// Name is the controller ID in route form, e.g. "user-profile".
	Name string

	// TypeName is derived from Name, e.g. "UserProfileController".
	TypeName string

	// Package is the Go package the file belongs to.
	Package string

	// Actions lists the action IDs to register.
	Actions []string

	OutputDir string
	WithTest  bool
}

// NewGenerateControllerCommand creates a command for generating controllers.
func NewGenerateControllerCommand() *cobra.Command {
	var (
		name      string
		pkg       string
		outputDir string
		actions   []string
		withTest  bool
	)

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Generate a controller",
		Long:  `Generate a controller type with registered actions and an optional test file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			options := &ControllerOptions{
				Name:      name,
				Package:   pkg,
				Actions:   actions,
				OutputDir: outputDir,
				WithTest:  withTest,
			}
			files, err := GenerateController(options)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Controller ID in route form, e.g. user-profile")
	cmd.Flags().StringVarP(&pkg, "package", "p", "controllers", "Go package for the generated file")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory where the controller will be generated")
	cmd.Flags().StringSliceVarP(&actions, "actions", "a", []string{"index"}, "Action IDs to register")
	cmd.Flags().BoolVar(&withTest, "tests", true, "Generate a test file alongside the controller")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// GenerateController writes the controller files and returns their paths.
func GenerateController(options *ControllerOptions) ([]string, error) {
	if options.Name == "" {
		return nil, fmt.Errorf("controller name is required")
	}
	options.TypeName = pascalIdent(options.Name) + "Controller"
	if options.Package == "" {
		options.Package = "controllers"
	}
	if len(options.Actions) == 0 {
		options.Actions = []string{"index"}
	}

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	base := snakeIdent(options.Name) + "_controller"
	path := filepath.Join(options.OutputDir, base+".go")
	if err := renderFile("controller", controllerTmpl, path, options); err != nil {
		return nil, err
	}
	files := []string{path}

	if options.WithTest {
		testPath := filepath.Join(options.OutputDir, base+"_test.go")
		if err := renderFile("controllerTest", controllerTestTmpl, testPath, options); err != nil {
			return nil, err
		}
		files = append(files, testPath)
	}
	return files, nil
}

// renderFile renders one template into path.
func renderFile(name, text, path string, data any) error {
	tmpl, err := template.New(name).Funcs(template.FuncMap{"pascal": pascalIdent}).Parse(text)
	if err != nil {
		return fmt.Errorf("parsing %s template: %w", name, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()
	if err := tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// pascalIdent converts a route-form name to an exported Go identifier,
// "user-profile" to "UserProfile".
func pascalIdent(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '/'
	})
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// snakeIdent converts a route-form name to a file name segment.
func snakeIdent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '/':
			return '_'
		}
		return r
	}, strings.ToLower(s))
}

const controllerTmpl = `package {{.Package}}

import (
	"context"

	"github.com/arborframe/arbor"
)

// {{.TypeName}} handles the "{{.Name}}" routes.
type {{.TypeName}} struct {
	arbor.BaseController
}

// New{{.TypeName}} is the registry constructor for {{.TypeName}}.
func New{{.TypeName}}(args []any, props map[string]any) (*{{.TypeName}}, error) {
	id := "{{.Name}}"
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			id = s
		}
	}
	var module *arbor.Module
	if len(args) > 1 {
		module, _ = args[1].(*arbor.Module)
	}

	c := &{{.TypeName}}{}
	c.Init(id, module, props)
{{- range .Actions}}
	c.RegisterAction("{{.}}", c.{{pascal .}})
{{- end}}
	return c, nil
}
{{range .Actions}}
// {{pascal .}} implements the "{{.}}" action.
func (c *{{$.TypeName}}) {{pascal .}}(ctx context.Context, params map[string]any) (any, error) {
	return nil, nil
}
{{end}}`

const controllerTestTmpl = `package {{.Package}}

import (
	"context"
	"testing"
)

func Test{{.TypeName}}Actions(t *testing.T) {
	c, err := New{{.TypeName}}([]any{"{{.Name}}"}, nil)
	if err != nil {
		t.Fatalf("constructing controller: %v", err)
	}
{{range .Actions}}
	if _, err := c.RunAction(context.Background(), "{{.}}", nil); err != nil {
		t.Errorf("running action {{.}}: %v", err)
	}
{{end}}}
`
