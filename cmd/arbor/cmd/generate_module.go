package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// ModuleOptions contains the configuration for generating a module.
type ModuleOptions struct {
	// Name is the module ID, e.g. "admin".
	Name string

	// TypeName is derived from Name, e.g. "AdminModule".
	TypeName string

	// Package is the Go package directory created under OutputDir.
	Package string

	OutputDir      string
	WithController bool
}

// NewGenerateModuleCommand creates a command for generating modules.
func NewGenerateModuleCommand() *cobra.Command {
	var (
		name           string
		pkg            string
		outputDir      string
		withController bool
	)

	cmd := &cobra.Command{
		Use:   "module",
		Short: "Generate an application module",
		Long: `Generate an application module with its registry constructor, a YAML
configuration skeleton and optionally a starter controller.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			options := &ModuleOptions{
				Name:           name,
				Package:        pkg,
				OutputDir:      outputDir,
				WithController: withController,
			}
			files, err := GenerateModule(options)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Module ID, e.g. admin")
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "Go package name, defaults to the module ID")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory where the module will be generated")
	cmd.Flags().BoolVar(&withController, "with-controller", true, "Generate a starter controller under controllers/")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// GenerateModule writes the module files and returns their paths.
func GenerateModule(options *ModuleOptions) ([]string, error) {
	if options.Name == "" {
		return nil, fmt.Errorf("module name is required")
	}
	options.TypeName = pascalIdent(options.Name) + "Module"
	if options.Package == "" {
		options.Package = snakeIdent(options.Name)
	}

	dir := filepath.Join(options.OutputDir, options.Package)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	modulePath := filepath.Join(dir, "module.go")
	if err := renderFile("module", moduleTmpl, modulePath, options); err != nil {
		return nil, err
	}
	configPath := filepath.Join(dir, options.Package+".yaml")
	if err := renderFile("moduleConfig", moduleConfigTmpl, configPath, options); err != nil {
		return nil, err
	}
	files := []string{modulePath, configPath}

	if options.WithController {
		ctrl, err := GenerateController(&ControllerOptions{
			Name:      "site",
			Package:   "controllers",
			Actions:   []string{"index"},
			OutputDir: filepath.Join(dir, "controllers"),
			WithTest:  true,
		})
		if err != nil {
			return nil, err
		}
		files = append(files, ctrl...)
	}
	return files, nil
}

const moduleTmpl = `package {{.Package}}

import (
	"github.com/arborframe/arbor"
)

// {{.TypeName}} is the "{{.Name}}" application module.
type {{.TypeName}} struct {
	arbor.Module
}

// New{{.TypeName}} is the registry constructor for {{.TypeName}}.
func New{{.TypeName}}(args []any, props map[string]any) (*{{.TypeName}}, error) {
	id := "{{.Name}}"
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			id = s
		}
	}
	var parent *arbor.Module
	if len(args) > 1 {
		parent, _ = args[1].(*arbor.Module)
	}

	m := &{{.TypeName}}{}
	if err := m.Init(id, parent, props); err != nil {
		return nil, err
	}
	return m, nil
}
`

const moduleConfigTmpl = `# Merge into the application configuration to mount the {{.Name}} module.
modules:
  {{.Name}}:
    controllerNamespace: app/modules/{{.Package}}/controllers
    defaultRoute: site
    params: {}
`
