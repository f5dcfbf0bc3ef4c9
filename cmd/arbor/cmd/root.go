package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, overridden at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command for the arbor CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arbor",
		Short: "Arbor CLI - tools for working with the Arbor framework",
		Long: `Arbor CLI provides tools for working with the Arbor framework.
It generates controllers, modules and configuration skeletons.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewVersionCommand())
	cmd.AddCommand(NewGenerateCommand())

	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// NewGenerateCommand creates the generate command grouping the code
// generators.
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate framework components",
		Long:  `Generate controllers and modules for an Arbor application.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewGenerateControllerCommand())
	cmd.AddCommand(NewGenerateModuleCommand())

	return cmd
}

// PrintVersion formats the version line.
func PrintVersion() string {
	return fmt.Sprintf("Arbor CLI v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
