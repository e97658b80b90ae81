// Package cli implements the dispatchctl operator commands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the dispatchctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Operator tooling for the truck dispatch service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newOptimizeCommand())
	root.AddCommand(newJobsCommand(defaultJobsFactory))
	root.AddCommand(newSchemaCommand())
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error { return NewRootCommand().Execute() }
