package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for taskforge
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskforge",
		Short: "Agentic task execution engine",
		Long: `Taskforge turns a request or a plan file into a prioritized task list and
drives each task through a sandboxed bash executor.

Privileged operations (file writes, documentation lookups) are brokered back
to you for confirmation. Every execution is validated deterministically and
retried with targeted feedback until it passes or runs out of attempts.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewTodosCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
