package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/taskforge/internal/history"
	"github.com/harrison/taskforge/internal/models"
)

// NewHistoryCommand creates the 'taskforge history' parent command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect execution history",
		Long: `Commands for querying the recorded execution attempts.

Every task attempt is stored in a SQLite database together with its verdict,
validator feedback and written files, so recurring failure patterns can be
spotted across runs.`,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .taskforge/config.yaml)")

	cmd.AddCommand(newHistoryRecentCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// openHistory opens the configured history database.
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadAndMergeConfig(cmd)
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.History.DBPath)
}

func newHistoryRecentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent failed attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			failures, err := hs.RecentFailures(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to query history: %w", err)
			}
			if len(failures) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed attempts recorded.")
				return nil
			}
			for _, a := range failures {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  attempt %d  %s\n",
					a.CreatedAt.Format(time.DateTime), a.Attempt, a.TaskContent)
				if a.Feedback != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", a.Feedback)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, "Maximum number of attempts to show")
	return cmd
}

func newHistoryStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <task-id>",
		Short: "Show attempt statistics for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			stats, err := hs.Stats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to query history: %w", err)
			}
			if stats.TotalAttempts == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No attempts recorded for task %s.\n", args[0])
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Attempts: %d\n", stats.TotalAttempts)
			fmt.Fprintf(cmd.OutOrStdout(), "Passed:   %d\n", stats.Passed)
			fmt.Fprintf(cmd.OutOrStdout(), "Failed:   %d\n", stats.Failed)
			if len(stats.CommonPatterns) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Failure patterns: %s\n", strings.Join(stats.CommonPatterns, ", "))
			}

			attempts, err := hs.Attempts(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to query history: %w", err)
			}
			for _, a := range attempts {
				marker := "✗"
				if a.Verdict == models.ValidationPassed {
					marker = "✓"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s attempt %d (%s)\n",
					marker, a.Attempt, a.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete attempts older than a retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			removed, err := hs.Prune(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("failed to prune history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d attempt(s) older than %d day(s).\n", removed, days)
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "Retention window in days")
	return cmd
}
