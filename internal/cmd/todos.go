package cmd

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/taskforge/internal/models"
	"github.com/harrison/taskforge/internal/store"
)

// NewTodosCommand creates the 'taskforge todos' parent command
func NewTodosCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "Manage the task list",
		Long: `Commands for inspecting and editing the persisted task list.

The task list lives in .taskforge/todos.json and survives between runs, so
a run interrupted halfway can be resumed and tasks can be added or cancelled
from outside an execution.`,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .taskforge/config.yaml)")

	cmd.AddCommand(newTodosListCommand())
	cmd.AddCommand(newTodosAddCommand())
	cmd.AddCommand(newTodosDoneCommand())
	cmd.AddCommand(newTodosCancelCommand())
	cmd.AddCommand(newTodosClearCommand())

	return cmd
}

// openStore loads the task store configured for this invocation.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadAndMergeConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.New(cfg.StorePath, store.WithWarnFunc(func(format string, args ...interface{}) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: "+format+"\n", args...)
	})), nil
}

func newTodosListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}

			tasks := st.All()
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}

			sort.SliceStable(tasks, func(i, j int) bool {
				return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
			})
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-11s [%s] %s\n",
					t.ID[:8], statusLabel(t.Status), t.Priority, t.Content)
			}

			counts := st.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d pending, %d in progress, %d completed, %d cancelled\n",
				counts[models.StatusPending], counts[models.StatusInProgress],
				counts[models.StatusCompleted], counts[models.StatusCancelled])
			return nil
		},
	}
	return cmd
}

func newTodosAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priorityStr, _ := cmd.Flags().GetString("priority")
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			task := st.Add(args[0], models.ParsePriority(priorityStr))
			fmt.Fprintf(cmd.OutOrStdout(), "Added task %s: [%s] %s\n", task.ID[:8], task.Priority, task.Content)
			return nil
		},
	}
	cmd.Flags().String("priority", "medium", "Task priority (high, medium, low)")
	return cmd
}

func newTodosDoneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			task, err := resolveTask(st, args[0])
			if err != nil {
				return err
			}
			completed := models.StatusCompleted
			if _, err := st.Update(task.ID, store.UpdateFields{Status: &completed}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed: %s\n", task.Content)
			return nil
		},
	}
}

func newTodosCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			task, err := resolveTask(st, args[0])
			if err != nil {
				return err
			}
			if _, err := st.Cancel(task.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled: %s\n", task.Content)
			return nil
		},
	}
}

func newTodosClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			n := len(st.All())
			st.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s).\n", n)
			return nil
		},
	}
}

// resolveTask looks a task up by full id or unambiguous id prefix.
func resolveTask(st *store.Store, id string) (*models.Task, error) {
	if t := st.Get(id); t != nil {
		return t, nil
	}
	var match *models.Task
	for _, t := range st.All() {
		if len(id) >= 4 && len(t.ID) >= len(id) && t.ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("task id %q is ambiguous", id)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task %q not found", id)
	}
	return match, nil
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusPending:
		return "pending"
	case models.StatusInProgress:
		return color.YellowString("in_progress")
	case models.StatusCompleted:
		return color.GreenString("completed")
	case models.StatusCancelled:
		return color.RedString("cancelled")
	default:
		return string(s)
	}
}
