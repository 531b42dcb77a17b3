package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/taskforge/internal/config"
	"github.com/harrison/taskforge/internal/history"
	"github.com/harrison/taskforge/internal/logger"
	"github.com/harrison/taskforge/internal/loop"
	"github.com/harrison/taskforge/internal/models"
	"github.com/harrison/taskforge/internal/planner"
	"github.com/harrison/taskforge/internal/sandbox"
	"github.com/harrison/taskforge/internal/store"
	"github.com/harrison/taskforge/internal/validator"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [request...]",
		Short: "Execute a request or a plan file",
		Long: `Execute a request by breaking it into tasks and driving each task through
the sandboxed executor until it passes validation.

A request given as arguments is planned into a task list. Alternatively,
--plan loads a Markdown plan file whose sections carry ready-made scripts.
With neither, execution resumes the pending tasks in the stored task list.

File writes from task scripts pause for confirmation: answer y to approve,
n to reject with feedback, or a to approve everything for the rest of the
run. --auto-approve skips the prompts entirely.

Configuration is loaded from .taskforge/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  # Plan and execute a request
  taskforge run "create a web application with a chat page"

  # Execute a Markdown plan file, or every plan file in a directory
  taskforge run --plan plan.md
  taskforge run --plan docs/plans/

  # Resume pending tasks from a previous run
  taskforge run

  # Other options
  taskforge run --auto-approve "set up the project"   # No confirmation prompts
  taskforge run --timeout 10m "migrate the configs"   # Per-task execution timeout
  taskforge run --max-attempts 5 --verbose "add tests"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCommand,
	}

	// Add flags
	cmd.Flags().String("config", "", "Path to config file (default: .taskforge/config.yaml)")
	cmd.Flags().String("plan", "", "Path to a Markdown plan file, or a directory of plan files")
	cmd.Flags().Bool("auto-approve", false, "Approve all file writes without prompting")
	cmd.Flags().String("timeout", "", "Per-task execution timeout (e.g., 30s, 5m)")
	cmd.Flags().Int("max-attempts", 0, "Attempts per task before it is failed (0 = use config)")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("project-dir", "", "Working directory task scripts run in")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")

	return cmd
}

// loadAndMergeConfig resolves the effective configuration for a command:
// config file first, then flag overrides.
func loadAndMergeConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Build flag pointers for merge (only changed values)
	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var maxAttemptsPtr *int
	if cmd.Flags().Changed("max-attempts") {
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
		maxAttemptsPtr = &maxAttempts
	}

	var autoApprovePtr *bool
	if cmd.Flags().Changed("auto-approve") {
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		autoApprovePtr = &autoApprove
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDir, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &logDir
	}

	var projectDirPtr *string
	if cmd.Flags().Changed("project-dir") {
		projectDir, _ := cmd.Flags().GetString("project-dir")
		projectDirPtr = &projectDir
	}

	cfg.MergeWithFlags(timeoutPtr, maxAttemptsPtr, autoApprovePtr, logDirPtr, projectDirPtr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndMergeConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logLevel := cfg.LogLevel
	if verbose {
		logLevel = "debug"
	}

	consoleLog := logger.NewConsoleLogger(cmd.OutOrStdout(), logLevel)
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, logLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := &multiLogger{loggers: []logger.Logger{consoleLog, fileLog}}

	st := store.New(cfg.StorePath, store.WithWarnFunc(func(format string, args ...interface{}) {
		log.LogWarn(fmt.Sprintf(format, args...))
	}))

	var hist loop.History
	if cfg.History.Enabled {
		hs, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer hs.Close()
		if cfg.History.KeepAttemptsDays > 0 {
			if _, err := hs.Prune(cmd.Context(), cfg.History.KeepAttemptsDays); err != nil {
				log.LogWarn(fmt.Sprintf("Cannot prune history: %v", err))
			}
		}
		hist = hs
	}

	exec := sandbox.NewExecutor(cfg.ProjectDir, log)
	exec.Approve = approvalPrompt(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.AutoApprove)
	exec.Docs = func(query string) string {
		return fmt.Sprintf("No documentation available for: %s", query)
	}

	eng, err := loop.New(st, exec, validator.New(), log, loop.Config{
		Planner:     planner.PlannerFunc(builtinPlan),
		History:     hist,
		MaxAttempts: cfg.MaxAttempts,
		ExecTimeout: cfg.ExecTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Seed the task list from the plan file or the request, if given.
	planFile, _ := cmd.Flags().GetString("plan")
	request := strings.TrimSpace(strings.Join(args, " "))
	switch {
	case planFile != "" && request != "":
		return fmt.Errorf("cannot combine --plan with a request")
	case planFile != "":
		tasks, err := loadPlan(planFile)
		if err != nil {
			return fmt.Errorf("failed to load plan file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d task(s) from %s\n", len(tasks), planFile)
		for _, t := range tasks {
			added := st.Add(t.Content, t.Priority)
			added.Script = t.Script
		}
	case request != "":
		summary, err := eng.ProcessRequest(ctx, request)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), summary)
	}

	if !eng.ShouldContinue() {
		fmt.Fprintf(cmd.OutOrStdout(), "No pending tasks.\n")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nStarting execution...\n\n")
	summary, runErr := eng.Run(ctx)

	if progress := eng.ProgressSummary(); progress != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", progress)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logs written to: %s\n", fileLog.RunFile())

	if runErr != nil {
		return fmt.Errorf("execution interrupted: %w", runErr)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", summary.Failed)
	}
	return nil
}

// loadPlan loads one plan file, or every plan file in a directory.
func loadPlan(path string) ([]*models.Task, error) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return planner.LoadPlanDir(path)
	}
	return planner.LoadPlanFile(path)
}

// builtinPlan is the deterministic planner used when no model-backed planner
// is wired in: complex requests get the standard phased breakdown.
func builtinPlan(ctx context.Context, request string) (*planner.Plan, error) {
	return planner.FallbackPlan(request), nil
}

// approvalPrompt returns an ApprovalFunc that asks the user about each file
// write. Answering "a" approves everything for the rest of the run.
func approvalPrompt(in io.Reader, out io.Writer, autoApprove bool) sandbox.ApprovalFunc {
	reader := bufio.NewReader(in)
	approveAll := autoApprove

	return func(req sandbox.Request) (bool, string) {
		if approveAll {
			return true, ""
		}

		fmt.Fprintf(out, "\n%s %s (%d bytes)\n",
			color.YellowString("Write requested:"), req.Filename, len(req.Content))
		fmt.Fprintf(out, "Approve? [y]es / [n]o / [a]ll: ")

		answer, err := reader.ReadString('\n')
		if err != nil {
			return false, "confirmation unavailable"
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, ""
		case "a", "all":
			approveAll = true
			return true, ""
		default:
			fmt.Fprintf(out, "Feedback for the script (optional): ")
			feedback, _ := reader.ReadString('\n')
			return false, strings.TrimSpace(feedback)
		}
	}
}

// multiLogger fans log calls out to several loggers.
type multiLogger struct {
	loggers []logger.Logger
}

func (ml *multiLogger) LogTrace(message string) {
	for _, l := range ml.loggers {
		l.LogTrace(message)
	}
}

func (ml *multiLogger) LogDebug(message string) {
	for _, l := range ml.loggers {
		l.LogDebug(message)
	}
}

func (ml *multiLogger) LogInfo(message string) {
	for _, l := range ml.loggers {
		l.LogInfo(message)
	}
}

func (ml *multiLogger) LogWarn(message string) {
	for _, l := range ml.loggers {
		l.LogWarn(message)
	}
}

func (ml *multiLogger) LogError(message string) {
	for _, l := range ml.loggers {
		l.LogError(message)
	}
}

func (ml *multiLogger) LogTaskResult(result models.TaskResult) {
	for _, l := range ml.loggers {
		l.LogTaskResult(result)
	}
}

func (ml *multiLogger) LogSummary(summary models.RunSummary) {
	for _, l := range ml.loggers {
		l.LogSummary(summary)
	}
}
