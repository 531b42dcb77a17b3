// Package loop drives tasks from the store through the sandbox and the
// validator until the plan is drained. It owns the retry policy: the
// validator only ever says pass or retry, and the loop converts an exhausted
// retry budget into a failed task.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/taskforge/internal/history"
	"github.com/harrison/taskforge/internal/logger"
	"github.com/harrison/taskforge/internal/models"
	"github.com/harrison/taskforge/internal/planner"
	"github.com/harrison/taskforge/internal/store"
	"github.com/harrison/taskforge/internal/validator"
)

// ErrRetryLimit indicates a task used up its attempt budget without passing
// validation.
var ErrRetryLimit = errors.New("retry limit reached")

// Executor runs a script in the sandbox and reports what happened.
type Executor interface {
	Execute(ctx context.Context, code string, timeout time.Duration) (*models.ExecutionResult, error)
}

// History records execution attempts and answers per-task statistics.
// Recording or query failures never stop the run.
type History interface {
	RecordAttempt(ctx context.Context, a *history.Attempt) error
	Stats(ctx context.Context, taskID string) (*history.TaskStats, error)
}

// CodeFunc turns an execution prompt into a runnable script. A model-backed
// implementation generates shell code from the prompt; when nil the prompt is
// executed as-is, which suits plan-file tasks and tests.
type CodeFunc func(ctx context.Context, prompt string) (string, error)

// Config carries the optional collaborators and the loop policy knobs.
type Config struct {
	Planner        planner.Planner             // optional, used by ProcessRequest
	History        History                     // optional attempt recorder
	Code           CodeFunc                    // optional prompt-to-script step
	OnTaskComplete func(result models.TaskResult) // optional completion callback

	// MaxAttempts is the per-task attempt budget, including the first run.
	MaxAttempts int
	// ExecTimeout bounds each sandbox execution. Defaults to 5 minutes.
	ExecTimeout time.Duration
}

// Engine executes tasks strictly sequentially: one task in progress at a
// time, one sandbox run at a time.
type Engine struct {
	store      *store.Store
	exec       Executor
	validator  *validator.Validator
	planner    planner.Planner
	history    History
	log        logger.Logger
	code       CodeFunc
	onComplete func(models.TaskResult)

	maxAttempts int
	execTimeout time.Duration
}

// New wires an engine from its required collaborators.
func New(st *store.Store, exec Executor, v *validator.Validator, log logger.Logger, cfg Config) (*Engine, error) {
	if st == nil {
		return nil, errors.New("loop: store is required")
	}
	if exec == nil {
		return nil, errors.New("loop: executor is required")
	}
	if v == nil {
		return nil, errors.New("loop: validator is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("loop: max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	timeout := cfg.ExecTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Engine{
		store:       st,
		exec:        exec,
		validator:   v,
		planner:     cfg.Planner,
		history:     cfg.History,
		log:         log,
		code:        cfg.Code,
		onComplete:  cfg.OnTaskComplete,
		maxAttempts: cfg.MaxAttempts,
		execTimeout: timeout,
	}, nil
}

// ProcessRequest turns a user request into stored tasks. Complex requests go
// through the planner; simple requests and planner failures become a single
// atomic task. The returned text is a priority-annotated plan summary.
func (e *Engine) ProcessRequest(ctx context.Context, request string) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", errors.New("loop: empty request")
	}

	if e.planner == nil || !planner.IsComplex(request) {
		task := e.store.Add(request, models.PriorityMedium)
		e.log.LogInfo(fmt.Sprintf("Added task: %s", task.Content))
		return fmt.Sprintf("Added 1 task:\n  1. [%s] %s\n", strings.ToUpper(string(task.Priority)), task.Content), nil
	}

	plan, err := e.planner.Plan(ctx, request)
	if err != nil {
		e.log.LogWarn(fmt.Sprintf("Planner failed, falling back to a single task: %v", err))
		task := e.store.Add(request, models.PriorityHigh)
		return fmt.Sprintf("Added 1 task:\n  1. [%s] %s\n", strings.ToUpper(string(task.Priority)), task.Content), nil
	}
	if plan == nil || len(plan.Tasks) == 0 {
		e.log.LogWarn("Planner returned an empty plan, using the fallback breakdown")
		plan = planner.FallbackPlan(request)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Created a plan with %d tasks:\n", len(plan.Tasks))
	for i, pt := range plan.Tasks {
		task := e.store.Add(pt.Content, pt.Priority)
		fmt.Fprintf(&b, "  %d. [%s] %s\n", i+1, strings.ToUpper(string(task.Priority)), task.Content)
	}
	if plan.Explanation != "" {
		fmt.Fprintf(&b, "\n%s\n", plan.Explanation)
	}
	e.log.LogInfo(fmt.Sprintf("Planned %d tasks for request", len(plan.Tasks)))
	return b.String(), nil
}

// Run drains the store: picks the next task, executes it until it passes
// validation or exhausts its attempt budget, and moves on. It stops when no
// runnable task remains or the context is cancelled.
func (e *Engine) Run(ctx context.Context) (*models.RunSummary, error) {
	start := time.Now()
	summary := &models.RunSummary{}

	for e.ShouldContinue() {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		task := e.store.Next()
		if task == nil {
			break
		}
		if task.Status != models.StatusInProgress {
			if _, err := e.store.Update(task.ID, store.UpdateFields{Status: statusPtr(models.StatusInProgress)}); err != nil {
				e.log.LogError(fmt.Sprintf("Cannot start task %s: %v", task.ID, err))
				break
			}
		}
		e.log.LogInfo(fmt.Sprintf("Starting task: %s", task.Content))

		// Plan-file tasks carry their own script; a template breakdown would
		// shadow it. Single-step breakdowns add nothing over the plain prompt.
		if task.SubTasks == nil && task.Script == "" {
			if subs := planner.DecomposeSubTasks(task.Content); len(subs) > 1 {
				task.SubTasks = subs
				e.log.LogDebug(fmt.Sprintf("Breaking down into %d sub-tasks", len(subs)))
			}
		}

		result := e.runTask(ctx, task)
		summary.TotalTasks++
		if result.Verdict == models.ValidationPassed {
			summary.Completed++
		} else {
			summary.Failed++
			summary.FailedTasks = append(summary.FailedTasks, result)
		}
		e.log.LogTaskResult(result)
		if e.onComplete != nil {
			e.onComplete(result)
		}
		if ctx.Err() != nil {
			summary.Duration = time.Since(start)
			return summary, ctx.Err()
		}
	}

	summary.Duration = time.Since(start)
	e.log.LogSummary(*summary)
	return summary, nil
}

// runTask executes one task through its attempt budget and settles its final
// status in the store.
func (e *Engine) runTask(ctx context.Context, task *models.Task) models.TaskResult {
	progress := task.EnsureProgress()
	feedback := ""
	var execTime time.Duration

	for attempt := 1; ; attempt++ {
		progress.Attempts = attempt

		output, filesWritten, execErr := e.executeAttempt(ctx, task, attempt, feedback, &execTime)
		if execErr != nil && ctx.Err() != nil {
			return models.TaskResult{Task: *task, Verdict: models.ValidationFailed, Attempts: attempt, Duration: execTime, Err: ctx.Err()}
		}

		verdict := e.validator.Validate(task, output, filesWritten)
		e.recordAttempt(ctx, task, attempt, verdict, output, filesWritten, execTime)

		if verdict.Result == models.ValidationPassed {
			task.Result = output
			task.SubTasks = nil
			if _, err := e.store.Update(task.ID, store.UpdateFields{Status: statusPtr(models.StatusCompleted)}); err != nil {
				e.log.LogError(fmt.Sprintf("Cannot complete task %s: %v", task.ID, err))
			}
			e.log.LogInfo(fmt.Sprintf("Task completed: %s", task.Content))
			return models.TaskResult{Task: *task, Verdict: models.ValidationPassed, Output: output, Feedback: verdict.Feedback, Attempts: attempt, Duration: execTime}
		}

		feedback = verdict.Feedback
		if execErr != nil {
			feedback = fmt.Sprintf("%s (execution error: %v)", feedback, execErr)
		}
		if attempt >= e.maxAttempts {
			if _, err := e.store.Cancel(task.ID); err != nil {
				e.log.LogError(fmt.Sprintf("Cannot cancel task %s: %v", task.ID, err))
			}
			e.log.LogWarn(fmt.Sprintf("Task failed after %d attempts: %s", attempt, task.Content))
			return models.TaskResult{
				Task:     *task,
				Verdict:  models.ValidationFailed,
				Output:   output,
				Feedback: feedback,
				Attempts: attempt,
				Duration: execTime,
				Err:      fmt.Errorf("%w after %d attempts: %s", ErrRetryLimit, attempt, feedback),
			}
		}
		e.log.LogWarn(fmt.Sprintf("Task needs retry (%d/%d): %s", attempt, e.maxAttempts, feedback))
	}
}

// executeAttempt runs one attempt at the task. While the task still has
// pending sub-tasks, they are executed one by one and their outputs combined;
// a sub-task whose validation check fails drops the remaining breakdown so
// the next attempt works from the full prompt.
func (e *Engine) executeAttempt(ctx context.Context, task *models.Task, attempt int, feedback string, execTime *time.Duration) (string, []string, error) {
	if models.NextSubTask(task.SubTasks) != nil {
		return e.executeSubTasks(ctx, task, execTime)
	}

	prompt := e.buildContext(task)
	if attempt > 1 {
		prompt += e.validator.RetryContext(task, feedback, attempt)
		prompt += e.failureInsight(ctx, task)
	}

	script := prompt
	if task.Script != "" {
		script = task.Script
	} else if e.code != nil {
		generated, err := e.code(ctx, prompt)
		if err != nil {
			e.log.LogError(fmt.Sprintf("Code generation failed for task %s: %v", task.ID, err))
			return "", nil, err
		}
		script = generated
	}

	res, err := e.exec.Execute(ctx, script, e.execTimeout)
	if err != nil {
		return "", nil, err
	}
	*execTime += res.Duration
	output := res.Output
	if !res.Success && res.Error != "" {
		output += "\nError: " + res.Error
	}
	return output, res.FilesWritten, nil
}

// executeSubTasks drains the task's pending sub-tasks, accumulating their
// outputs and written files into one attempt's worth of evidence.
func (e *Engine) executeSubTasks(ctx context.Context, task *models.Task, execTime *time.Duration) (string, []string, error) {
	var outputs strings.Builder
	var filesWritten []string

	for {
		sub := models.NextSubTask(task.SubTasks)
		if sub == nil {
			break
		}
		e.log.LogDebug(fmt.Sprintf("Sub-task %s: %s", sub.ID, sub.Description))

		res, err := e.exec.Execute(ctx, sub.Action, e.execTimeout)
		if err != nil {
			task.SubTasks = nil
			return outputs.String(), filesWritten, err
		}
		*execTime += res.Duration
		outputs.WriteString(res.Output)
		outputs.WriteString("\n")
		filesWritten = append(filesWritten, res.FilesWritten...)

		if !planner.CheckSubTask(*sub, res.Output) {
			e.log.LogWarn(fmt.Sprintf("Sub-task %s did not verify, dropping the breakdown", sub.ID))
			task.SubTasks = nil
			break
		}
		sub.Completed = true
	}
	return outputs.String(), filesWritten, nil
}

// failureInsight summarizes what history knows about this task's earlier
// failures, including ones from previous runs of a resumed task list.
func (e *Engine) failureInsight(ctx context.Context, task *models.Task) string {
	if e.history == nil {
		return ""
	}
	stats, err := e.history.Stats(ctx, task.ID)
	if err != nil || stats.Failed == 0 {
		return ""
	}
	insight := fmt.Sprintf("\nThis task has %d failed attempt(s) on record.", stats.Failed)
	if len(stats.CommonPatterns) > 0 {
		insight += fmt.Sprintf(" Common issues: %s.", strings.Join(stats.CommonPatterns, ", "))
	}
	return insight + "\n"
}

// digestLimit caps how much of a completed task's output is carried into
// later task prompts.
const digestLimit = 1000

// buildContext assembles the execution prompt for a task: the task itself, a
// digest of what earlier tasks produced, and guidance for the task category.
func (e *Engine) buildContext(task *models.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Please complete the following task:\n\n%s\n\n", task.Content)

	completed := e.store.ByStatus(models.StatusCompleted)
	if len(completed) > 0 {
		b.WriteString("## Results from previous tasks\n")
		for i, done := range completed {
			fmt.Fprintf(&b, "\n### Task %d: %s\n", i+1, truncate(done.Content, 80))
			if done.Result != "" {
				b.WriteString(truncate(done.Result, digestLimit))
				b.WriteString("\n")
			} else {
				b.WriteString("No specific results recorded.\n")
			}
		}
		b.WriteString("\nBuild on what was already discovered and created in previous tasks.\n\n")
	}

	b.WriteString("Available commands: write_file, read_file, list_files, run_cmd, search_docs.\n")
	b.WriteString("Files must be created with write_file; showing content is not creating a file.\n\n")

	lower := strings.ToLower(task.Content)
	switch {
	case containsAny(lower, "gather", "analyze", "explore", "document", "review"):
		b.WriteString("This is an analysis task. Start by inspecting the workspace:\n")
		b.WriteString("use list_files and read_file on the relevant files, then summarize what you found.\n")
	case containsAny(lower, "create", "write", "develop", "implement", "script", "test", "endpoint", "backend", "service"),
		strings.Contains(lower, " api"):
		b.WriteString("This is a file creation task. You MUST create actual files with write_file,\n")
		b.WriteString("then verify them with run_cmd. A task that creates no files fails validation.\n")
	}
	return b.String()
}

// ShouldContinue reports whether any runnable task remains.
func (e *Engine) ShouldContinue() bool {
	counts := e.store.Counts()
	return counts[models.StatusPending] > 0 || counts[models.StatusInProgress] > 0
}

// ProgressSummary renders the run progress, or "" when the store is empty.
func (e *Engine) ProgressSummary() string {
	counts := e.store.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return ""
	}
	s := fmt.Sprintf("Progress: %d/%d tasks completed", counts[models.StatusCompleted], total)
	if n := counts[models.StatusInProgress]; n > 0 {
		s += fmt.Sprintf(" (%d in progress)", n)
	}
	return s
}

// recordAttempt writes the attempt to history when a recorder is configured.
// History failures are logged and otherwise ignored.
func (e *Engine) recordAttempt(ctx context.Context, task *models.Task, attempt int, verdict models.Verdict, output string, filesWritten []string, duration time.Duration) {
	if e.history == nil {
		return
	}
	err := e.history.RecordAttempt(ctx, &history.Attempt{
		TaskID:       task.ID,
		TaskContent:  task.Content,
		Attempt:      attempt,
		Verdict:      verdict.Result,
		Feedback:     verdict.Feedback,
		Output:       output,
		FilesWritten: filesWritten,
		Duration:     duration,
	})
	if err != nil {
		e.log.LogWarn(fmt.Sprintf("Cannot record attempt history for task %s: %v", task.ID, err))
	}
}

func statusPtr(s models.Status) *models.Status { return &s }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
