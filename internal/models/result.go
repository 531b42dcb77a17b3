package models

import "time"

// ExecutionResult captures the outcome of one sandboxed script run.
type ExecutionResult struct {
	Success      bool          // process exited zero and was not killed
	Output       string        // captured standard output, sentinel lines removed
	Error        string        // captured standard error or timeout description
	FilesWritten []string      // files written through approved confirmations
	Duration     time.Duration // wall time of the run
}

// ValidationResult classifies an execution against its task.
type ValidationResult string

// Validation outcomes.
const (
	ValidationPassed     ValidationResult = "passed"
	ValidationNeedsRetry ValidationResult = "needs_retry"
	ValidationFailed     ValidationResult = "failed"
)

// Verdict is the validator's judgement plus the feedback handed to the next
// attempt.
type Verdict struct {
	Result   ValidationResult
	Feedback string
}

// TaskResult records how a single task fared across all of its attempts.
type TaskResult struct {
	Task     Task
	Verdict  ValidationResult
	Output   string        // output of the final attempt
	Feedback string        // validator feedback from the final attempt
	Attempts int           // attempts consumed, 1-indexed
	Duration time.Duration // total execution time across attempts
	Err      error         // execution error, if any attempt failed to run
}

// RunSummary aggregates the outcome of draining a whole plan.
type RunSummary struct {
	TotalTasks  int
	Completed   int
	Failed      int
	Duration    time.Duration
	FailedTasks []TaskResult
}
