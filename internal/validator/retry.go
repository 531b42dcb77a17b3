package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/taskforge/internal/models"
)

// RetryContext builds the execution prompt for the next attempt at task.
// The prompt acknowledges progress already recorded so the retry continues
// from where the last attempt stopped instead of restarting, and appends
// category-specific guidance for task types with known failure modes.
func (v *Validator) RetryContext(task *models.Task, feedback string, attempt int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n[RETRY ATTEMPT %d]\n\n", attempt)
	fmt.Fprintf(&b, "Previous attempt failed validation: %s\n\n", feedback)

	progress := task.EnsureProgress()
	if progress.MeaningfulActions > 0 {
		signals := progress.Signals()
		sort.Strings(signals)
		fmt.Fprintf(&b, "Verified progress from earlier attempts: %s.\n", strings.Join(signals, ", "))
		b.WriteString("Continue from that state. Do not redo completed steps; fix only what the feedback describes.\n")
	} else {
		b.WriteString("No verifiable progress has been made yet. Start with the most basic working version and build up.\n")
	}

	b.WriteString("You MUST fix the issues and produce working results:\n")

	taskLower := strings.ToLower(task.Content)
	switch {
	case strings.Contains(taskLower, "backend") || strings.Contains(taskLower, "api"):
		b.WriteString(backendRetryGuidance)
	case strings.Contains(taskLower, "test"):
		b.WriteString(testRetryGuidance)
	case strings.Contains(taskLower, "gui"):
		b.WriteString(guiRetryGuidance)
	}

	b.WriteString("\nDO NOT use placeholder code. Create actual working implementation!\n")
	return b.String()
}

const backendRetryGuidance = `
For backend/API integration:
1. Verify the service endpoint before wiring code to it (run_cmd with curl).
2. Handle connection errors explicitly; a refused connection must produce a
   clear message, not a stack trace.
3. Write the full handler chain to files with write_file, then exercise at
   least one request end to end with run_cmd and show its output.
`

const testRetryGuidance = `
For test implementation:
1. Create actual test cases with real assertions, not empty stubs.
2. Cover both the success path and at least one failure path.
3. Run the test suite with run_cmd and include the run output; a test that
   was never executed does not count.
`

const guiRetryGuidance = `
For GUI implementation:
1. Create a working HTML interface with write_file (index.html at minimum).
2. Put behavior in a separate script file and wire it into the page.
3. Include error handling for failed requests so the page degrades visibly
   instead of silently.
`
