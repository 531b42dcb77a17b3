// Package validator classifies execution output against the task that
// produced it. Validation is a deterministic scan over text, not a model
// call: an ordered signal table credits partial progress, and an ordered
// rule table decides whether the task passed or needs another attempt.
package validator

import (
	"regexp"
	"strings"

	"github.com/harrison/taskforge/internal/models"
)

// Validator decides task outcomes and synthesizes retry prompts. Progress is
// accumulated on the task itself so retries are judged as continuations.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate classifies one execution attempt of task. It records any newly
// observed signals on the task's progress accumulator, then walks the rule
// table top to bottom and returns the first applicable rule's verdict.
func (v *Validator) Validate(task *models.Task, output string, filesWritten []string) models.Verdict {
	recordSignals(task.EnsureProgress(), output)

	in := evalInput{
		taskLower:    strings.ToLower(task.Content),
		output:       output,
		outputLower:  strings.ToLower(output),
		filesWritten: filesWritten,
	}

	for _, r := range ruleTable {
		if r.applies(in) {
			return r.eval(in)
		}
	}
	// The default rule applies to everything; this is unreachable.
	return passed()
}

// recordSignals scans the signal table against output. Every match is
// remembered; the first previously-unseen success signal is credited as a
// meaningful action so repeated retries cannot double-count the same
// evidence.
func recordSignals(progress *models.Progress, output string) {
	credited := false
	for _, s := range signalTable {
		if !s.match(output) {
			continue
		}
		if progress.Record(s.name) && s.success && !credited {
			progress.MeaningfulActions++
			credited = true
		}
	}
}

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Error: (.+)`),
	regexp.MustCompile(`(?i)Exception: (.+)`),
	regexp.MustCompile(`(?i)Failed: (.+)`),
	regexp.MustCompile(`(\w+Error): .+`),
}

// extractError pulls the first recognizable error message out of execution
// output, truncated to keep retry prompts readable.
func extractError(output string) string {
	for _, p := range errorPatterns {
		if m := p.FindStringSubmatch(output); m != nil {
			msg := strings.TrimSpace(m[1])
			if len(msg) > 100 {
				msg = msg[:100]
			}
			return msg
		}
	}
	return "unknown error"
}
