// Package planner turns a user request into an ordered, prioritized task
// list. Plans normally come from an external model through the Planner
// interface; this package owns the deterministic parts around that call:
// deciding whether a request needs decomposition at all, parsing the plan
// markers out of a model response, and producing a fallback plan when the
// model fails or returns nothing usable.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harrison/taskforge/internal/models"
)

// ProposedTask is one entry of a plan before it enters the task store.
type ProposedTask struct {
	Content  string
	Priority models.Priority
}

// Plan is an ordered task list plus the planner's explanation of it.
type Plan struct {
	Tasks       []ProposedTask
	Explanation string
}

// Planner produces a plan for a request. Implementations may be model-backed
// and are allowed to fail or return an empty plan; callers must tolerate
// both.
type Planner interface {
	Plan(ctx context.Context, request string) (*Plan, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, request string) (*Plan, error)

// Plan calls f.
func (f PlannerFunc) Plan(ctx context.Context, request string) (*Plan, error) {
	return f(ctx, request)
}

const (
	planStartMarker = "TASK_PLAN_START"
	planEndMarker   = "TASK_PLAN_END"
)

var (
	planBlockRe = regexp.MustCompile(`(?s)` + planStartMarker + `\s*(.*?)\s*` + planEndMarker)

	// "1. [HIGH] Do the thing" / "2) [low] Other thing"
	priorityFirstRe = regexp.MustCompile(`^\d+[.)]?\s*\[(\w+)\]\s*(.+)$`)
	// "1. Do the thing [HIGH]"
	priorityLastRe = regexp.MustCompile(`^\d+[.)]?\s*(.+?)\s*\[(\w+)\]$`)
	// "1. Do the thing"
	bareTaskRe = regexp.MustCompile(`^\d+[.)]?\s*(.+)$`)
	// bare numbered bracket line outside markers
	numberedBracketRe = regexp.MustCompile(`^\d+\.?\s*\[`)
)

// ParsePlanResponse extracts a plan from a model response. Task lines are
// read from between the TASK_PLAN_START/TASK_PLAN_END markers, or, when the
// markers are absent, from any numbered "[PRIORITY]" lines in the response.
// Lines without a recognizable priority default to MEDIUM. An empty or
// unrecognizable response yields a plan with no tasks, never an error.
func ParsePlanResponse(response string) *Plan {
	var taskLines []string
	if m := planBlockRe.FindStringSubmatch(response); m != nil {
		taskLines = strings.Split(strings.TrimSpace(m[1]), "\n")
	} else {
		for _, line := range strings.Split(response, "\n") {
			if numberedBracketRe.MatchString(strings.TrimSpace(line)) {
				taskLines = append(taskLines, line)
			}
		}
	}

	plan := &Plan{Explanation: extractExplanation(response)}
	for _, line := range taskLines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var content, priority string
		switch {
		case priorityFirstRe.MatchString(line):
			m := priorityFirstRe.FindStringSubmatch(line)
			priority, content = m[1], m[2]
		case priorityLastRe.MatchString(line):
			m := priorityLastRe.FindStringSubmatch(line)
			content, priority = m[1], m[2]
		case bareTaskRe.MatchString(line):
			m := bareTaskRe.FindStringSubmatch(line)
			content, priority = m[1], "MEDIUM"
		default:
			continue
		}

		plan.Tasks = append(plan.Tasks, ProposedTask{
			Content:  strings.TrimSpace(content),
			Priority: models.ParsePriority(priority),
		})
	}
	return plan
}

// extractExplanation pulls the prose following the plan block, limited to a
// few lines so the engine can echo it without flooding the log.
func extractExplanation(response string) string {
	if _, after, found := strings.Cut(response, planEndMarker); found {
		var lines []string
		for _, line := range strings.Split(after, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "TASK_") {
				continue
			}
			lines = append(lines, line)
			if len(lines) >= 3 {
				break
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	for _, line := range strings.Split(response, "\n") {
		lower := strings.ToLower(line)
		if containsAny(lower, "approach", "plan", "will", "first", "then") {
			return strings.TrimSpace(line)
		}
	}
	return "I'll work through these tasks systematically to complete your request."
}

// FallbackPlan builds a generic five-step plan when the planner fails or
// returns nothing. Analysis-flavored requests get an exploration-heavy first
// step.
func FallbackPlan(request string) *Plan {
	display := request
	if len(display) > 100 {
		display = display[:97] + "..."
	}

	analysis := containsAny(strings.ToLower(request),
		"analyze", "review", "understand", "explore", "examine", "investigate")

	firstStep := fmt.Sprintf("Analyze requirements: %s", display)
	if analysis {
		firstStep = fmt.Sprintf(
			"Thoroughly analyze requirements and explore codebase by reading all relevant files completely: %s",
			display)
	}

	return &Plan{
		Tasks: []ProposedTask{
			{Content: firstStep, Priority: models.PriorityHigh},
			{Content: "Design the implementation approach", Priority: models.PriorityHigh},
			{Content: "Implement the main functionality", Priority: models.PriorityHigh},
			{Content: "Test and validate the implementation", Priority: models.PriorityMedium},
			{Content: "Document the solution", Priority: models.PriorityLow},
		},
		Explanation: "I'll break this down into systematic steps to complete your request.",
	}
}

var complexPatterns = compileAll(
	`create.*application`,
	`build.*system`,
	`implement.*feature`,
	`design.*architecture`,
	`setup.*project`,
	`develop.*with`,
	`make.*that.*and`,
	`multiple.*files`,
	`full.*stack`,
	`complete.*solution`,
	`write.*and.*test`,
	`create.*web`,
	`create.*gui`,
	`create.*api`,
	`analyze.*and`,
	`debug.*and.*fix`,
	`refactor.*code`,
	`add.*functionality`,
	`integrate.*with`,
	`multiple.*steps`,
	`requires.*steps`,
	`improve.*project`,
	`enhance.*project`,
	`several.*tasks`,
)

var simplePatterns = compileAll(
	`^what\s+is`,
	`^explain`,
	`^show\s+me`,
	`^tell\s+me`,
	`^list`,
	`^hello`,
	`^hi\b`,
	`^\s*$`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// IsComplex reports whether a request warrants decomposition into a plan.
// Explicitly conversational requests are never complex; otherwise known
// multi-step phrasings, length, and chained actions tip the decision.
func IsComplex(request string) bool {
	lower := strings.ToLower(strings.TrimSpace(request))

	for _, p := range simplePatterns {
		if p.MatchString(lower) {
			return false
		}
	}
	for _, p := range complexPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	if len(strings.Fields(request)) > 15 {
		return true
	}
	return containsAny(lower, " and ", " then ", " also ", " plus ")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
