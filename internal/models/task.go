package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Priority indicates how urgently a task should be scheduled.
type Priority string

// Task priority levels, ordered HIGH > MEDIUM > LOW for scheduling.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Status tracks a task through its lifecycle.
type Status string

// Task status values. COMPLETED and CANCELLED are terminal; a task may move
// between PENDING and IN_PROGRESS until it reaches a terminal status.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Task represents a single unit of an execution plan.
type Task struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Priority  Priority  `json:"priority"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Script holds a concrete executable snippet for plan-file tasks. Empty
	// for tasks whose script is produced by an external generator.
	Script string `json:"-"`

	// Result is the recorded output of the completed task, kept in memory so
	// later tasks can build on it. Not persisted.
	Result string `json:"-"`

	// Progress accumulates validation signals across retry attempts for the
	// lifetime of the session. Not persisted.
	Progress *Progress `json:"-"`

	// SubTasks holds an optional fine-grained breakdown of this task,
	// discarded when the task completes.
	SubTasks []SubTask `json:"-"`
}

// NewTask creates a pending task with a fresh identifier and timestamps.
func NewTask(content string, priority Priority) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.NewString(),
		Content:   content,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks that the task has the fields every consumer relies on.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Content == "" {
		return errors.New("task content is required")
	}
	switch t.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return errors.New("task priority must be high, medium or low")
	}
	switch t.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
	default:
		return errors.New("unknown task status")
	}
	return nil
}

// Terminal reports whether the task has reached a final status.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// EnsureProgress returns the task's progress accumulator, allocating it on
// first use.
func (t *Task) EnsureProgress() *Progress {
	if t.Progress == nil {
		t.Progress = NewProgress()
	}
	return t.Progress
}

// Rank returns the scheduling rank of a priority; lower ranks are scheduled
// first. Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ParsePriority normalizes a priority token such as "HIGH" or "medium".
// Unrecognized tokens fall back to MEDIUM, matching planner output handling.
func ParsePriority(s string) Priority {
	switch Priority(normalize(s)) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

func normalize(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' {
			continue
		}
		b = append(b, c)
	}
	return string(b)
}

// Progress remembers which validation signals a task has already produced so
// retries are credited for partial progress instead of double-counted.
type Progress struct {
	SeenSignals       map[string]bool // signal names already observed
	MeaningfulActions int             // count of distinct success signals
	Attempts          int             // execution attempts so far
}

// NewProgress creates an empty progress accumulator.
func NewProgress() *Progress {
	return &Progress{SeenSignals: make(map[string]bool)}
}

// Record marks a signal as seen. It returns true if the signal is new.
func (p *Progress) Record(signal string) bool {
	if p.SeenSignals[signal] {
		return false
	}
	p.SeenSignals[signal] = true
	return true
}

// Signals returns the observed signal names in no particular order.
func (p *Progress) Signals() []string {
	out := make([]string, 0, len(p.SeenSignals))
	for name := range p.SeenSignals {
		out = append(out, name)
	}
	return out
}
