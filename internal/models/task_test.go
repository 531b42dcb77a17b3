package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	task := NewTask("Create a README", PriorityHigh)

	require.NoError(t, task.Validate())
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Task) {}},
		{name: "missing id", mutate: func(tk *Task) { tk.ID = "" }, wantErr: true},
		{name: "missing content", mutate: func(tk *Task) { tk.Content = "" }, wantErr: true},
		{name: "bad priority", mutate: func(tk *Task) { tk.Priority = "urgent" }, wantErr: true},
		{name: "bad status", mutate: func(tk *Task) { tk.Status = "done" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask("do something", PriorityMedium)
			tt.mutate(task)
			err := task.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTask_Terminal(t *testing.T) {
	task := NewTask("x", PriorityLow)
	assert.False(t, task.Terminal())

	task.Status = StatusInProgress
	assert.False(t, task.Terminal())

	task.Status = StatusCompleted
	assert.True(t, task.Terminal())

	task.Status = StatusCancelled
	assert.True(t, task.Terminal())
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("HIGH"))
	assert.Equal(t, PriorityHigh, ParsePriority(" high "))
	assert.Equal(t, PriorityLow, ParsePriority("Low"))
	assert.Equal(t, PriorityMedium, ParsePriority("medium"))
	// Unknown tokens default to medium.
	assert.Equal(t, PriorityMedium, ParsePriority("critical"))
}

func TestPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Greater(t, Priority("bogus").Rank(), PriorityLow.Rank())
}

func TestProgress_Record(t *testing.T) {
	p := NewProgress()

	assert.True(t, p.Record("file_write"))
	assert.False(t, p.Record("file_write"), "second sighting must not count")
	assert.True(t, p.Record("shell_success"))
	assert.ElementsMatch(t, []string{"file_write", "shell_success"}, p.Signals())
}

func TestNextSubTask(t *testing.T) {
	subs := []SubTask{
		{ID: "a", Completed: true},
		{ID: "b"},
		{ID: "c"},
	}

	next := NextSubTask(subs)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)

	next.Completed = true
	next = NextSubTask(subs)
	require.NotNil(t, next)
	assert.Equal(t, "c", next.ID)

	next.Completed = true
	assert.Nil(t, NextSubTask(subs))
}
