// Package store maintains the prioritized task list and its JSON snapshot on
// disk. The in-memory list is authoritative for a running session; every
// mutation is mirrored to the snapshot so interrupted runs can resume and
// other taskforge processes can inspect progress.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harrison/taskforge/internal/filelock"
	"github.com/harrison/taskforge/internal/models"
)

// snapshot is the on-disk shape of the task list.
type snapshot struct {
	Todos       []*models.Task `json:"todos"`
	LastUpdated time.Time      `json:"last_updated"`
}

// UpdateFields names the mutable task fields. Nil fields are left unchanged.
type UpdateFields struct {
	Content  *string
	Priority *models.Priority
	Status   *models.Status
}

// Store is a thread-safe task list with JSON persistence.
type Store struct {
	mu    sync.Mutex
	path  string
	tasks []*models.Task

	// warn receives non-fatal persistence problems. Never nil.
	warn func(format string, args ...interface{})

	// now is replaceable in tests.
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithWarnFunc routes non-fatal warnings (load/save problems) to fn.
func WithWarnFunc(fn func(format string, args ...interface{})) Option {
	return func(s *Store) {
		if fn != nil {
			s.warn = fn
		}
	}
}

// WithClock replaces the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store backed by the JSON file at path and loads any existing
// snapshot. A missing file starts an empty list; a corrupt file is warned
// about and ignored so a bad snapshot never blocks a run.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		warn: func(string, ...interface{}) {},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := filelock.LockAndRead(s.path)
	if err != nil {
		s.warn("failed to load task list from %s: %v", s.path, err)
		return
	}
	if data == nil {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.warn("ignoring corrupt task list %s: %v", s.path, err)
		return
	}

	for _, task := range snap.Todos {
		if err := task.Validate(); err != nil {
			s.warn("dropping invalid task from %s: %v", s.path, err)
			continue
		}
		s.tasks = append(s.tasks, task)
	}
}

// save persists the current list. Failures are warned about but never stop
// the engine; the in-memory list stays authoritative.
func (s *Store) save() {
	snap := snapshot{
		Todos:       s.tasks,
		LastUpdated: s.now().UTC(),
	}
	if snap.Todos == nil {
		snap.Todos = []*models.Task{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.warn("failed to encode task list: %v", err)
		return
	}
	if err := filelock.LockAndWrite(s.path, data); err != nil {
		s.warn("failed to save task list to %s: %v", s.path, err)
	}
}

// Add appends a new pending task and persists the list.
func (s *Store) Add(content string, priority models.Priority) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := models.NewTask(content, priority)
	s.tasks = append(s.tasks, task)
	s.save()
	return task
}

// Get returns the task with the given id, or nil if not found.
func (s *Store) Get(id string) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

func (s *Store) find(id string) *models.Task {
	for _, task := range s.tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// Update applies the non-nil fields to the task with the given id.
// Moving a task to IN_PROGRESS while another task is already in progress is
// rejected, and terminal tasks cannot change status.
func (s *Store) Update(id string, fields UpdateFields) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.find(id)
	if task == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}

	if fields.Status != nil && *fields.Status != task.Status {
		if task.Terminal() {
			return nil, fmt.Errorf("task %s is %s and cannot change status", id, task.Status)
		}
		if *fields.Status == models.StatusInProgress {
			if active := s.inProgress(); active != nil && active.ID != id {
				return nil, fmt.Errorf("task %s is already in progress", active.ID)
			}
		}
	}

	if fields.Content != nil {
		task.Content = *fields.Content
	}
	if fields.Priority != nil {
		task.Priority = *fields.Priority
	}
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	task.UpdatedAt = s.now().UTC()

	s.save()
	return task, nil
}

func (s *Store) inProgress() *models.Task {
	for _, task := range s.tasks {
		if task.Status == models.StatusInProgress {
			return task
		}
	}
	return nil
}

// Delete removes the task with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, task := range s.tasks {
		if task.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			s.save()
			return nil
		}
	}
	return fmt.Errorf("task %s not found", id)
}

// Cancel marks the task cancelled. Cancelling an already terminal task is an
// error.
func (s *Store) Cancel(id string) (*models.Task, error) {
	status := models.StatusCancelled
	return s.Update(id, UpdateFields{Status: &status})
}

// Clear removes every task and persists the empty list.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = nil
	s.save()
}

// All returns the tasks in insertion order.
func (s *Store) All() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// ByStatus returns the tasks with the given status, in insertion order.
func (s *Store) ByStatus(status models.Status) []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Task
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out
}

// Next returns the task the engine should work on: the IN_PROGRESS task if
// one exists, otherwise the first PENDING task ordered HIGH before MEDIUM
// before LOW, insertion order within a priority. Returns nil when nothing is
// actionable.
func (s *Store) Next() *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active := s.inProgress(); active != nil {
		return active
	}

	var pending []*models.Task
	for _, task := range s.tasks {
		if task.Status == models.StatusPending {
			pending = append(pending, task)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority.Rank() < pending[j].Priority.Rank()
	})
	return pending[0]
}

// Counts returns the number of tasks per status.
func (s *Store) Counts() map[models.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts
}
