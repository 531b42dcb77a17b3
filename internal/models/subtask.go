package models

// SubTaskType classifies the kind of step a sub-task performs.
type SubTaskType string

// Sub-task step kinds.
const (
	SubTaskExplore  SubTaskType = "explore"  // read files, inspect the workspace
	SubTaskCreate   SubTaskType = "create"   // create a new file
	SubTaskModify   SubTaskType = "modify"   // change an existing file
	SubTaskExecute  SubTaskType = "execute"  // run a command
	SubTaskValidate SubTaskType = "validate" // check that something works
)

// SubTask is a single concrete step carved out of a parent task. The Action
// field holds an executable snippet; Validation describes how to recognize a
// successful run in the step's output.
type SubTask struct {
	ID          string
	Type        SubTaskType
	Description string
	Action      string
	Validation  string
	Completed   bool
}

// NextSubTask returns the first uncompleted sub-task, or nil when the
// breakdown is exhausted.
func NextSubTask(subs []SubTask) *SubTask {
	for i := range subs {
		if !subs[i].Completed {
			return &subs[i]
		}
	}
	return nil
}
