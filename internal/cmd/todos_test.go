package cmd

import (
	"bytes"
	"strings"
	"testing"
)

// execTodos runs a todos subcommand against a fresh root command and returns
// its combined output.
func execTodos(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"todos"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestTodosListEmpty(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execTodos(t, "list")
	if err != nil {
		t.Fatalf("todos list failed: %v", err)
	}
	if !strings.Contains(out, "No tasks.") {
		t.Errorf("Expected empty-list message, got: %s", out)
	}
}

func TestTodosAddAndList(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execTodos(t, "add", "Ship the release notes", "--priority", "high")
	if err != nil {
		t.Fatalf("todos add failed: %v", err)
	}
	if !strings.Contains(out, "Ship the release notes") {
		t.Errorf("Add output should echo the task, got: %s", out)
	}

	out, err = execTodos(t, "list")
	if err != nil {
		t.Fatalf("todos list failed: %v", err)
	}
	if !strings.Contains(out, "[high] Ship the release notes") {
		t.Errorf("List should show the added task with its priority, got: %s", out)
	}
	if !strings.Contains(out, "1 pending") {
		t.Errorf("List should show the status summary, got: %s", out)
	}
}

func TestTodosDoneByPrefix(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execTodos(t, "add", "Write the upgrade guide")
	if err != nil {
		t.Fatalf("todos add failed: %v", err)
	}
	// Output shape: "Added task <prefix>: [medium] ..."
	fields := strings.Fields(out)
	if len(fields) < 3 {
		t.Fatalf("Unexpected add output: %s", out)
	}
	prefix := strings.TrimSuffix(fields[2], ":")

	out, err = execTodos(t, "done", prefix)
	if err != nil {
		t.Fatalf("todos done failed: %v", err)
	}
	if !strings.Contains(out, "Completed: Write the upgrade guide") {
		t.Errorf("Done output should confirm completion, got: %s", out)
	}

	out, err = execTodos(t, "list")
	if err != nil {
		t.Fatalf("todos list failed: %v", err)
	}
	if !strings.Contains(out, "1 completed") {
		t.Errorf("List should show the completed count, got: %s", out)
	}
}

func TestTodosDoneUnknownTask(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := execTodos(t, "done", "deadbeef")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not-found error, got: %v", err)
	}
}

func TestTodosCancelAndClear(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execTodos(t, "add", "Spike the importer")
	if err != nil {
		t.Fatalf("todos add failed: %v", err)
	}
	prefix := strings.TrimSuffix(strings.Fields(out)[2], ":")

	out, err = execTodos(t, "cancel", prefix)
	if err != nil {
		t.Fatalf("todos cancel failed: %v", err)
	}
	if !strings.Contains(out, "Cancelled: Spike the importer") {
		t.Errorf("Cancel output should confirm cancellation, got: %s", out)
	}

	out, err = execTodos(t, "clear")
	if err != nil {
		t.Fatalf("todos clear failed: %v", err)
	}
	if !strings.Contains(out, "Removed 1 task(s).") {
		t.Errorf("Clear output should report removals, got: %s", out)
	}
}
