package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/taskforge/internal/models"
)

const samplePlan = `# Release prep plan

Some introduction text that is not a task.

## Task 1: Vendor the assets

**Priority:** high

Copy the static assets into the build tree.

` + "```bash" + `
mkdir -p build/assets
run_cmd cp -r assets build/
` + "```" + `

## Task 2: Refresh the changelog

Priority: low

` + "```bash" + `
write_file "CHANGELOG.md" "pending"
` + "```" + `

## Task 3: Sanity check

No priority line here, and no script either.

## Notes

This trailing section is not a task.
`

func TestMarkdownParserParse(t *testing.T) {
	tasks, err := NewMarkdownParser().Parse(strings.NewReader(samplePlan))
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, "1", tasks[0].Number)
	assert.Equal(t, "Vendor the assets", tasks[0].Name)
	assert.Equal(t, models.PriorityHigh, tasks[0].Priority)
	assert.Contains(t, tasks[0].Script, "mkdir -p build/assets")
	assert.Contains(t, tasks[0].Script, "run_cmd cp -r assets build/")
	assert.Contains(t, tasks[0].Notes, "Copy the static assets")

	assert.Equal(t, models.PriorityLow, tasks[1].Priority)
	assert.Contains(t, tasks[1].Script, `write_file "CHANGELOG.md" "pending"`)

	// Missing metadata falls back to defaults.
	assert.Equal(t, "Sanity check", tasks[2].Name)
	assert.Equal(t, models.PriorityMedium, tasks[2].Priority)
	assert.Empty(t, tasks[2].Script)
}

func TestMarkdownParserIgnoresNonTaskSections(t *testing.T) {
	tasks, err := NewMarkdownParser().Parse(strings.NewReader("# Title\n\n## Overview\n\nprose\n"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	tasks, err := LoadPlanFile(path)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, "Vendor the assets", tasks[0].Content)
	assert.Equal(t, models.PriorityHigh, tasks[0].Priority)
	assert.Equal(t, models.StatusPending, tasks[0].Status)
	assert.NotEmpty(t, tasks[0].ID)
	assert.Contains(t, tasks[0].Script, "mkdir -p build/assets")
}

func TestLoadPlanFileErrors(t *testing.T) {
	_, err := LoadPlanFile(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte("# Nothing here\n"), 0644))
	_, err = LoadPlanFile(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no task sections")
}

func TestDecomposeSubTasks(t *testing.T) {
	backend := DecomposeSubTasks("Build the backend API server with package dependencies")
	require.NotEmpty(t, backend)
	assert.Equal(t, "analyze_backend", backend[0].ID)
	assert.Equal(t, models.SubTaskExplore, backend[0].Type)
	ids := make([]string, 0, len(backend))
	for _, s := range backend {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "check_deps")
	assert.Contains(t, ids, "implement_server")
	assert.Contains(t, ids, "verify_server")

	frontend := DecomposeSubTasks("Create the GUI in HTML and JavaScript")
	assert.Equal(t, "analyze_frontend", frontend[0].ID)
	last := frontend[len(frontend)-1]
	assert.Equal(t, "create_script", last.ID)

	tests := DecomposeSubTasks("Run the test suite")
	require.Len(t, tests, 1)
	assert.Equal(t, models.SubTaskExecute, tests[0].Type)

	generic := DecomposeSubTasks("Tidy up the repository layout")
	require.Len(t, generic, 1)
	assert.Equal(t, "analyze_context", generic[0].ID)
}

func TestCreateSubTaskTemplatesAreSelfContained(t *testing.T) {
	// The prelude runs scripts under set -u, so template actions must not
	// lean on variables the caller never sets.
	contents := []string{
		"Build the backend API server with package dependencies",
		"Create the GUI in HTML and JavaScript",
		"Run the test suite",
		"Tidy up the repository layout",
	}
	actions := map[string]string{}
	for _, content := range contents {
		for _, sub := range DecomposeSubTasks(content) {
			assert.NotContains(t, sub.Action, "$", "sub-task %s", sub.ID)
			actions[sub.ID] = sub.Action
		}
	}

	assert.Contains(t, actions["implement_server"], "createServer")
	assert.Contains(t, actions["create_page"], "<!DOCTYPE html>")
	assert.Contains(t, actions["create_script"], "addEventListener")
}

func TestCheckSubTask(t *testing.T) {
	tests := []struct {
		name       string
		validation string
		output     string
		want       bool
	}{
		{
			name:       "file exists satisfied",
			validation: "File 'server.js' exists",
			output:     "Created file: server.js\n",
			want:       true,
		},
		{
			name:       "file exists unsatisfied",
			validation: "File 'server.js' exists",
			output:     "nothing happened",
			want:       false,
		},
		{
			name:       "contains clause",
			validation: "Output contains listening on port",
			output:     "Server listening on port 8080\n",
			want:       true,
		},
		{
			name:       "shows list",
			validation: "Shows list",
			output:     "Listing files: .\nmain.go\n",
			want:       true,
		},
		{
			name:       "without errors pass",
			validation: "Runs without errors",
			output:     "all good\n",
			want:       true,
		},
		{
			name:       "without errors fail",
			validation: "Runs without errors",
			output:     "Error: missing module\n",
			want:       false,
		},
		{
			name:       "default nonempty output",
			validation: "Analysis complete",
			output:     "found three packages\n",
			want:       true,
		},
		{
			name:       "default empty output",
			validation: "Analysis complete",
			output:     "   \n",
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := models.SubTask{Validation: tt.validation}
			assert.Equal(t, tt.want, CheckSubTask(sub, tt.output))
		})
	}
}
