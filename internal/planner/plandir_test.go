package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlanDirCombinesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := `## Task 1: Prepare the workspace

Priority: high

` + "```bash" + `
list_files .
` + "```" + `
`
	second := `## Task 1: Assemble the report

Priority: low

` + "```bash" + `
write_file "report.md" "draft"
` + "```" + `
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan-01.md"), []byte(first), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan-02.md"), []byte(second), 0o644))

	tasks, err := LoadPlanDir(dir)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Prepare the workspace", tasks[0].Content)
	assert.Equal(t, "Assemble the report", tasks[1].Content)
	assert.Contains(t, tasks[1].Script, "report.md")
}

func TestLoadPlanDirEmpty(t *testing.T) {
	_, err := LoadPlanDir(t.TempDir())
	assert.ErrorContains(t, err, "no plan files found")
}

func TestLoadPlanDirBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.md"), []byte("just prose, no tasks"), 0o644))

	_, err := LoadPlanDir(dir)
	assert.Error(t, err)
}
