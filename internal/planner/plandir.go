package planner

import (
	"fmt"

	"github.com/harrison/taskforge/internal/fileutil"
	"github.com/harrison/taskforge/internal/models"
)

// LoadPlanDir loads every Markdown plan file in dir, in filename order, and
// returns their tasks as one combined list. Hidden directories are ignored
// and the scan does not recurse.
func LoadPlanDir(dir string) ([]*models.Task, error) {
	result, err := fileutil.ScanDirectory(dir, fileutil.ScanOptions{
		Extensions: []string{".md"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan directory: %w", err)
	}
	if len(result.Files) == 0 {
		return nil, fmt.Errorf("no plan files found in %s", dir)
	}

	var tasks []*models.Task
	for _, file := range result.Files {
		fileTasks, err := LoadPlanFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		tasks = append(tasks, fileTasks...)
	}
	return tasks, nil
}
