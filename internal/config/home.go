package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetTaskforgeHome returns the taskforge home directory.
// Priority order:
//  1. TASKFORGE_HOME environment variable (if set)
//  2. .taskforge under the nearest ancestor of the working directory that
//     contains a .taskforge directory or a go.mod file
//  3. .taskforge under the current working directory (fallback)
//
// The directory is created if it doesn't exist.
func GetTaskforgeHome() (string, error) {
	if home := os.Getenv("TASKFORGE_HOME"); home != "" {
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	root := findProjectRoot(cwd)
	if root == "" {
		root = cwd
	}

	home := filepath.Join(root, ".taskforge")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create taskforge home directory: %w", err)
	}
	return home, nil
}

// findProjectRoot walks up from dir looking for an existing .taskforge
// directory or a go.mod file. Returns "" if neither is found.
func findProjectRoot(dir string) string {
	current := dir
	for {
		if info, err := os.Stat(filepath.Join(current, ".taskforge")); err == nil && info.IsDir() {
			return current
		}
		if _, err := os.Stat(filepath.Join(current, "go.mod")); err == nil {
			return current
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
