// Package fileutil provides directory scanning with pattern and extension
// filtering. It backs plan-file discovery: pointing run at a directory loads
// every plan document found inside it, in deterministic order.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ScanOptions configures a directory scan.
type ScanOptions struct {
	// Pattern is a regex matched against filenames without their extension.
	Pattern string
	// Extensions lists the file extensions to include (e.g. ".md"). Empty
	// means every extension.
	Extensions []string
	// Recursive enables descending into subdirectories. Hidden directories
	// are always skipped.
	Recursive bool
	// ExcludeDirs names directories to skip (e.g. "node_modules").
	ExcludeDirs []string
}

// ScanResult holds the matched files and any non-fatal errors hit along the
// way.
type ScanResult struct {
	Files  []string // absolute paths, sorted
	Errors []error
}

// ScanDirectory walks dir and collects the files matching opts. Unreadable
// entries are recorded in the result and do not abort the scan; only a bad
// root or an invalid pattern fails outright.
func ScanDirectory(dir string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	var pattern *regexp.Regexp
	if opts.Pattern != "" {
		pattern, err = regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
	}

	extensions := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[strings.ToLower(ext)] = true
	}
	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	result := &ScanResult{}
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, err))
			return nil
		}
		if path == dir {
			return nil
		}

		if d.IsDir() {
			if excluded[d.Name()] || strings.HasPrefix(d.Name(), ".") || !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if len(extensions) > 0 && !extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if pattern != nil {
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			if !pattern.MatchString(stem) {
				return nil
			}
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to resolve path %s: %w", path, err))
			return nil
		}
		result.Files = append(result.Files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Strings(result.Files)
	return result, nil
}
