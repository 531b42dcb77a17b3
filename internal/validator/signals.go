package validator

import "strings"

// signal is one entry in the ordered signal table. Success signals count as
// meaningful actions; error signals are recorded but never credited.
type signal struct {
	name    string
	success bool
	match   func(output string) bool
}

func containsAny(output string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(output, n) {
			return true
		}
	}
	return false
}

// signalTable is scanned top to bottom against execution output. Order
// matters: the first previously-unseen match is the one credited.
var signalTable = []signal{
	{
		name:    "file_write",
		success: true,
		match:   func(out string) bool { return strings.Contains(out, "Created file:") },
	},
	{
		name:    "shell_success",
		success: true,
		match:   func(out string) bool { return strings.Contains(out, "command executed successfully") },
	},
	{
		name:    "package_install",
		success: true,
		match: func(out string) bool {
			if strings.Contains(out, "added ") && strings.Contains(out, "packages") {
				return true
			}
			return containsAny(out, "npm install", "Successfully installed")
		},
	},
	{
		name:    "file_read",
		success: true,
		match:   func(out string) bool { return strings.Contains(out, "Reading file:") },
	},
	{
		name:    "file_list",
		success: true,
		match:   func(out string) bool { return strings.Contains(out, "Listing files:") },
	},
	{
		name:    "docs_lookup",
		success: true,
		match:   func(out string) bool { return strings.Contains(out, "search_docs") },
	},
	{
		name:    "npm_error",
		success: false,
		match:   func(out string) bool { return strings.Contains(out, "npm ERR!") },
	},
	{
		name:    "error",
		success: false,
		match:   func(out string) bool { return containsAny(out, "Error:", "error:") },
	},
	{
		name:    "exception",
		success: false,
		match:   func(out string) bool { return containsAny(out, "Exception", "Traceback") },
	},
}

// explorationMarkers indicate the script inspected the project rather than
// producing artifacts.
var explorationMarkers = []string{
	"Reading file:",
	"Listing files:",
	"command executed successfully",
	"search_docs",
}

// hasExplorationAction reports whether any exploration helper ran.
func hasExplorationAction(output string) bool {
	return containsAny(output, explorationMarkers...)
}

// hasErrorSignal reports whether any error signal from the signal table
// appears in the output.
func hasErrorSignal(output string) bool {
	for _, s := range signalTable {
		if !s.success && s.match(output) {
			return true
		}
	}
	return false
}
