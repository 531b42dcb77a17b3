package validator

import (
	"fmt"
	"strings"

	"github.com/harrison/taskforge/internal/models"
)

// evalInput carries everything a rule can inspect.
type evalInput struct {
	taskLower    string
	output       string
	outputLower  string
	filesWritten []string
}

// rule is one entry in the ordered rule table. applies decides whether the
// rule owns the task; the first applicable rule's verdict is final.
type rule struct {
	name    string
	applies func(in evalInput) bool
	eval    func(in evalInput) models.Verdict
}

func keywordRule(name string, keyword string, eval func(in evalInput) models.Verdict) rule {
	return rule{
		name:    name,
		applies: func(in evalInput) bool { return strings.Contains(in.taskLower, keyword) },
		eval:    eval,
	}
}

func passed() models.Verdict {
	return models.Verdict{Result: models.ValidationPassed}
}

func needsRetry(feedback string) models.Verdict {
	return models.Verdict{Result: models.ValidationNeedsRetry, Feedback: feedback}
}

// placeholderFragments mark generated code that was never filled in.
var placeholderFragments = []string{
	"YOUR_API_KEY",
	"api.example.com",
	"# Implementation here",
	"# Your code here",
	"pass  # TODO",
	"// TODO",
	"<!-- TODO -->",
}

func hasPlaceholder(output string) bool {
	return containsAny(output, placeholderFragments...)
}

func hasSuffix(files []string, suffix string) bool {
	for _, f := range files {
		if strings.HasSuffix(f, suffix) {
			return true
		}
	}
	return false
}

// ruleTable is evaluated top to bottom; the first applicable rule decides.
// Specific situations come first, keyword categories follow in a fixed
// order, and the artifact default closes the table.
var ruleTable = []rule{
	{
		// mkdir-style tasks succeed through the shell, not write_file.
		name: "directory_creation",
		applies: func(in evalInput) bool {
			return strings.Contains(in.taskLower, "create") &&
				strings.Contains(in.taskLower, "directory") &&
				strings.Contains(in.output, "mkdir")
		},
		eval: func(in evalInput) models.Verdict {
			if strings.Contains(in.outputLower, "command executed successfully") ||
				strings.Contains(in.outputLower, "created file:") {
				return passed()
			}
			return needsRetry("Directory was not created. Run mkdir through run_cmd and verify it succeeds.")
		},
	},
	{
		// Exploration tasks produce no artifacts; any inspection counts.
		name: "exploration",
		applies: func(in evalInput) bool {
			return containsAny(in.taskLower, "analyze", "explore", "gather", "document", "review", "thoroughly")
		},
		eval: func(in evalInput) models.Verdict {
			if hasExplorationAction(in.output) {
				return passed()
			}
			return needsRetry("No exploration actions detected. Use read_file(), list_files() or run_cmd() to inspect the project first.")
		},
	},
	keywordRule("create", "create", func(in evalInput) models.Verdict {
		if len(in.filesWritten) == 0 {
			return needsRetry("No files were created. Use write_file() to create the required files.")
		}
		if hasPlaceholder(in.output) {
			return needsRetry(fmt.Sprintf("File %s contains placeholder code. Create actual working implementation.", in.filesWritten[0]))
		}
		return passed()
	}),
	keywordRule("test", "test", func(in evalInput) models.Verdict {
		if len(in.filesWritten) == 0 {
			return needsRetry("No test files created. Create actual test files with working tests.")
		}
		if containsAny(in.outputLower, "error", "failed") {
			return needsRetry("Tests failed to execute. Fix the errors and try again.")
		}
		return passed()
	}),
	keywordRule("implement", "implement", func(in evalInput) models.Verdict {
		if len(in.filesWritten) == 0 {
			return needsRetry("No implementation files created. Create the actual implementation.")
		}
		if containsAny(in.outputLower, "error", "exception") {
			return needsRetry(fmt.Sprintf("Implementation has errors: %s. Fix and retry.", extractError(in.output)))
		}
		return passed()
	}),
	keywordRule("backend", "backend", evalBackend),
	keywordRule("api", "api", evalBackend),
	keywordRule("gui", "gui", func(in evalInput) models.Verdict {
		if strings.Contains(in.taskLower, "html") && !hasSuffix(in.filesWritten, ".html") {
			return needsRetry("No HTML file created for GUI task. Create the HTML file.")
		}
		if strings.Contains(in.taskLower, "javascript") && !hasSuffix(in.filesWritten, ".js") {
			return needsRetry("No JavaScript file created. Create the JS file for functionality.")
		}
		return passed()
	}),
	keywordRule("function", "function", func(in evalInput) models.Verdict {
		if len(in.filesWritten) == 0 {
			return needsRetry("No function implementation created. Create the actual function.")
		}
		if !containsAny(in.output, "def ", "function ", "func ") {
			return needsRetry("No function definition found. Implement the actual function.")
		}
		return passed()
	}),
	{
		// Install tasks are judged by the installer's outcome. Artifacts
		// like a lockfile prove nothing once the tool reported errors.
		name: "install",
		applies: func(in evalInput) bool {
			return containsAny(in.taskLower, "install", "package", "dependenc")
		},
		eval: func(in evalInput) models.Verdict {
			if hasErrorSignal(in.output) {
				return needsRetry("Installation reported errors. Fix the package name or install command and rerun it.")
			}
			return passed()
		},
	},
	{
		// Artifact-implying tasks that wrote nothing need another pass;
		// everything else is accepted.
		name:    "default",
		applies: func(in evalInput) bool { return true },
		eval: func(in evalInput) models.Verdict {
			if len(in.filesWritten) == 0 &&
				containsAny(in.taskLower, "create", "write", "implement", "develop") {
				return needsRetry("No files were created. You must use write_file() to create actual files.")
			}
			return passed()
		},
	},
}

// evalBackend is shared by the backend and api categories.
func evalBackend(in evalInput) models.Verdict {
	if len(in.filesWritten) == 0 {
		return needsRetry("No backend files created. Create actual backend implementation files.")
	}
	if strings.Contains(in.outputLower, "connection") && strings.Contains(in.outputLower, "refused") {
		return needsRetry("Connection refused. Update code to handle connection errors and use correct endpoints.")
	}
	return passed()
}
