package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/taskforge/internal/history"
	"github.com/harrison/taskforge/internal/models"
)

func execHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"history"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// seedHistory writes attempts straight into the default history database
// location under the current directory.
func seedHistory(t *testing.T, dir string, attempts ...*history.Attempt) {
	t.Helper()
	hs, err := history.NewStore(filepath.Join(dir, ".taskforge", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer hs.Close()
	for _, a := range attempts {
		if err := hs.RecordAttempt(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHistoryRecentEmpty(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execHistory(t, "recent")
	if err != nil {
		t.Fatalf("history recent failed: %v", err)
	}
	if !strings.Contains(out, "No failed attempts recorded.") {
		t.Errorf("Expected empty-history message, got: %s", out)
	}
}

func TestHistoryRecentShowsFailures(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	seedHistory(t, dir,
		&history.Attempt{
			TaskID:      "t1",
			TaskContent: "Create the importer",
			Attempt:     1,
			Verdict:     models.ValidationNeedsRetry,
			Feedback:    "No files were created.",
			Duration:    2 * time.Second,
		},
		&history.Attempt{
			TaskID:      "t1",
			TaskContent: "Create the importer",
			Attempt:     2,
			Verdict:     models.ValidationPassed,
			Duration:    3 * time.Second,
		},
	)

	out, err := execHistory(t, "recent", "--limit", "5")
	if err != nil {
		t.Fatalf("history recent failed: %v", err)
	}
	if !strings.Contains(out, "Create the importer") {
		t.Errorf("Expected the failed task, got: %s", out)
	}
	if !strings.Contains(out, "No files were created.") {
		t.Errorf("Expected the validator feedback, got: %s", out)
	}
	if strings.Contains(out, "attempt 2") {
		t.Errorf("Passed attempts should not be listed, got: %s", out)
	}
}

func TestHistoryStats(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	seedHistory(t, dir,
		&history.Attempt{TaskID: "t1", TaskContent: "Create the importer", Attempt: 1, Verdict: models.ValidationNeedsRetry, Output: "npm ERR! missing module"},
		&history.Attempt{TaskID: "t1", TaskContent: "Create the importer", Attempt: 2, Verdict: models.ValidationPassed},
	)

	out, err := execHistory(t, "stats", "t1")
	if err != nil {
		t.Fatalf("history stats failed: %v", err)
	}
	if !strings.Contains(out, "Attempts: 2") || !strings.Contains(out, "Passed:   1") {
		t.Errorf("Expected attempt totals, got: %s", out)
	}
	if !strings.Contains(out, "dependency_missing") {
		t.Errorf("Expected the failure pattern, got: %s", out)
	}
}

func TestHistoryStatsUnknownTask(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execHistory(t, "stats", "nope")
	if err != nil {
		t.Fatalf("history stats failed: %v", err)
	}
	if !strings.Contains(out, "No attempts recorded") {
		t.Errorf("Expected no-attempts message, got: %s", out)
	}
}

func TestHistoryPrune(t *testing.T) {
	chdir(t, t.TempDir())

	out, err := execHistory(t, "prune", "--days", "7")
	if err != nil {
		t.Fatalf("history prune failed: %v", err)
	}
	if !strings.Contains(out, "older than 7 day(s)") {
		t.Errorf("Expected prune report, got: %s", out)
	}

	_, err = execHistory(t, "prune", "--days", "0")
	if err == nil || !strings.Contains(err.Error(), "--days must be positive") {
		t.Errorf("Expected positive-days error, got: %v", err)
	}
}
