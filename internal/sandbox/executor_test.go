package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(t.TempDir(), nil)
}

func TestExecuteSimpleScript(t *testing.T) {
	e := newTestExecutor(t)

	result, err := e.Execute(context.Background(), `echo "hello from the sandbox"`, 10*time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "hello from the sandbox")
	assert.Empty(t, result.Error)
	assert.Empty(t, result.FilesWritten)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestExecuteScriptFailure(t *testing.T) {
	e := newTestExecutor(t)

	result, err := e.Execute(context.Background(), `echo "before the crash"
echo "boom" >&2
exit 3`, 10*time.Second)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Output, "before the crash")
	assert.Contains(t, result.Error, "boom")
}

func TestWriteFileApproved(t *testing.T) {
	e := newTestExecutor(t)
	var seen Request
	e.Approve = func(req Request) (bool, string) {
		seen = req
		return true, ""
	}

	result, err := e.Execute(context.Background(),
		`write_file "hello.txt" "hello world"`, 30*time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, RequestWrite, seen.Action)
	assert.Equal(t, "hello.txt", seen.Filename)
	assert.Equal(t, "hello world", seen.Content)

	assert.Contains(t, result.Output, "Created file: hello.txt")
	assert.Equal(t, []string{"hello.txt"}, result.FilesWritten)

	data, err := os.ReadFile(filepath.Join(e.ProjectDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWriteFileCreatesParentDirs(t *testing.T) {
	e := newTestExecutor(t)
	e.Approve = func(Request) (bool, string) { return true, "" }

	result, err := e.Execute(context.Background(),
		`write_file "src/app/main.js" "console.log(1)"`, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"src/app/main.js"}, result.FilesWritten)
	_, statErr := os.Stat(filepath.Join(e.ProjectDir, "src", "app", "main.js"))
	assert.NoError(t, statErr)
}

func TestWriteFileRejected(t *testing.T) {
	e := newTestExecutor(t)
	e.Approve = func(Request) (bool, string) {
		return false, "use a different filename"
	}

	result, err := e.Execute(context.Background(),
		`write_file "secret.txt" "nope"`, 30*time.Second)
	require.NoError(t, err)

	// Rejected writes never touch the filesystem.
	_, statErr := os.Stat(filepath.Join(e.ProjectDir, "secret.txt"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, result.FilesWritten)
	assert.Contains(t, result.Output, "File write rejected: use a different filename")
}

func TestWriteFileNilApproverRejects(t *testing.T) {
	e := newTestExecutor(t)

	result, err := e.Execute(context.Background(),
		`write_file "anything.txt" "data"`, 30*time.Second)
	require.NoError(t, err)

	assert.Empty(t, result.FilesWritten)
	_, statErr := os.Stat(filepath.Join(e.ProjectDir, "anything.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteFileEscapedContent(t *testing.T) {
	e := newTestExecutor(t)
	var seen Request
	e.Approve = func(req Request) (bool, string) {
		seen = req
		return true, ""
	}

	code := `write_file "quoted.txt" 'line "one"
line two	tabbed'`
	result, err := e.Execute(context.Background(), code, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "line \"one\"\nline two\ttabbed", seen.Content)
	data, err := os.ReadFile(filepath.Join(e.ProjectDir, "quoted.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line \"one\"\nline two\ttabbed", string(data))
	assert.True(t, result.Success)
}

func TestSentinelLinesSuppressed(t *testing.T) {
	e := newTestExecutor(t)
	e.Approve = func(Request) (bool, string) { return true, "" }

	result, err := e.Execute(context.Background(),
		`write_file "clean.txt" "x"`, 30*time.Second)
	require.NoError(t, err)

	assert.NotContains(t, result.Output, "@@TASKFORGE")
	assert.NotContains(t, result.Output, "write request:")
}

func TestConfirmationTimeout(t *testing.T) {
	// A 3-poll budget expires in ~300ms; the approver answers far too late.
	t.Setenv("TASKFORGE_WRITE_POLLS", "3")

	e := newTestExecutor(t)
	e.Approve = func(Request) (bool, string) {
		time.Sleep(2 * time.Second)
		return true, ""
	}

	start := time.Now()
	result, err := e.Execute(context.Background(),
		`write_file "late.txt" "data"
echo "script continued"`, 30*time.Second)
	require.NoError(t, err)

	// The script falls through with a cancellation message instead of
	// hanging on the unanswered request.
	assert.Contains(t, result.Output, "File write cancelled: confirmation timed out")
	assert.Contains(t, result.Output, "script continued")
	assert.Less(t, time.Since(start), 15*time.Second)

	// The approver said yes after the script gave up: the write was skipped,
	// so the result must not claim the file as evidence.
	assert.Empty(t, result.FilesWritten)
	_, statErr := os.Stat(filepath.Join(e.ProjectDir, "late.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSearchDocs(t *testing.T) {
	e := newTestExecutor(t)
	e.Docs = func(query string) string {
		assert.Equal(t, "http servers", query)
		return "Use net/http.\nSee ListenAndServe."
	}

	result, err := e.Execute(context.Background(),
		`search_docs "http servers"`, 30*time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "Use net/http.")
	assert.Contains(t, result.Output, "See ListenAndServe.")
}

func TestSearchDocsNilDocFunc(t *testing.T) {
	e := newTestExecutor(t)

	result, err := e.Execute(context.Background(),
		`search_docs "anything"`, 30*time.Second)
	require.NoError(t, err)

	assert.Contains(t, result.Output, "no documentation available")
}

func TestRunCmdReportsOutcome(t *testing.T) {
	e := newTestExecutor(t)

	result, err := e.Execute(context.Background(), `run_cmd true
run_cmd false || true`, 10*time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "command executed successfully")
	assert.Contains(t, result.Output, "command failed with exit code 1")
}

func TestReadFileAndListFiles(t *testing.T) {
	e := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.ProjectDir, "notes.txt"), []byte("remember this"), 0644))

	result, err := e.Execute(context.Background(), `read_file notes.txt
list_files .`, 10*time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "remember this")
	assert.Contains(t, result.Output, "notes.txt")
}

func TestExecuteTimeoutKillsProcess(t *testing.T) {
	e := newTestExecutor(t)

	start := time.Now()
	result, err := e.Execute(context.Background(), `sleep 60`, 500*time.Millisecond)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteTimeoutSurvivesClosedPipes(t *testing.T) {
	e := newTestExecutor(t)

	// Closing stdout and stderr drains the readers early; the deadline has
	// to hold while the process itself keeps running.
	start := time.Now()
	result, err := e.Execute(context.Background(), "exec >&- 2>&-\nsleep 60", 500*time.Millisecond)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteContextCancellation(t *testing.T) {
	e := newTestExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := e.Execute(ctx, `sleep 60`, time.Minute)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "cancelled")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestMultipleSequentialRequests(t *testing.T) {
	e := newTestExecutor(t)
	var order []string
	e.Approve = func(req Request) (bool, string) {
		order = append(order, req.Filename)
		return true, ""
	}

	result, err := e.Execute(context.Background(), `write_file "a.txt" "1"
write_file "b.txt" "2"
write_file "c.txt" "3"`, 30*time.Second)
	require.NoError(t, err)

	// Requests are resolved strictly in emission order.
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, order)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, result.FilesWritten)
}
