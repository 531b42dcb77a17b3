// Package sandbox runs task scripts in isolated bash processes and brokers
// their privileged operations back to the caller.
//
// Each execution owns one child process and a private confirmation file. The
// child is started from an embedded prelude that defines the helper functions
// task scripts use (write_file, read_file, list_files, run_cmd, search_docs).
// File writes and documentation lookups cross the process boundary through a
// file-mediated request/response protocol: the script serializes a request to
// the confirmation file, prints a sentinel line, and polls the file until the
// controller writes an answer or the poll budget expires.
package sandbox

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/harrison/taskforge/internal/logger"
	"github.com/harrison/taskforge/internal/models"
)

//go:embed prelude.sh
var prelude string

const (
	// requestSentinel precedes a one-line summary which is suppressed from
	// user-visible output.
	requestSentinel = "@@TASKFORGE:REQUEST@@"

	// timeoutSentinel is printed by the script when its poll budget runs
	// out before the controller answers.
	timeoutSentinel = "@@TASKFORGE:TIMEOUT@@"

	// confirmFileEnv names the confirmation channel file for the child.
	confirmFileEnv = "TASKFORGE_CONFIRM_FILE"

	// readerGrace bounds how long output finalization waits on the reader
	// goroutines after the process has been killed.
	readerGrace = 2 * time.Second

	// maxLineSize bounds a single scanned output line.
	maxLineSize = 1024 * 1024
)

// requestState tracks the protocol's single in-flight request. The script
// abandons a request when its poll budget expires; an answer written after
// that could clobber whatever the script put on the channel file next, so
// the controller must discard it instead.
type requestState struct {
	seq       atomic.Int64 // last request read from the script
	abandoned atomic.Int64 // highest request the script gave up on
}

// stale reports whether the request with the given sequence number may no
// longer be answered.
func (s *requestState) stale(seq int64) bool {
	return s.abandoned.Load() >= seq || s.seq.Load() != seq
}

// ApprovalFunc decides a write request. It returns whether the write may
// proceed and, on rejection, feedback for the script.
type ApprovalFunc func(req Request) (approved bool, feedback string)

// DocFunc answers a documentation lookup.
type DocFunc func(query string) string

// Executor runs scripts under the sandbox protocol. The zero value rejects
// all write requests and answers documentation lookups with a stub; wire
// Approve and Docs to change that.
type Executor struct {
	// ProjectDir is the working directory scripts run in. Empty means the
	// current directory.
	ProjectDir string

	// Approve resolves write requests. Nil rejects everything.
	Approve ApprovalFunc

	// Docs resolves documentation lookups. Nil answers with a stub.
	Docs DocFunc

	// Log receives protocol warnings. Nil discards them.
	Log logger.Logger

	// BashPath overrides the bash binary, mainly for tests.
	BashPath string
}

// NewExecutor creates an Executor for the given project directory.
func NewExecutor(projectDir string, log logger.Logger) *Executor {
	return &Executor{
		ProjectDir: projectDir,
		Log:        log,
	}
}

// Execute runs code in a fresh sandbox process and returns its outcome.
// The returned error covers setup failures only; script failures, timeouts
// and cancellation are reported through the ExecutionResult.
//
// The child runs in its own process group. If timeout elapses or ctx is
// cancelled, the whole group is killed and the result carries Success=false
// with a timeout or cancellation error.
func (e *Executor) Execute(ctx context.Context, code string, timeout time.Duration) (*models.ExecutionResult, error) {
	start := time.Now()

	workDir, err := os.MkdirTemp("", "taskforge-exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	confirmPath := filepath.Join(workDir, "confirm.json")
	scriptPath := filepath.Join(workDir, "task.sh")
	script := prelude + "\n" + code + "\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0700); err != nil {
		return nil, fmt.Errorf("failed to write sandbox script: %w", err)
	}

	cmd := exec.Command(e.bashPath(), scriptPath)
	cmd.Dir = e.ProjectDir
	cmd.Env = append(os.Environ(), confirmFileEnv+"="+confirmPath)
	// Own process group so a kill reaches the script's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start sandbox process: %w", err)
	}

	// The sandbox holds at most one request in flight, so a buffer of one
	// keeps the reader goroutine from ever blocking on this channel.
	reqCh := make(chan *Request, 1)
	var reqState requestState
	var stdoutBuf, stderrBuf strings.Builder

	var readers sync.WaitGroup
	readers.Add(2)
	go e.readStdout(stdout, &stdoutBuf, confirmPath, reqCh, &reqState, &readers)
	go func() {
		defer readers.Done()
		drainLines(stderr, &stderrBuf)
	}()

	readersDone := make(chan struct{})
	go func() {
		readers.Wait()
		close(readersDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var filesWritten []string
	var killReason string

loop:
	for {
		select {
		case <-readersDone:
			break loop
		case req := <-reqCh:
			if written := e.resolve(req, confirmPath, &reqState); written != "" {
				filesWritten = append(filesWritten, written)
			}
		case <-timer.C:
			killReason = fmt.Sprintf("execution timed out after %s", timeout)
			e.killGroup(cmd)
			e.awaitReaders(readersDone)
			break loop
		case <-ctx.Done():
			killReason = "execution cancelled"
			e.killGroup(cmd)
			e.awaitReaders(readersDone)
			break loop
		}
	}

	// The child can outlive its output pipes, so the deadline stays armed
	// until the process is actually reaped.
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	if killReason != "" {
		waitErr = <-waitCh
	} else {
		select {
		case waitErr = <-waitCh:
		case <-timer.C:
			killReason = fmt.Sprintf("execution timed out after %s", timeout)
			e.killGroup(cmd)
			waitErr = <-waitCh
		case <-ctx.Done():
			killReason = "execution cancelled"
			e.killGroup(cmd)
			waitErr = <-waitCh
		}
	}

	result := &models.ExecutionResult{
		Output:       stdoutBuf.String(),
		FilesWritten: filesWritten,
		Duration:     time.Since(start),
	}

	switch {
	case killReason != "":
		result.Error = killReason
	case waitErr != nil:
		result.Error = strings.TrimSpace(stderrBuf.String())
		if result.Error == "" {
			result.Error = waitErr.Error()
		}
	default:
		result.Success = true
	}

	return result, nil
}

func (e *Executor) bashPath() string {
	if e.BashPath != "" {
		return e.BashPath
	}
	return "bash"
}

// readStdout scans the child's stdout, routing sentinel traffic to reqCh and
// everything else into buf. The summary line following a request sentinel is
// suppressed from the captured output.
func (e *Executor) readStdout(r io.Reader, buf *strings.Builder, confirmPath string, reqCh chan<- *Request, state *requestState, readers *sync.WaitGroup) {
	defer readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	suppressNext := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case suppressNext:
			suppressNext = false
		case line == requestSentinel:
			suppressNext = true
			req, err := readRequest(confirmPath)
			if err != nil {
				e.logWarn(fmt.Sprintf("ignoring malformed confirmation request: %v", err))
				continue
			}
			req.seq = state.seq.Add(1)
			reqCh <- req
		case line == timeoutSentinel:
			state.abandoned.Store(state.seq.Load())
			e.logWarn("sandbox confirmation request timed out unanswered")
		default:
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
}

// resolve answers a pending request through the confirmation file. For an
// approved write it returns the filename, otherwise "". A request the script
// has already abandoned is never answered: the write did not happen, and a
// late response could be misread by the next request polling the same file.
func (e *Executor) resolve(req *Request, confirmPath string, state *requestState) string {
	if state.stale(req.seq) {
		e.logWarn("dropping confirmation request the script abandoned")
		return ""
	}
	switch req.Action {
	case RequestWrite:
		approved, feedback := false, "no approver configured"
		if e.Approve != nil {
			approved, feedback = e.Approve(*req)
		}
		if state.stale(req.seq) {
			e.logWarn(fmt.Sprintf("discarding late answer for abandoned write request: %s", req.Filename))
			return ""
		}
		if err := writeResponse(confirmPath, ApproveResponse(approved, feedback)); err != nil {
			e.logWarn(fmt.Sprintf("failed to answer write request: %v", err))
			return ""
		}
		if approved {
			return req.Filename
		}
	case RequestDocs:
		result := "no documentation available"
		if e.Docs != nil {
			result = e.Docs(req.Query)
		}
		if state.stale(req.seq) {
			e.logWarn("discarding late answer for abandoned docs request")
			return ""
		}
		if err := writeResponse(confirmPath, DocsResponse(result)); err != nil {
			e.logWarn(fmt.Sprintf("failed to answer docs request: %v", err))
		}
	default:
		if err := writeResponse(confirmPath, ApproveResponse(false, "unrecognized request action")); err != nil {
			e.logWarn(fmt.Sprintf("failed to reject unknown request: %v", err))
		}
	}
	return ""
}

// killGroup SIGKILLs the child's process group.
func (e *Executor) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Group already gone; fall back to the process itself.
		cmd.Process.Kill()
	}
}

// awaitReaders waits for both reader goroutines with a bounded grace period
// so a stuck pipe cannot hang the caller after a kill.
func (e *Executor) awaitReaders(readersDone <-chan struct{}) {
	select {
	case <-readersDone:
	case <-time.After(readerGrace):
		e.logWarn("output readers did not drain within grace period")
	}
}

func (e *Executor) logWarn(msg string) {
	if e.Log != nil {
		e.Log.LogWarn(msg)
	}
}

func drainLines(r io.Reader, buf *strings.Builder) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
}
