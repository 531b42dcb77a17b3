// Package logger provides logging for taskforge runs.
//
// The package offers a level-filtered console logger with optional color
// output and a file logger that writes timestamped per-run logs. All
// implementations are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/taskforge/internal/models"
)

// Log level constants for filtering.
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// Logger is the surface the engine logs through.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogTaskResult(result models.TaskResult)
	LogSummary(summary models.RunSummary)
}

// ConsoleLogger writes level-filtered, timestamped log lines to a writer.
// All output is prefixed with [HH:MM:SS] timestamps. Color output is enabled
// automatically when writing to a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger writing to the provided io.Writer.
// If writer is nil, messages are silently discarded. logLevel sets the
// minimum level to emit (trace, debug, info, warn, error, case-insensitive);
// empty or invalid levels default to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether the writer is a TTY that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel lowercases a level and validates it, defaulting to "info".
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}
	return "info"
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		cl.writer.Write([]byte(fmt.Sprintf("[%s] [%s] %s\n", ts, colorLevel(level), message)))
		return
	}
	cl.writer.Write([]byte(fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)))
}

func colorLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogTaskResult logs the outcome of one task at DEBUG level.
// Format: "[HH:MM:SS] Task <id>: <verdict> after <n> attempt(s)"
func (cl *ConsoleLogger) LogTaskResult(result models.TaskResult) {
	if cl.writer == nil || !cl.shouldLog("debug") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	verdict := string(result.Verdict)
	if cl.colorOutput {
		switch result.Verdict {
		case models.ValidationPassed:
			verdict = color.New(color.FgGreen).Sprint(verdict)
		case models.ValidationNeedsRetry:
			verdict = color.New(color.FgYellow).Sprint(verdict)
		case models.ValidationFailed:
			verdict = color.New(color.FgRed).Sprint(verdict)
		}
	}
	line := fmt.Sprintf("[%s] Task %s: %s after %d attempt(s)\n", ts, shortID(result.Task.ID), verdict, result.Attempts)
	cl.writer.Write([]byte(line))
}

// LogSummary logs the run summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(summary models.RunSummary) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var out strings.Builder

	header := "=== Run Summary ==="
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
	}
	fmt.Fprintf(&out, "[%s] %s\n", ts, header)
	fmt.Fprintf(&out, "[%s] Total tasks: %d\n", ts, summary.TotalTasks)

	completed := fmt.Sprintf("Completed: %d", summary.Completed)
	if cl.colorOutput {
		completed = color.New(color.FgGreen).Sprint(completed)
	}
	fmt.Fprintf(&out, "[%s] %s\n", ts, completed)

	failed := fmt.Sprintf("Failed: %d", summary.Failed)
	if cl.colorOutput && summary.Failed > 0 {
		failed = color.New(color.FgRed).Sprint(failed)
	}
	fmt.Fprintf(&out, "[%s] %s\n", ts, failed)
	fmt.Fprintf(&out, "[%s] Duration: %s\n", ts, formatDuration(summary.Duration))

	if len(summary.FailedTasks) > 0 {
		fmt.Fprintf(&out, "[%s] Failed tasks:\n", ts)
		for _, tr := range summary.FailedTasks {
			fmt.Fprintf(&out, "[%s]   - %s: %s\n", ts, tr.Task.Content, tr.Feedback)
		}
	}

	cl.writer.Write([]byte(out.String()))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// shortID truncates a task id for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration converts a time.Duration to a compact human-readable string.
// Examples: "5s", "1m30s", "2h15m".
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger discards all log messages. Useful for tests.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

// LogTrace is a no-op implementation.
func (n *NoOpLogger) LogTrace(string) {}

// LogDebug is a no-op implementation.
func (n *NoOpLogger) LogDebug(string) {}

// LogInfo is a no-op implementation.
func (n *NoOpLogger) LogInfo(string) {}

// LogWarn is a no-op implementation.
func (n *NoOpLogger) LogWarn(string) {}

// LogError is a no-op implementation.
func (n *NoOpLogger) LogError(string) {}

// LogTaskResult is a no-op implementation.
func (n *NoOpLogger) LogTaskResult(models.TaskResult) {}

// LogSummary is a no-op implementation.
func (n *NoOpLogger) LogSummary(models.RunSummary) {}
