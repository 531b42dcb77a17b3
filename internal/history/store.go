// Package history persists per-attempt execution records to SQLite so
// repeated failures can be analyzed across runs, not just within one
// session.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/taskforge/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Attempt is one recorded execution attempt of a task.
type Attempt struct {
	ID           int64
	TaskID       string
	TaskContent  string
	Attempt      int
	Verdict      models.ValidationResult
	Feedback     string
	Output       string
	FilesWritten []string
	Duration     time.Duration
	CreatedAt    time.Time
}

// TaskStats aggregates a task's attempt history.
type TaskStats struct {
	TotalAttempts  int
	Passed         int
	Failed         int
	CommonPatterns []string
}

// Store manages the SQLite attempt database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the attempt database at dbPath.
// ":memory:" is supported for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks instead of
	// failing when another taskforge process holds the database.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAttempt inserts one attempt record.
func (s *Store) RecordAttempt(ctx context.Context, a *Attempt) error {
	filesJSON := "[]"
	if len(a.FilesWritten) > 0 {
		data, err := json.Marshal(a.FilesWritten)
		if err != nil {
			return fmt.Errorf("marshal files written: %w", err)
		}
		filesJSON = string(data)
	}

	query := `INSERT INTO task_attempts
		(task_id, task_content, attempt, verdict, feedback, output, files_written, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		a.TaskID,
		a.TaskContent,
		a.Attempt,
		string(a.Verdict),
		a.Feedback,
		a.Output,
		filesJSON,
		a.Duration.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("insert task attempt: %w", err)
	}

	a.ID, _ = result.LastInsertId()
	return nil
}

// Attempts returns every recorded attempt for a task, oldest first.
func (s *Store) Attempts(ctx context.Context, taskID string) ([]*Attempt, error) {
	query := `SELECT id, task_id, task_content, attempt, verdict, feedback, output,
		files_written, duration_seconds, created_at
		FROM task_attempts WHERE task_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query task attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// RecentFailures returns the newest non-passed attempts across all tasks,
// newest first, capped at limit.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]*Attempt, error) {
	query := `SELECT id, task_id, task_content, attempt, verdict, feedback, output,
		files_written, duration_seconds, created_at
		FROM task_attempts WHERE verdict != ? ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(models.ValidationPassed), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// Stats aggregates a task's attempt history, including any recognizable
// failure patterns in the failed attempts' output.
func (s *Store) Stats(ctx context.Context, taskID string) (*TaskStats, error) {
	attempts, err := s.Attempts(ctx, taskID)
	if err != nil {
		return nil, err
	}

	stats := &TaskStats{TotalAttempts: len(attempts)}
	var failedOutputs []string
	for _, a := range attempts {
		switch a.Verdict {
		case models.ValidationPassed:
			stats.Passed++
		default:
			stats.Failed++
			if a.Output != "" {
				failedOutputs = append(failedOutputs, a.Output)
			}
		}
	}
	stats.CommonPatterns = ExtractFailurePatterns(failedOutputs)
	return stats, nil
}

// Prune removes attempts older than the retention window. days <= 0 keeps
// everything.
func (s *Store) Prune(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM task_attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune task attempts: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func scanAttempts(rows *sql.Rows) ([]*Attempt, error) {
	var out []*Attempt
	for rows.Next() {
		var (
			a         Attempt
			verdict   string
			filesJSON string
			seconds   float64
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.TaskContent, &a.Attempt, &verdict,
			&a.Feedback, &a.Output, &filesJSON, &seconds, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task attempt: %w", err)
		}
		a.Verdict = models.ValidationResult(verdict)
		a.Duration = time.Duration(seconds * float64(time.Second))
		if err := json.Unmarshal([]byte(filesJSON), &a.FilesWritten); err != nil {
			a.FilesWritten = nil
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// failurePatternKeywords maps a pattern name to the output fragments that
// indicate it.
var failurePatternKeywords = map[string][]string{
	"compilation_error": {
		"compilation error", "build fail", "build error", "parse error",
		"unable to build", "compilation failed",
	},
	"test_failure": {
		"test fail", "tests fail", "test failure", "assertion fail",
		"validation fail",
	},
	"dependency_missing": {
		"package not found", "module not found", "missing package",
		"import error", "cannot find module", "npm err!",
	},
	"permission_denied": {
		"permission denied", "access denied", "forbidden", "unauthorized",
	},
	"timeout": {
		"timed out", "timeout", "deadline exceeded",
	},
	"connection_error": {
		"connection refused", "connection reset", "no such host",
	},
	"runtime_error": {
		"runtime error", "panic", "segfault", "nil pointer",
		"stack overflow", "traceback",
	},
	"syntax_error": {
		"syntax error",
	},
}

// ExtractFailurePatterns identifies the known failure patterns present in a
// set of failed-attempt outputs. Each pattern is reported at most once, in a
// fixed order, so the same failures always summarize the same way.
func ExtractFailurePatterns(outputs []string) []string {
	matched := make(map[string]bool)
	for _, output := range outputs {
		lower := strings.ToLower(output)
		for pattern, keywords := range failurePatternKeywords {
			if matched[pattern] {
				continue
			}
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					matched[pattern] = true
					break
				}
			}
		}
	}

	out := make([]string, 0, len(matched))
	for pattern := range matched {
		out = append(out, pattern)
	}
	sort.Strings(out)
	return out
}
