package planner

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/taskforge/internal/models"
)

// PlanTask is one task section from a markdown plan file.
type PlanTask struct {
	Number   string
	Name     string
	Priority models.Priority
	Script   string // fenced bash/sh block, if the section has one
	Notes    string // remaining section prose
}

// MarkdownParser reads plan files written as "## Task N: name" sections.
// Each section may carry a "Priority: high|medium|low" line and a fenced
// bash code block holding the script to execute for that task.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a MarkdownParser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

var (
	taskHeadingRe  = regexp.MustCompile(`^Task\s+(\d+):\s+(.+)$`)
	// matches the extracted text of lines like "**Priority:** high"
	priorityLineRe = regexp.MustCompile(`(?im)^Priority:?\s*(high|medium|low)\s*$`)
)

// Parse reads a markdown plan and returns its task sections in file order.
func (p *MarkdownParser) Parse(r io.Reader) ([]PlanTask, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(source))

	var tasks []PlanTask
	var current *PlanTask
	var notes strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Notes = strings.TrimSpace(notes.String())
		tasks = append(tasks, *current)
		current = nil
		notes.Reset()
	}

	// Task sections are delimited by level-2 headings, so a walk over the
	// document's direct children visits their content in order.
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok && heading.Level == 2 {
			flush()
			headingText := nodeText(heading, source)
			if m := taskHeadingRe.FindStringSubmatch(headingText); m != nil {
				current = &PlanTask{
					Number:   m[1],
					Name:     strings.TrimSpace(m[2]),
					Priority: models.PriorityMedium,
				}
			}
			continue
		}
		if current == nil {
			continue
		}

		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			lang := string(node.Language(source))
			if lang == "bash" || lang == "sh" || lang == "" {
				current.Script = blockText(node, source)
			}
		default:
			chunk := nodeText(n, source)
			if m := priorityLineRe.FindStringSubmatch(chunk); m != nil {
				current.Priority = models.ParsePriority(m[1])
			}
			notes.WriteString(chunk)
			notes.WriteString("\n")
		}
	}
	flush()

	return tasks, nil
}

// LoadPlanFile parses a plan file into store-ready tasks, preserving file
// order and attaching each section's script.
func LoadPlanFile(path string) ([]*models.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()

	sections, err := NewMarkdownParser().Parse(f)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("plan file %s contains no task sections", path)
	}

	tasks := make([]*models.Task, 0, len(sections))
	for _, section := range sections {
		task := models.NewTask(section.Name, section.Priority)
		task.Script = section.Script
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// nodeText extracts the plain text of a node and its descendants.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// blockText extracts the raw lines of a fenced code block.
func blockText(n *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}
