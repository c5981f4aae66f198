package heartbeat

import (
	"bytes"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Task is one checklist line under a HEARTBEAT.md section heading.
type Task struct {
	Section     string
	Description string
	Enabled     bool
}

var checklistParser = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// parseChecklist reads <workingDir>/HEARTBEAT.md and returns every checklist
// line found under its "## Section" headings. A missing file yields no
// tasks rather than an error, matching the reference's tolerant read.
func parseChecklist(workingDir string) ([]Task, error) {
	data, err := os.ReadFile(workingDir + "/HEARTBEAT.md")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseChecklistSource(data), nil
}

// parseChecklistSource walks the markdown AST for level-2 headings and the
// task-list checkbox items nested under them.
func parseChecklistSource(source []byte) []Task {
	doc := checklistParser.Parser().Parse(text.NewReader(source))

	var tasks []Task
	var currentSection string

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 2 {
				currentSection = strings.TrimSpace(extractText(source, node))
			}
		case *ast.ListItem:
			if task, ok := taskFromListItem(source, node); ok {
				task.Section = currentSection
				tasks = append(tasks, task)
			}
		}
		return ast.WalkContinue, nil
	})

	return tasks
}

// taskFromListItem reports whether a list item is a GFM task-list line and,
// if so, its checked state and description text.
func taskFromListItem(source []byte, li *ast.ListItem) (Task, bool) {
	para := li.FirstChild()
	if para == nil {
		return Task{}, false
	}
	checkbox, _ := para.FirstChild().(*east.TaskCheckBox)
	if checkbox == nil {
		return Task{}, false
	}

	var buf bytes.Buffer
	for child := checkbox.NextSibling(); child != nil; child = child.NextSibling() {
		buf.WriteString(extractText(source, child))
		// Only the checklist line itself is the description; a following
		// plain line that markdown folds into the same paragraph is ignored.
		if t, ok := child.(*ast.Text); ok && (t.SoftLineBreak() || t.HardLineBreak()) {
			break
		}
	}

	return Task{
		Description: strings.TrimSpace(buf.String()),
		Enabled:     checkbox.IsChecked,
	}, true
}

// extractText gathers the plain-text content of node and its descendants,
// the same manual-walk approach the reference markdown renderer uses for
// cell/table text extraction.
func extractText(source []byte, node ast.Node) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch v := n.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(source))
		case *ast.String:
			buf.Write(v.Value)
		default:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				walk(c)
			}
		}
	}
	walk(node)
	return buf.String()
}
