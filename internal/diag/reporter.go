package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats diagnostics for terminal output.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter for a source file. Source may be empty when
// no text is available; context lines are then omitted.
func NewReporter(filename, source string) *Reporter {
	var lines []string
	if source != "" {
		lines = strings.Split(source, "\n")
	}
	return &Reporter{filename: filename, lines: lines}
}

// FormatWarning renders a warning in the compiler's caret style.
func (r *Reporter) FormatWarning(w Warning) string {
	head := color.New(color.FgYellow, color.Bold).SprintFunc()
	return r.format(head("warning"), w.Code, w.Message, w.Loc.Line, w.Loc.Column)
}

// FormatError renders a fatal error.
func (r *Reporter) FormatError(e *Error) string {
	head := color.New(color.FgRed, color.Bold).SprintFunc()
	return r.format(head("error"), e.Code, e.Message, e.Loc.Line, e.Loc.Column)
}

func (r *Reporter) format(level, code, message string, line, col int) string {
	var b strings.Builder
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	b.WriteString(fmt.Sprintf("%s[%s]: %s\n", level, code, message))
	b.WriteString(fmt.Sprintf("  %s %s:%d:%d\n", dim("-->"), r.filename, line, col))

	if line > 0 && line <= len(r.lines) {
		b.WriteString(fmt.Sprintf("  %s\n", dim("|")))
		b.WriteString(fmt.Sprintf("%s %s %s\n", bold(fmt.Sprintf("%d", line)), dim("|"), r.lines[line-1]))
		if col > 0 {
			caret := strings.Repeat(" ", col-1) + "^"
			b.WriteString(fmt.Sprintf("  %s %s\n", dim("|"), color.New(color.FgHiRed).Sprint(caret)))
		}
	}
	return b.String()
}
