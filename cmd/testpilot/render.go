package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/testpilot/pkg/orchestrator"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	coralPink   = lipgloss.Color("#FFCCCB")
	mintGreen   = lipgloss.Color("#A8E6CF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	tipsStyle      = lipgloss.NewStyle().Foreground(mutedGray)
	assistantStyle = lipgloss.NewStyle().Foreground(brightWhite)
	actionStyle    = lipgloss.NewStyle().Foreground(coralPink).Bold(true)
	successStyle   = lipgloss.NewStyle().Foreground(mintGreen)
	errorStyle     = lipgloss.NewStyle().Foreground(salmonPink)
	codeBoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedGray).
			Padding(0, 1)
)

// renderer prints progress and results for a terminal.
type renderer struct {
	out       io.Writer
	formatter string
}

// newRenderer writes to out. Source highlighting is only emitted when color
// is set.
func newRenderer(out io.Writer, color bool) *renderer {
	r := &renderer{out: out, formatter: "noop"}
	if color {
		r.formatter = "terminal256"
	}
	return r
}

// stdoutIsTerminal reports whether stdout is a character device and NO_COLOR
// is unset.
func stdoutIsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (r *renderer) println(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *renderer) header(title, tips string) {
	r.println(headerStyle.Render(title))
	if tips != "" {
		r.println(tipsStyle.Render(tips))
	}
	r.println("")
}

// event prints one progress event. Events carrying the final reply are
// skipped; the reply is printed once the request returns.
func (r *renderer) event(ev *types.ProgressEvent) {
	text := eventText(ev)
	switch ev.Type {
	case types.EventTypeFinalResponse, types.EventTypeAIResponse, types.EventTypeActionComplete:
		return
	case types.EventTypeTestOutput:
		r.println(tipsStyle.Render("  │ " + text))
	case types.EventTypeError, types.EventTypeFinalFailure:
		r.println(errorStyle.Render(fmt.Sprintf("✗ %s: %s", ev.Step, text)))
	case types.EventTypeSuccess:
		r.println(successStyle.Render("✓ " + text))
	case types.EventTypeCodeUpdate:
		r.println(actionStyle.Render("↻ test rewritten (" + ev.Step + ")"))
	case types.EventTypeActionStart:
		r.println(actionStyle.Render("▶ " + text))
	default:
		if text != "" {
			r.println(tipsStyle.Render("· " + text))
		}
	}
}

func eventText(ev *types.ProgressEvent) string {
	switch d := ev.Data.(type) {
	case string:
		return d
	case map[string]interface{}:
		for _, key := range []string{"message", "line", "action"} {
			if s, ok := d[key].(string); ok && s != "" {
				return s
			}
		}
	case types.ActionResult:
		return d.Action + ": " + string(d.Status)
	}
	return ""
}

// reply prints the assistant answer and one line per action result.
func (r *renderer) reply(reply *orchestrator.Reply) {
	r.println("")
	r.println(assistantStyle.Render(reply.UserResponse))
	for _, res := range reply.ActionResults {
		r.result(res)
	}
	r.println("")
}

func (r *renderer) result(res types.ActionResult) {
	switch res.Status {
	case types.StatusNoActionNeeded:
		return
	case types.StatusSuccess:
		r.println(successStyle.Render(fmt.Sprintf("✓ %s: %s", res.Action, resultMessage(res))))
	case types.StatusError, types.StatusUnknownAction:
		r.println(errorStyle.Render(fmt.Sprintf("✗ %s: %s", res.Action, res.Error)))
	default:
		r.println(actionStyle.Render(fmt.Sprintf("• %s: %s", res.Action, resultMessage(res))))
	}
	if w, ok := res.Get("warning"); ok {
		r.println(errorStyle.Render(fmt.Sprintf("  %v", w)))
	}
	if code, ok := res.Get("test_code"); ok {
		if s, ok := code.(string); ok && s != "" {
			r.code(s)
		}
	}
}

func resultMessage(res types.ActionResult) string {
	if m, ok := res.Get("message"); ok {
		return fmt.Sprint(m)
	}
	return string(res.Status)
}

// execution prints the outcome of a fix loop run.
func (r *renderer) execution(res types.ExecutionResult) {
	line := fmt.Sprintf("%s in %.2fs", res.Message(), res.ExecutionTime)
	if res.Attempts > 0 {
		line += fmt.Sprintf(" after %d attempt(s)", res.Attempts)
	}
	if res.Passed() {
		r.println(successStyle.Render("✓ " + line))
	} else {
		r.println(errorStyle.Render("✗ " + line))
	}
	if res.AutoFixed {
		r.println(actionStyle.Render("  the test was rewritten to pass"))
	}
	if c := res.Classification; c != nil {
		r.println(tipsStyle.Render(fmt.Sprintf("  %s (confidence %.2f): %s", c.Category, c.Confidence, c.SuggestedFix)))
	}
	if !res.Passed() && res.Error != "" {
		r.println(errorStyle.Render(strings.TrimSpace(res.Error)))
	}
}

// code prints Python source with syntax highlighting inside a box.
func (r *renderer) code(source string) {
	var sb strings.Builder
	if err := quick.Highlight(&sb, strings.TrimRight(source, "\n"), "python", r.formatter, "monokai"); err != nil {
		sb.Reset()
		sb.WriteString(source)
	}
	r.println(codeBoxStyle.Render(sb.String()))
}

// sessions prints a session listing, most recently active first.
func (r *renderer) sessions(list []session.Summary) {
	if len(list) == 0 {
		r.println(tipsStyle.Render("no sessions"))
		return
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastActive.After(list[j].LastActive)
	})
	for _, s := range list {
		url := "-"
		if s.CurrentURL != nil {
			url = *s.CurrentURL
		}
		r.println(fmt.Sprintf("%s  %s  %s",
			actionStyle.Render(s.SessionID),
			assistantStyle.Render(url),
			tipsStyle.Render(fmt.Sprintf("%d messages, %d test cases, last active %s",
				s.MessageCount, s.TestCasesCount, s.LastActive.Format("2006-01-02 15:04:05"))),
		))
	}
}
