package testexec

import (
	"regexp"
	"strings"

	"github.com/entrhq/testpilot/pkg/llm/parser"
)

var (
	// headless = os.getenv("HEADLESS", "false") == "true"
	envHeadlessAssign = regexp.MustCompile(`(?im)^([ \t]*)(headless(?:_mode)?)\s*=\s*os\.(?:getenv|environ\.get)\(.*$`)

	// headless = False / headless_mode=True
	boolHeadlessAssign = regexp.MustCompile(`(?i)\b(headless(?:_mode)?)\s*=\s*(?:True|False)\b`)

	launchCall = regexp.MustCompile(`(?i)\.launch\(`)

	// headless=<expr> as one keyword argument
	headlessKwarg = regexp.MustCompile(`(?is)^headless\s*=[^=]`)

	browserLaunch = regexp.MustCompile(`\.(?:chromium|firefox|webkit)\.launch\(`)
)

// NormalizeSource prepares model-written test code for unattended runs:
// surrounding markdown fences are removed and every browser launch is
// forced headless.
func NormalizeSource(source string) string {
	return ForceHeadless(parser.StripCodeFences(source))
}

// ForceHeadless rewrites headless toggles so the browser never opens a
// window. Environment-driven and boolean assignments become True, launch
// arguments become headless=True, and a source with no toggle at all gets
// one inserted before its first chromium/firefox/webkit launch.
func ForceHeadless(code string) string {
	code = envHeadlessAssign.ReplaceAllString(code, "${1}${2} = True")
	code = boolHeadlessAssign.ReplaceAllString(code, "${1} = True")
	code = forceLaunchArgs(code)

	if strings.Contains(strings.ToLower(code), "headless") {
		return code
	}
	return insertHeadlessToggle(code)
}

func insertHeadlessToggle(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		loc := browserLaunch.FindStringIndex(line)
		if loc == nil {
			continue
		}

		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		open := loc[1] // just past "launch("
		rest := line[open:]
		if strings.HasPrefix(strings.TrimSpace(rest), ")") {
			line = line[:open] + "headless=headless" + rest
		} else {
			line = line[:open] + "headless=headless, " + rest
		}

		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:i]...)
		out = append(out, indent+"headless = True", line)
		out = append(out, lines[i+1:]...)
		return strings.Join(out, "\n")
	}
	return code
}

// forceLaunchArgs sets headless=True in the argument list of every .launch(
// call. Arguments are split on top-level commas, so nested calls, brackets
// and string literals inside an argument are kept intact.
func forceLaunchArgs(code string) string {
	var b strings.Builder
	cursor := 0
	for _, loc := range launchCall.FindAllStringIndex(code, -1) {
		if loc[0] < cursor {
			continue
		}
		end, commas := scanArgs(code, loc[1])
		if end < 0 {
			break
		}
		b.WriteString(code[cursor:loc[1]])
		b.WriteString(rewriteArgs(code[loc[1]:end], commas, loc[1]))
		cursor = end
	}
	b.WriteString(code[cursor:])
	return b.String()
}

func rewriteArgs(args string, commas []int, offset int) string {
	parts := make([]string, 0, len(commas)+1)
	start := 0
	for _, c := range commas {
		parts = append(parts, args[start:c-offset])
		start = c - offset + 1
	}
	parts = append(parts, args[start:])

	for i, arg := range parts {
		trimmed := strings.TrimLeft(arg, " \t\r\n")
		if !headlessKwarg.MatchString(trimmed) {
			continue
		}
		lead := arg[:len(arg)-len(trimmed)]
		trail := arg[len(strings.TrimRight(arg, " \t\r\n")):]
		parts[i] = lead + "headless=True" + trail
	}
	return strings.Join(parts, ",")
}

// scanArgs walks from start, just past an opening parenthesis, to its
// matching close. It returns the index of that close and of every comma at
// depth zero, or -1 when the call is unbalanced.
func scanArgs(code string, start int) (int, []int) {
	var commas []int
	depth := 0
	var quote byte
	for i := start; i < len(code); i++ {
		ch := code[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				if ch == ')' {
					return i, commas
				}
				return -1, nil
			}
			depth--
		case ',':
			if depth == 0 {
				commas = append(commas, i)
			}
		}
	}
	return -1, nil
}
