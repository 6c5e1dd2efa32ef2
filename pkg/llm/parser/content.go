// Package parser extracts usable content from raw model completions.
package parser

import (
	"regexp"
	"strings"
)

var (
	thinkingBlock = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)

	// a fenced block anywhere in the text, with an optional language tag
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \\t]*\\r?\\n(.*?)```")
)

// StripThinking removes <thinking>...</thinking> blocks some models emit
// before their answer. An unterminated block drops everything after it.
func StripThinking(content string) string {
	content = thinkingBlock.ReplaceAllString(content, "")
	if i := strings.Index(content, "<thinking>"); i >= 0 {
		content = content[:i]
	}
	return strings.TrimSpace(content)
}

// StripCodeFences removes a single pair of surrounding markdown fences,
// for example ```python ... ```. Content without a leading fence is returned
// trimmed but otherwise unchanged.
func StripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// drop the language tag line
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if !strings.ContainsAny(tag, " \t(") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractCode returns the first fenced block in content, or the whole content
// with fences stripped when there is no inner block.
func ExtractCode(content string) string {
	content = StripThinking(content)
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return StripCodeFences(content)
}

// ExtractJSON returns the outermost JSON object or array in content. Fences
// and thinking blocks are removed first. If no bracketed value is found the
// cleaned content is returned as is.
func ExtractJSON(content string) string {
	s := ExtractCode(content)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s
	}
	return s[start : end+1]
}
