package retrieval

import (
	"fmt"
	"strings"
)

// Context texts used when a query yields nothing to render.
const (
	NoRelevantContext = "No relevant context found."
	NoDomainContext   = "No context available for this domain."
)

// previewLength caps the content rendered per match.
const previewLength = 500

// FormatMatches renders matches as prompt context.
func FormatMatches(matches []Match) string {
	if len(matches) == 0 {
		return NoRelevantContext
	}

	parts := make([]string, 0, len(matches)+1)
	parts = append(parts, fmt.Sprintf("Relevant context from %d embeddings:", len(matches)))

	for i, m := range matches {
		content := m.Content
		if len(content) > previewLength {
			content = content[:previewLength] + "..."
		}
		parts = append(parts, fmt.Sprintf("\nEmbedding %d (Distance: %.3f):\n- Type: %s\n- URL: %s\n- Title: %s\n- Content: %s\n",
			i+1, m.Distance, orUnknown(m.ChunkType), orUnknown(m.URL), orUnknown(m.Title), content))
	}
	return strings.Join(parts, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
