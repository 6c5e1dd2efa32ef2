package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMatches(t *testing.T) {
	out := FormatMatches([]Match{
		{Content: "Page Title: Login", ChunkType: ChunkTitle, URL: "https://example.com", Title: "Login", Distance: 0.25},
		{Content: strings.Repeat("a", 600), Distance: 1.5},
	})

	assert.True(t, strings.HasPrefix(out, "Relevant context from 2 embeddings:"))
	assert.Contains(t, out, "Embedding 1 (Distance: 0.250):")
	assert.Contains(t, out, "- Type: title")
	assert.Contains(t, out, "- URL: https://example.com")
	assert.Contains(t, out, "- Content: Page Title: Login")
	assert.Contains(t, out, "Embedding 2 (Distance: 1.500):")
	assert.Contains(t, out, "- Type: unknown")
	assert.Contains(t, out, "- Content: "+strings.Repeat("a", 500)+"...")
	assert.NotContains(t, out, strings.Repeat("a", 501))
}

func TestFormatMatchesEmpty(t *testing.T) {
	assert.Equal(t, NoRelevantContext, FormatMatches(nil))
}
