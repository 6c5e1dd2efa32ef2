package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello world"}, SplitText("hello world", 1000))
	})

	t.Run("breaks on word boundaries", func(t *testing.T) {
		chunks := SplitText("aaaa bbbb cccc dddd", 10)
		assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, chunks)
	})

	t.Run("hard cut without spaces", func(t *testing.T) {
		chunks := SplitText(strings.Repeat("x", 25), 10)
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.Repeat("x", 10), chunks[0])
		assert.Equal(t, strings.Repeat("x", 5), chunks[2])
	})

	t.Run("no chunk exceeds the size", func(t *testing.T) {
		text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
		for _, c := range SplitText(text, 100) {
			assert.LessOrEqual(t, len(c), 100)
		}
	})
}

func TestBuildChunks(t *testing.T) {
	page := &PageData{
		Title:           "Login",
		MetaDescription: "Sign in page",
		Text:            "Welcome back",
		HTML:            "<form id=\"login\"></form>",
		Scripts:         "console.log(1)",
		Styles:          "/app.css",
	}

	chunks := BuildChunks("example_com", "https://example.com/#/login", page, 1000)
	require.Len(t, chunks, 6)

	types := make([]string, len(chunks))
	for i, c := range chunks {
		types[i] = c.ChunkType
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, 6, c.TotalChunks)
		assert.Equal(t, "/#/login", c.Path)
		assert.Equal(t, "example_com", c.Domain)
		assert.Equal(t, "Login", c.Title)
	}
	assert.Equal(t, []string{
		ChunkTitle, ChunkMetaDescription, ChunkTextContent,
		ChunkHTMLStructure, ChunkJavaScript, ChunkCSS,
	}, types)

	assert.Equal(t, "Page Title: Login", chunks[0].Content)
	assert.Equal(t, "Text Content (Part 1): Welcome back", chunks[2].Content)
}

func TestBuildChunksStableIDs(t *testing.T) {
	page := &PageData{Title: "A", Text: "b"}
	first := BuildChunks("d", "https://example.com", page, 1000)
	second := BuildChunks("d", "https://example.com", page, 1000)
	other := BuildChunks("d", "https://example.com/other", page, 1000)

	require.Len(t, first, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestBuildChunksNilPage(t *testing.T) {
	assert.Empty(t, BuildChunks("d", "https://example.com", nil, 1000))
}
