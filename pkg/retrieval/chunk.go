package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultChunkSize is the maximum chunk length in characters.
const DefaultChunkSize = 1000

// Chunk types, in the order chunks of a page are built.
const (
	ChunkTitle           = "title"
	ChunkMetaDescription = "meta_description"
	ChunkMetaKeywords    = "meta_keywords"
	ChunkTextContent     = "text_content"
	ChunkHTMLStructure   = "html_structure"
	ChunkJavaScript      = "javascript"
	ChunkCSS             = "css"
)

// Chunk is one indexed piece of a page.
type Chunk struct {
	ID          string
	Content     string
	ChunkType   string
	URL         string
	Domain      string
	Path        string
	Title       string
	CreatedAt   string
	ChunkIndex  int
	TotalChunks int
}

// BuildChunks splits a fetched page into typed chunks of at most size
// characters of page content each. Chunk ids are derived from the URL and
// position, so indexing the same page twice produces the same ids.
func BuildChunks(domain, pageURL string, page *PageData, size int) []Chunk {
	if page == nil {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	type part struct {
		kind    string
		content string
	}
	var parts []part

	if page.Title != "" {
		parts = append(parts, part{ChunkTitle, "Page Title: " + page.Title})
	}
	if page.MetaDescription != "" {
		parts = append(parts, part{ChunkMetaDescription, "Page Description: " + page.MetaDescription})
	}
	if page.MetaKeywords != "" {
		parts = append(parts, part{ChunkMetaKeywords, "Page Keywords: " + page.MetaKeywords})
	}

	split := []struct {
		kind   string
		label  string
		source string
	}{
		{ChunkTextContent, "Text Content", page.Text},
		{ChunkHTMLStructure, "HTML Structure", page.HTML},
		{ChunkJavaScript, "JavaScript", page.Scripts},
		{ChunkCSS, "CSS", page.Styles},
	}
	for _, s := range split {
		if strings.TrimSpace(s.source) == "" {
			continue
		}
		for i, text := range SplitText(s.source, size) {
			parts = append(parts, part{s.kind, fmt.Sprintf("%s (Part %d): %s", s.label, i+1, text)})
		}
	}

	path := PagePath(pageURL)
	created := time.Now().UTC().Format(time.RFC3339)
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{
			ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#chunk-%d", pageURL, i))).String(),
			Content:     p.content,
			ChunkType:   p.kind,
			URL:         pageURL,
			Domain:      domain,
			Path:        path,
			Title:       page.Title,
			CreatedAt:   created,
			ChunkIndex:  i,
			TotalChunks: len(parts),
		}
	}
	return chunks
}

// SplitText cuts text into pieces of at most size bytes, breaking after the
// last space or newline inside each window when there is one. Pieces are
// trimmed of surrounding whitespace.
func SplitText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(text) <= size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end < len(text) {
			if brk := strings.LastIndexAny(text[start:end], " \n"); brk > 0 {
				end = start + brk + 1
			}
		} else {
			end = len(text)
		}
		chunks = append(chunks, strings.TrimSpace(text[start:end]))
		start = end
	}
	return chunks
}
