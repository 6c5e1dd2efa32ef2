package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	// DefaultClassName is the Weaviate class holding page chunks.
	DefaultClassName = "PageChunk"

	// DefaultVectorizer embeds chunk content on the Weaviate side.
	DefaultVectorizer = "text2vec-openai"

	// pageScanLimit bounds the chunks read when listing a domain's pages.
	pageScanLimit = 10000
)

// WeaviateConfig configures a WeaviateStore.
type WeaviateConfig struct {
	// URL is the Weaviate endpoint, for example http://localhost:8080.
	URL string

	// APIKey authenticates against Weaviate when non-empty.
	APIKey string

	// ClassName overrides DefaultClassName.
	ClassName string

	// Vectorizer overrides DefaultVectorizer.
	Vectorizer string

	// Headers are sent with every request, for example the key of the
	// vectorizer module.
	Headers map[string]string
}

// WeaviateStore implements Store with a Weaviate class. Domains are a
// filterable property of one shared class.
type WeaviateStore struct {
	client     *weaviate.Client
	className  string
	vectorizer string
}

// NewWeaviateStore connects to Weaviate. The schema is created by
// EnsureSchema.
func NewWeaviateStore(cfg WeaviateConfig) (*WeaviateStore, error) {
	u, err := url.Parse(strings.Trim(cfg.URL, "\"' "))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", cfg.URL)
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:    u.Host,
		Scheme:  u.Scheme,
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	s := &WeaviateStore{
		client:     client,
		className:  cfg.ClassName,
		vectorizer: cfg.Vectorizer,
	}
	if s.className == "" {
		s.className = DefaultClassName
	}
	if s.vectorizer == "" {
		s.vectorizer = DefaultVectorizer
	}
	return s, nil
}

// Schema returns the class definition for page chunks.
func (s *WeaviateStore) Schema() *models.Class {
	filterable := new(bool)
	*filterable = true

	field := func(name, description string) *models.Property {
		return &models.Property{
			Name:            name,
			DataType:        []string{"text"},
			Description:     description,
			IndexFilterable: filterable,
			Tokenization:    "field",
		}
	}

	return &models.Class{
		Class:       s.className,
		Description: "A chunk of an indexed web page.",
		Vectorizer:  s.vectorizer,
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			field("chunkType", "Kind of page content the chunk came from."),
			field("url", "Page URL."),
			field("domain", "Sanitized host the page belongs to."),
			field("path", "Page path including the fragment."),
			field("title", "Page title."),
			field("createdAt", "Indexing time, RFC 3339."),
			{
				Name:        "chunkIndex",
				DataType:    []string{"int"},
				Description: "Position of the chunk within the page.",
			},
		},
	}
}

// EnsureSchema creates the class if it does not exist.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.Schema().ClassGetter().WithClassName(s.className).Do(ctx); err == nil {
		logger.Debugf("weaviate class %s already exists", s.className)
		return nil
	}

	logger.Infof("creating weaviate class %s", s.className)
	if err := s.client.Schema().ClassCreator().WithClass(s.Schema()).Do(ctx); err != nil {
		return fmt.Errorf("failed to create weaviate class %s: %w", s.className, err)
	}
	return nil
}

// HasPage implements Store.
func (s *WeaviateStore) HasPage(ctx context.Context, domain, pageURL string) (bool, error) {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			equal("domain", domain),
			equal("url", pageURL),
		})

	objects, err := s.get(ctx, where, nil, 1, graphql.Field{Name: "url"})
	if err != nil {
		return false, err
	}
	return len(objects) > 0, nil
}

// AddChunks implements Store.
func (s *WeaviateStore) AddChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class: s.className,
			ID:    strfmt.UUID(c.ID),
			Properties: map[string]interface{}{
				"content":    c.Content,
				"chunkType":  c.ChunkType,
				"url":        c.URL,
				"domain":     c.Domain,
				"path":       c.Path,
				"title":      c.Title,
				"createdAt":  c.CreatedAt,
				"chunkIndex": c.ChunkIndex,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to import chunks: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, e := range item.Result.Errors.Error {
				logger.Warnf("weaviate rejected chunk %s: %s", item.ID, e.Message)
			}
			continue
		}
		stored++
	}
	return stored, nil
}

// Search implements Store using the class vectorizer for the query.
func (s *WeaviateStore) Search(ctx context.Context, domain, query string, limit int) ([]Match, error) {
	nearText := s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})
	return s.matches(ctx, equal("domain", domain), nearText, limit)
}

// Sample implements Store.
func (s *WeaviateStore) Sample(ctx context.Context, domain string, limit int) ([]Match, error) {
	return s.matches(ctx, equal("domain", domain), nil, limit)
}

// Pages implements Store. Chunks are grouped by URL on the client.
func (s *WeaviateStore) Pages(ctx context.Context, domain string) ([]PageInfo, error) {
	objects, err := s.get(ctx, equal("domain", domain), nil, pageScanLimit,
		graphql.Field{Name: "url"},
		graphql.Field{Name: "path"},
		graphql.Field{Name: "title"},
		graphql.Field{Name: "createdAt"},
	)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var pages []PageInfo
	for _, m := range objects {
		u := getString(m, "url")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		pages = append(pages, PageInfo{
			URL:       u,
			Path:      getString(m, "path"),
			Title:     orUnknown(getString(m, "title")),
			CreatedAt: orUnknown(getString(m, "createdAt")),
		})
	}
	return pages, nil
}

func (s *WeaviateStore) matches(ctx context.Context, where *filters.WhereBuilder, nearText *graphql.NearTextArgumentBuilder, limit int) ([]Match, error) {
	objects, err := s.get(ctx, where, nearText, limit,
		graphql.Field{Name: "content"},
		graphql.Field{Name: "chunkType"},
		graphql.Field{Name: "url"},
		graphql.Field{Name: "title"},
		graphql.Field{Name: "_additional { distance }"},
	)
	if err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(objects))
	for _, m := range objects {
		match := Match{
			Content:   getString(m, "content"),
			ChunkType: getString(m, "chunkType"),
			URL:       getString(m, "url"),
			Title:     getString(m, "title"),
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				match.Distance = d
			}
		}
		out = append(out, match)
	}
	return out, nil
}

// get runs a Get query and returns the objects of the class.
func (s *WeaviateStore) get(ctx context.Context, where *filters.WhereBuilder, nearText *graphql.NearTextArgumentBuilder, limit int, fields ...graphql.Field) ([]map[string]interface{}, error) {
	builder := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(limit)
	if nearText != nil {
		builder = builder.WithNearText(nearText)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query error: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := data[s.className].([]interface{})
	if !ok {
		return nil, nil
	}

	objects := make([]map[string]interface{}, 0, len(raw))
	for _, obj := range raw {
		if m, ok := obj.(map[string]interface{}); ok {
			objects = append(objects, m)
		}
	}
	return objects, nil
}

func equal(path, value string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{path}).
		WithOperator(filters.Equal).
		WithValueText(value)
}

func getString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
