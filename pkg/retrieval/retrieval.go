// Package retrieval indexes web pages into a vector store and retrieves the
// chunks most relevant to a query as prompt context.
//
// Pages are grouped by domain. A page is fetched and indexed once; later
// calls for the same URL report the existing index. Concurrent requests to
// index one URL share a single fetch.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/entrhq/testpilot/pkg/logging"
)

const (
	// DefaultMaxDistance is the largest vector distance accepted as relevant.
	DefaultMaxDistance = 1.8

	// DefaultMaxResults is the number of chunks rendered into a prompt.
	DefaultMaxResults = 3

	// DefaultTimeout bounds a page fetch or a store query.
	DefaultTimeout = 30 * time.Second

	// fallbackResults is the number of general chunks used when nothing is
	// within distance.
	fallbackResults = 2

	// fallbackDistance marks chunks that were not ranked against the query.
	fallbackDistance = 3.0

	// previewPages is the number of existing pages reported with an index result.
	previewPages = 5
)

var logger = logging.MustLogger("retrieval")

// Retriever is the retrieval surface the rest of testpilot depends on.
type Retriever interface {
	// EnsureIndexed indexes the page at url unless it is already indexed.
	EnsureIndexed(ctx context.Context, url string) (*IndexResult, error)

	// RelevantMatches returns up to maxResults chunks of url's domain within
	// maxDistance of query, closest first.
	RelevantMatches(ctx context.Context, query, url string, maxDistance float64, maxResults int) ([]Match, error)

	// RelevantContext renders the relevant chunks as prompt text.
	RelevantContext(ctx context.Context, query, url string, maxDistance float64, maxResults int) (string, error)

	// ListDomainPages returns the pages indexed for url's domain.
	ListDomainPages(ctx context.Context, url string) ([]PageInfo, error)
}

// Store persists chunks and answers similarity queries.
type Store interface {
	// HasPage reports whether chunks for url exist in domain.
	HasPage(ctx context.Context, domain, url string) (bool, error)

	// AddChunks stores chunks and returns how many were stored.
	AddChunks(ctx context.Context, chunks []Chunk) (int, error)

	// Search returns up to limit chunks of domain ranked by similarity to query.
	Search(ctx context.Context, domain, query string, limit int) ([]Match, error)

	// Sample returns up to limit chunks of domain in storage order.
	Sample(ctx context.Context, domain string, limit int) ([]Match, error)

	// Pages returns one entry per indexed page of domain.
	Pages(ctx context.Context, domain string) ([]PageInfo, error)
}

// Fetcher loads a rendered page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*PageData, error)
}

// IndexResult describes the outcome of EnsureIndexed.
type IndexResult struct {
	URL            string     `json:"url"`
	Domain         string     `json:"domain"`
	PagePath       string     `json:"page_path"`
	Title          string     `json:"title,omitempty"`
	ExistingPages  []PageInfo `json:"existing_pages"`
	DomainPages    int        `json:"domain_pages_count"`
	ChunksCreated  int        `json:"chunks_created"`
	Created        bool       `json:"embeddings_created"`
	AlreadyExisted bool       `json:"embeddings_exist"`
}

// Message describes the result for the user.
func (r *IndexResult) Message() string {
	if r.AlreadyExisted {
		return fmt.Sprintf("Embeddings already exist for page %s in domain %s", r.PagePath, r.Domain)
	}
	return fmt.Sprintf("Embeddings created successfully for page %s in domain %s", r.PagePath, r.Domain)
}

// PageInfo identifies an indexed page.
type PageInfo struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// Match is a stored chunk returned by a query.
type Match struct {
	Content   string  `json:"content"`
	ChunkType string  `json:"chunk_type"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Distance  float64 `json:"distance"`
}

// Service implements Retriever on top of a Store and a Fetcher.
type Service struct {
	store     Store
	fetcher   Fetcher
	timeout   time.Duration
	chunkSize int
	group     singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each fetch and store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// NewService creates a retrieval service.
func NewService(store Store, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		fetcher:   fetcher,
		timeout:   DefaultTimeout,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexed implements Retriever. Concurrent calls for one url share a
// single fetch. The shared fetch is bounded by the service timeout only, so
// a caller that gives up returns its own ctx error and leaves the fetch
// running for the others.
func (s *Service) EnsureIndexed(ctx context.Context, url string) (*IndexResult, error) {
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan(url, func() (interface{}, error) {
		return s.index(flight, url)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			logger.Debugf("index request for %s shared an in-flight fetch", url)
		}
		res := *r.Val.(*IndexResult)
		return &res, nil
	}
}

func (s *Service) index(ctx context.Context, url string) (*IndexResult, error) {
	domain := DomainName(url)
	res := &IndexResult{
		URL:      url,
		Domain:   domain,
		PagePath: PagePath(url),
	}

	exists, err := s.hasPage(ctx, domain, url)
	if err != nil {
		return nil, fmt.Errorf("failed to check index for %s: %w", url, err)
	}

	if exists {
		logger.Infof("embeddings already exist for %s in domain %s", url, domain)
		res.AlreadyExisted = true
	} else {
		page, err := s.fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		res.Title = page.Title

		chunks := BuildChunks(domain, url, page, s.chunkSize)
		if len(chunks) == 0 {
			logger.Warnf("no content chunks created for %s", url)
		}
		n, err := s.addChunks(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to store chunks for %s: %w", url, err)
		}
		res.ChunksCreated = n
		res.Created = true
		logger.Infof("created %d chunks for %s in domain %s", n, url, domain)
	}

	pages, err := s.pages(ctx, domain)
	if err != nil {
		logger.Warnf("failed to list pages of domain %s: %v", domain, err)
	}
	res.DomainPages = len(pages)
	if len(pages) > previewPages {
		pages = pages[:previewPages]
	}
	res.ExistingPages = pages
	return res, nil
}

// RelevantMatches implements Retriever.
func (s *Service) RelevantMatches(ctx context.Context, query, url string, maxDistance float64, maxResults int) ([]Match, error) {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	domain := DomainName(url)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Over-fetch so filtering by distance still leaves enough results
	candidates, err := s.store.Search(ctx, domain, query, maxResults*2)
	if err != nil {
		return nil, fmt.Errorf("failed to search domain %s: %w", domain, err)
	}

	matches := make([]Match, 0, maxResults)
	for _, m := range candidates {
		if m.Distance > maxDistance {
			continue
		}
		matches = append(matches, m)
		if len(matches) == maxResults {
			break
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	logger.Debugf("found %d chunks within distance %.2f in domain %s", len(matches), maxDistance, domain)
	return matches, nil
}

// RelevantContext implements Retriever. When nothing is within distance a
// few general chunks of the domain are used instead.
func (s *Service) RelevantContext(ctx context.Context, query, url string, maxDistance float64, maxResults int) (string, error) {
	matches, err := s.RelevantMatches(ctx, query, url, maxDistance, maxResults)
	if err != nil {
		return "", err
	}
	if len(matches) > 0 {
		return FormatMatches(matches), nil
	}

	domain := DomainName(url)
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	general, err := s.store.Sample(sctx, domain, fallbackResults)
	if err != nil {
		return "", fmt.Errorf("failed to sample domain %s: %w", domain, err)
	}
	if len(general) == 0 {
		return NoDomainContext, nil
	}
	for i := range general {
		general[i].Distance = fallbackDistance
	}
	logger.Infof("no relevant chunks for query in domain %s, using %d general chunks", domain, len(general))
	return FormatMatches(general), nil
}

// ListDomainPages implements Retriever.
func (s *Service) ListDomainPages(ctx context.Context, url string) ([]PageInfo, error) {
	return s.pages(ctx, DomainName(url))
}

func (s *Service) hasPage(ctx context.Context, domain, url string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.HasPage(ctx, domain, url)
}

func (s *Service) fetch(ctx context.Context, url string) (*PageData, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("no page fetcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.fetcher.Fetch(ctx, url)
}

func (s *Service) addChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.AddChunks(ctx, chunks)
}

func (s *Service) pages(ctx context.Context, domain string) ([]PageInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	pages, err := s.store.Pages(ctx, domain)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].URL < pages[j].URL
	})
	return pages, nil
}
