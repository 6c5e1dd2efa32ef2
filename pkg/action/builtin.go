package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/generate"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/retrieval"
	"github.com/entrhq/testpilot/pkg/security/targets"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

// DefaultTestName names a test run that was started without a name.
const DefaultTestName = "Generated Test"

var errRetrievalDisabled = errors.New("page retrieval is not configured")

// Deps are the collaborators of the built-in actions. Nil collaborators make
// the actions that need them fail with an error result.
type Deps struct {
	Retriever retrieval.Retriever
	Cases     CaseGenerator
	Code      CodeGenerator
	Analyzer  FailureAnalyzer
	Loop      TestLoop
	Guard     *targets.Guard

	// MaxDistance and MaxResults bound retrieval for generation context.
	MaxDistance float64
	MaxResults  int
}

type builtins struct {
	deps Deps
}

// RegisterBuiltins registers every built-in action on d.
func RegisterBuiltins(d *Dispatcher, deps Deps) {
	if deps.MaxDistance <= 0 {
		deps.MaxDistance = retrieval.DefaultMaxDistance
	}
	if deps.MaxResults <= 0 {
		deps.MaxResults = retrieval.DefaultMaxResults
	}
	b := &builtins{deps: deps}

	d.Register(ExtractURL, func() Params { return &ExtractURLParams{} }, b.extractURL)
	d.Register(CreateEmbeddings, func() Params { return &URLParams{} }, b.createEmbeddings)
	d.Register(GenerateTestCases, func() Params { return &GenerateTestCasesParams{} }, b.generateTestCases)
	d.Register(GenerateTestCode, nil, b.generateTestCode)
	d.Register(ExecuteTest, func() Params { return &ExecuteTestParams{} }, b.executeTest)
	d.Register(ExecuteTests, func() Params { return &ExecuteTestsParams{} }, b.executeTests)
	d.Register(AnalyzeFailure, nil, b.analyzeFailure)
	d.Register(ModifyTest, func() Params { return &ModifyTestParams{} }, b.modifyTest)
	d.Register(ShowResults, nil, b.showResults)
	d.Register(ClearSession, nil, b.clearSession)
	d.Register(NoAction, nil, b.noAction)
	d.Register(ListDomainPages, func() Params { return &URLParams{} }, b.listDomainPages)
	d.Register(GetRelevantEmbeddings, func() Params { return &RelevantEmbeddingsParams{} }, b.relevantEmbeddings)
}

func (b *builtins) extractURL(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	url := p.(*ExtractURLParams).URL
	if err := b.deps.Guard.Validate(url); err != nil {
		return nil, types.ActionResult{}, err
	}
	s.CurrentURL = url

	domain := retrieval.DomainName(url)
	path := retrieval.PagePath(url)

	var pages []retrieval.PageInfo
	if b.deps.Retriever != nil {
		var err error
		pages, err = b.deps.Retriever.ListDomainPages(ctx, url)
		if err != nil {
			logger.Warnf("failed to list pages of %s: %v", domain, err)
		}
	}

	exists := false
	for _, page := range pages {
		if page.URL == url {
			exists = true
			break
		}
	}

	var message string
	switch {
	case exists:
		message = fmt.Sprintf("Page %s already exists in domain %s", path, domain)
	case len(pages) > 0:
		paths := make([]string, 0, 3)
		for _, page := range pages {
			if len(paths) == 3 {
				break
			}
			paths = append(paths, page.Path)
		}
		message = fmt.Sprintf("Page %s is new. Domain %s has %d existing pages: %s",
			path, domain, len(pages), strings.Join(paths, ", "))
	default:
		message = fmt.Sprintf("Page %s is the first page for domain %s", path, domain)
	}

	preview := pages
	if len(preview) > 5 {
		preview = preview[:5]
	}
	if preview == nil {
		preview = []retrieval.PageInfo{}
	}

	return s, types.NewSuccessResult(ExtractURL, map[string]interface{}{
		"url":                 url,
		"domain":              domain,
		"page_path":           path,
		"embeddings_exist":    exists,
		"current_page_exists": exists,
		"domain_pages_count":  len(pages),
		"existing_pages":      preview,
		"message":             message,
	}), nil
}

func (b *builtins) createEmbeddings(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	url := firstNonEmpty(p.(*URLParams).URL, s.CurrentURL)
	if url == "" {
		return nil, types.ActionResult{}, errors.New("No URL available for embeddings")
	}
	if err := b.deps.Guard.Validate(url); err != nil {
		return nil, types.ActionResult{}, err
	}
	if b.deps.Retriever == nil {
		return nil, types.ActionResult{}, errRetrievalDisabled
	}

	res, err := b.deps.Retriever.EnsureIndexed(ctx, url)
	if err != nil {
		return nil, types.ActionResult{}, err
	}

	s.EmbeddingsCreated = true
	if s.CurrentURL == "" {
		s.CurrentURL = url
	}

	data := map[string]interface{}{
		"url":                res.URL,
		"domain":             res.Domain,
		"page_path":          res.PagePath,
		"embeddings_created": res.Created,
		"embeddings_exist":   res.AlreadyExisted,
		"chunks_created":     res.ChunksCreated,
		"domain_pages_count": res.DomainPages,
		"existing_pages":     res.ExistingPages,
		"message":            res.Message(),
	}
	if res.Title != "" {
		data["title"] = res.Title
	}
	return s, types.NewSuccessResult(CreateEmbeddings, data), nil
}

func (b *builtins) generateTestCases(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	if s.CurrentURL == "" {
		return nil, types.ActionResult{}, errors.New("No URL available for test generation")
	}
	if b.deps.Cases == nil {
		return nil, types.ActionResult{}, errors.New("test case generation is not configured")
	}

	requirements := strings.TrimSpace(p.(*GenerateTestCasesParams).Requirements)
	if requirements == "" {
		requirements = generate.DefaultRequirements
	}

	pageContext := b.pageContext(ctx, requirements, s.CurrentURL)
	cases, err := b.deps.Cases.GenerateCases(ctx, s.CurrentURL, requirements, pageContext)
	if err != nil {
		return nil, types.ActionResult{}, err
	}

	s.TestCases = cases
	return s, types.NewSuccessResult(GenerateTestCases, map[string]interface{}{
		"test_cases":   cases,
		"count":        len(cases),
		"url":          s.CurrentURL,
		"requirements": requirements,
		"message":      fmt.Sprintf("Generated %d test cases for %s", len(cases), s.CurrentURL),
	}), nil
}

func (b *builtins) generateTestCode(ctx context.Context, s *session.Session, _ Params) (*session.Session, types.ActionResult, error) {
	if len(s.TestCases) == 0 {
		return nil, types.ActionResult{}, errors.New("No test cases available for code generation")
	}
	if b.deps.Code == nil {
		return nil, types.ActionResult{}, errors.New("test code generation is not configured")
	}

	tc := s.TestCases[0]
	pageContext := b.pageContext(ctx, tc.Query(), s.CurrentURL)
	code, err := b.deps.Code.GenerateCode(ctx, tc, s.CurrentURL, pageContext)
	if err != nil && code.Source == "" {
		return nil, types.ActionResult{}, err
	}

	tc.TestCode = code.Source
	s.TestCases[0] = tc
	s.GeneratedCode[code.FileName] = code.Source

	res := types.NewSuccessResult(GenerateTestCode, map[string]interface{}{
		"filename":  code.FileName,
		"test_code": code.Source,
		"test_case": tc.Title,
		"fallback":  code.Fallback,
		"message":   fmt.Sprintf("Generated test code for '%s'", tc.Title),
	})
	if err != nil {
		res = res.With("warning", "Code generation failed, a placeholder test was stored: "+err.Error())
	}
	return s, res, nil
}

func (b *builtins) executeTest(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	params := p.(*ExecuteTestParams)
	if b.deps.Loop == nil {
		return nil, types.ActionResult{}, errors.New("test execution is not configured")
	}
	turn := TurnFromContext(ctx)

	req := fixloop.Request{
		Source:      params.PythonCode,
		TestName:    firstNonEmpty(params.TestName, DefaultTestName),
		URL:         firstNonEmpty(params.URL, s.CurrentURL),
		Context:     turn.Context,
		Requirement: firstNonEmpty(params.Requirements, turn.Message),
		MaxRetries:  params.MaxRetries,
	}
	result := b.deps.Loop.Run(ctx, req, progress.FromContext(ctx))

	s.LastResult = &result
	return s, result.ToActionResult(ExecuteTest), nil
}

func (b *builtins) executeTests(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	params := p.(*ExecuteTestsParams)
	name, code, ok := s.FirstGeneratedCode()
	if !ok {
		return nil, types.ActionResult{}, errors.New("No test code available for execution")
	}
	if b.deps.Loop == nil {
		return nil, types.ActionResult{}, errors.New("test execution is not configured")
	}
	turn := TurnFromContext(ctx)

	requirement := turn.Message
	if requirement == "" && len(s.TestCases) > 0 {
		requirement = s.TestCases[0].Query()
	}

	req := fixloop.Request{
		Source:      code,
		TestName:    firstNonEmpty(params.TestName, strings.TrimSuffix(name, ".py")),
		URL:         firstNonEmpty(params.URL, s.CurrentURL),
		Context:     turn.Context,
		Requirement: requirement,
		MaxRetries:  params.MaxRetries,
	}
	result := b.deps.Loop.Run(ctx, req, progress.FromContext(ctx))

	s.LastResult = &result
	if result.AutoFixed && result.Code != "" {
		s.GeneratedCode[name] = result.Code
	}
	return s, result.ToActionResult(ExecuteTests).With("filename", name), nil
}

func (b *builtins) analyzeFailure(ctx context.Context, s *session.Session, _ Params) (*session.Session, types.ActionResult, error) {
	if s.LastResult == nil {
		return nil, types.ActionResult{}, errors.New("No execution results available for analysis")
	}
	last := *s.LastResult
	if last.Passed() {
		return s, types.NewSuccessResult(AnalyzeFailure, map[string]interface{}{
			"test_name": last.TestName,
			"message":   fmt.Sprintf("Test '%s' passed, there is no failure to analyze", last.TestName),
		}), nil
	}
	if b.deps.Analyzer == nil {
		return nil, types.ActionResult{}, errors.New("failure analysis is not configured")
	}

	pageContext := b.pageContext(ctx, last.TestName+" "+last.Error, last.URL)
	analysis, err := b.deps.Analyzer.Analyze(ctx, last, pageContext)
	if analysis == nil {
		if err == nil {
			err = errors.New("analyzer returned no analysis")
		}
		return nil, types.ActionResult{}, err
	}

	res := types.NewSuccessResult(AnalyzeFailure, map[string]interface{}{
		"test_name": last.TestName,
		"analysis":  analysis,
		"message":   analysis.Explanation,
	})
	if last.Classification != nil {
		res = res.With("classification", last.Classification)
	}
	if err != nil {
		res = res.With("analysis_error", err.Error())
	}
	return s, res, nil
}

func (b *builtins) modifyTest(_ context.Context, s *session.Session, _ Params) (*session.Session, types.ActionResult, error) {
	return s, types.NewActionResult(ModifyTest, types.StatusNotImplemented).
		With("message", "Test modification not yet implemented"), nil
}

func (b *builtins) showResults(_ context.Context, s *session.Session, _ Params) (*session.Session, types.ActionResult, error) {
	names := make([]string, 0, len(s.GeneratedCode))
	for name := range s.GeneratedCode {
		names = append(names, name)
	}
	sort.Strings(names)

	data := map[string]interface{}{
		"session":         s.Summary(),
		"test_cases":      s.TestCases,
		"generated_tests": names,
	}
	if s.LastResult != nil {
		data["last_result"] = s.LastResult
		data["message"] = s.LastResult.Message()
	} else {
		data["message"] = "No tests have been executed yet"
	}
	return s, types.NewSuccessResult(ShowResults, data), nil
}

func (b *builtins) clearSession(_ context.Context, s *session.Session, _ Params) (*session.Session, types.ActionResult, error) {
	s.Reset()
	return s, types.NewSuccessResult(ClearSession, map[string]interface{}{
		"session_cleared": true,
		"message":         "Session cleared",
	}), nil
}

func (b *builtins) noAction(_ context.Context, s *session.Session, _ Params) (*session.Session, types.ActionResult, error) {
	return s, types.NewActionResult(NoAction, types.StatusNoActionNeeded), nil
}

func (b *builtins) listDomainPages(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	url := firstNonEmpty(p.(*URLParams).URL, s.CurrentURL)
	if url == "" {
		return nil, types.ActionResult{}, ErrNoURL
	}
	if b.deps.Retriever == nil {
		return nil, types.ActionResult{}, errRetrievalDisabled
	}

	pages, err := b.deps.Retriever.ListDomainPages(ctx, url)
	if err != nil {
		return nil, types.ActionResult{}, err
	}
	if pages == nil {
		pages = []retrieval.PageInfo{}
	}
	domain := retrieval.DomainName(url)
	return s, types.NewSuccessResult(ListDomainPages, map[string]interface{}{
		"domain":      domain,
		"pages_count": len(pages),
		"pages":       pages,
		"message":     fmt.Sprintf("Found %d pages in domain %s", len(pages), domain),
	}), nil
}

func (b *builtins) relevantEmbeddings(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error) {
	params := p.(*RelevantEmbeddingsParams)
	url := firstNonEmpty(params.URL, s.CurrentURL)
	if strings.TrimSpace(params.Query) == "" || url == "" {
		return nil, types.ActionResult{}, ErrNoQueryOrURL
	}
	if b.deps.Retriever == nil {
		return nil, types.ActionResult{}, errRetrievalDisabled
	}

	maxDistance := params.MaxDistance
	if maxDistance <= 0 {
		maxDistance = retrieval.DefaultMaxDistance
	}
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = retrieval.DefaultMaxResults
	}

	matches, err := b.deps.Retriever.RelevantMatches(ctx, params.Query, url, maxDistance, maxResults)
	if err != nil {
		return nil, types.ActionResult{}, err
	}
	if matches == nil {
		matches = []retrieval.Match{}
	}
	return s, types.NewSuccessResult(GetRelevantEmbeddings, map[string]interface{}{
		"embeddings_found": len(matches),
		"max_distance":     maxDistance,
		"context":          retrieval.FormatMatches(matches),
		"embeddings":       matches,
	}), nil
}

// pageContext fetches retrieval context for generation. Failures degrade to
// no context.
func (b *builtins) pageContext(ctx context.Context, query, url string) string {
	if b.deps.Retriever == nil || url == "" {
		return ""
	}
	text, err := b.deps.Retriever.RelevantContext(ctx, query, url, b.deps.MaxDistance, b.deps.MaxResults)
	if err != nil {
		logger.Warnf("failed to retrieve context for %s: %v", url, err)
		return ""
	}
	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
