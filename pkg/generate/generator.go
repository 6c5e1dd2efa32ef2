// Package generate turns page context into test cases and test code, and
// repairs or explains failing tests, using a language model.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/llm"
	"github.com/entrhq/testpilot/pkg/llm/parser"
	"github.com/entrhq/testpilot/pkg/llm/tokenizer"
	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/prompts"
	"github.com/entrhq/testpilot/pkg/types"
)

const (
	// DefaultCaseCount is the number of test cases requested per generation.
	DefaultCaseCount = 5

	// DefaultRequirements is used when the user gave no requirements.
	DefaultRequirements = "general functionality"

	defaultTemperature    = 0.7
	defaultFixTemperature = 0.3
	defaultMaxTokens      = 2000
	defaultContextBudget  = 3000
)

var logger = logging.MustLogger("generate")

// Generator implements test case generation, code generation, failure
// analysis and test repair on top of one provider.
type Generator struct {
	provider       llm.Provider
	tokenizer      *tokenizer.Tokenizer
	temperature    float64
	fixTemperature float64
	maxTokens      int
	contextBudget  int
	caseCount      int
}

// Option configures a Generator.
type Option func(*Generator)

// WithTemperature sets the sampling temperature for generation.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithFixTemperature sets the sampling temperature for repair and analysis.
func WithFixTemperature(t float64) Option {
	return func(g *Generator) {
		g.fixTemperature = t
	}
}

// WithMaxTokens bounds every completion.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTokenizer sets the tokenizer used to fit context into the budget.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(g *Generator) {
		g.tokenizer = t
	}
}

// WithContextBudget bounds retrieved context in tokens.
func WithContextBudget(n int) Option {
	return func(g *Generator) {
		g.contextBudget = n
	}
}

// WithCaseCount sets how many test cases are requested.
func WithCaseCount(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.caseCount = n
		}
	}
}

// New creates a generator.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:       provider,
		temperature:    defaultTemperature,
		fixTemperature: defaultFixTemperature,
		maxTokens:      defaultMaxTokens,
		contextBudget:  defaultContextBudget,
		caseCount:      DefaultCaseCount,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type caseList struct {
	TestCases []types.TestCase `json:"test_cases" validate:"required,min=1,dive"`
}

func (c *caseList) Validate() error {
	return types.ValidateStruct(c)
}

// GenerateCases asks the model for test cases covering requirements on url.
func (g *Generator) GenerateCases(ctx context.Context, url, requirements, pageContext string) ([]types.TestCase, error) {
	if strings.TrimSpace(requirements) == "" {
		requirements = DefaultRequirements
	}

	msgs := prompts.BuildMessages(
		prompts.TestAuthorRolePrompt,
		prompts.CaseGenerationPrompt(url, requirements, g.fit(pageContext), g.caseCount),
	)

	var out caseList
	if err := llm.CompleteJSON(ctx, g.provider, msgs, &out,
		llm.WithTemperature(g.temperature), llm.WithMaxTokens(g.maxTokens)); err != nil {
		return nil, fmt.Errorf("failed to generate test cases: %w", err)
	}

	logger.Infof("generated %d test cases for %s", len(out.TestCases), url)
	return out.TestCases, nil
}

// GenerateCode writes test source for tc. When the model call fails a
// placeholder template is returned with Fallback set, together with the
// error that caused it.
func (g *Generator) GenerateCode(ctx context.Context, tc types.TestCase, url, pageContext string) (types.GeneratedCode, error) {
	msgs := prompts.BuildMessages(
		prompts.TestAuthorRolePrompt,
		prompts.CodeGenerationPrompt(tc, url, g.fit(pageContext)),
	)

	text, err := llm.CompleteText(ctx, g.provider, msgs,
		llm.WithTemperature(g.temperature), llm.WithMaxTokens(g.maxTokens))
	if err != nil {
		logger.Warnf("code generation for %q failed, using fallback template: %v", tc.Title, err)
		return FallbackCode(tc), err
	}

	return types.GeneratedCode{
		FileName: tc.FileName(),
		Source:   parser.ExtractCode(text),
	}, nil
}

// Fix returns corrected source for a failed attempt. It implements
// fixloop.Fixer.
func (g *Generator) Fix(ctx context.Context, req fixloop.FixRequest) (string, error) {
	msgs := prompts.BuildMessages(
		prompts.QAEngineerRolePrompt,
		prompts.FixPrompt(prompts.Failure{
			Classification: req.Classification,
			Source:         req.Source,
			Output:         req.Output,
			Error:          req.Error,
			URL:            req.URL,
			Context:        g.fit(req.Context),
			Requirement:    req.Requirement,
		}),
	)

	text, err := llm.CompleteText(ctx, g.provider, msgs,
		llm.WithTemperature(g.fixTemperature), llm.WithMaxTokens(g.maxTokens))
	if err != nil {
		return "", fmt.Errorf("failed to fix test: %w", err)
	}

	logger.Debugf("received fixed test code for attempt %d (%d characters)", req.Attempt, len(text))
	return parser.ExtractCode(text), nil
}

// Analyze explains a failed run. When the model call or decoding fails, a
// generic analysis is returned with the error.
func (g *Generator) Analyze(ctx context.Context, result types.ExecutionResult, pageContext string) (*types.FailureAnalysis, error) {
	msgs := prompts.BuildMessages(
		prompts.QAEngineerRolePrompt,
		prompts.AnalysisPrompt(prompts.Failure{
			Classification: result.Classification,
			Source:         result.Code,
			Output:         result.Output,
			Error:          result.Error,
			URL:            result.URL,
			Context:        g.fit(pageContext),
		}),
	)

	var analysis types.FailureAnalysis
	if err := llm.CompleteJSON(ctx, g.provider, msgs, &analysis,
		llm.WithTemperature(g.fixTemperature), llm.WithMaxTokens(g.maxTokens)); err != nil {
		logger.Warnf("failure analysis for %q failed: %v", result.TestName, err)
		return FallbackAnalysis(err), err
	}

	if analysis.FixPriority == "" {
		analysis.FixPriority = "medium"
	}
	return &analysis, nil
}

// fit trims retrieved context to the token budget.
func (g *Generator) fit(pageContext string) string {
	return g.tokenizer.Truncate(pageContext, g.contextBudget)
}

// FallbackCode is the placeholder test written when generation fails.
func FallbackCode(tc types.TestCase) types.GeneratedCode {
	description := tc.Description
	if description == "" {
		description = "Test case description"
	}
	elementType := tc.ElementType
	if elementType == "" {
		elementType = "element"
	}

	var b strings.Builder
	b.WriteString("import pytest\n")
	b.WriteString("from playwright.sync_api import expect\n\n\n")
	fmt.Fprintf(&b, "def test_%s():\n", tc.Slug())
	fmt.Fprintf(&b, "    \"\"\"\n    %s\n    \"\"\"\n", description)
	fmt.Fprintf(&b, "    # Placeholder generated without a model response; implement for %s elements\n", elementType)
	b.WriteString("    pytest.skip(\"test body was not generated\")\n")

	return types.GeneratedCode{
		FileName: tc.FileName(),
		Source:   b.String(),
		Fallback: true,
	}
}

// FallbackAnalysis is the analysis reported when the model cannot explain a
// failure.
func FallbackAnalysis(err error) *types.FailureAnalysis {
	extra := ""
	if err != nil {
		extra = "Failed to get analysis: " + err.Error()
	}
	return &types.FailureAnalysis{
		Explanation:       "Unable to analyze the test failure automatically.",
		LikelyCauses:      []string{"Unknown"},
		Suggestions:       []string{"Check the test output manually for debugging"},
		FixPriority:       "medium",
		AdditionalContext: extra,
	}
}
