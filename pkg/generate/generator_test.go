package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/llm"
	"github.com/entrhq/testpilot/pkg/llm/llmtest"
	"github.com/entrhq/testpilot/pkg/types"
)

func TestGenerateCases(t *testing.T) {
	provider := llmtest.New(`{"test_cases": [
		{"title": "Login succeeds", "description": "valid credentials", "test_steps": ["fill", "submit"], "element_type": "form"},
		{"title": "Login fails", "element_type": "form"}
	]}`)
	g := New(provider, WithCaseCount(2))

	cases, err := g.GenerateCases(context.Background(), "https://example.com/login", "", "page context")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "Login succeeds", cases[0].Title)
	assert.Equal(t, []string{"fill", "submit"}, cases[0].TestSteps)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Options.JSONResponse)
	require.NotNil(t, calls[0].Options.Temperature)
	assert.Equal(t, 0.7, *calls[0].Options.Temperature)
	assert.Equal(t, 2000, calls[0].Options.MaxTokens)

	user := calls[0].Messages[1].Content
	assert.Contains(t, user, "Generate 2 test cases")
	assert.Contains(t, user, DefaultRequirements)
	assert.Contains(t, user, "page context")
}

func TestGenerateCasesInvalid(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "not json", reply: "sorry, I cannot help"},
		{name: "empty list", reply: `{"test_cases": []}`},
		{name: "missing title", reply: `{"test_cases": [{"description": "no title"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(llmtest.New(tt.reply))
			_, err := g.GenerateCases(context.Background(), "https://example.com", "login", "")
			assert.ErrorIs(t, err, llm.ErrInvalidResponse)
		})
	}
}

func TestGenerateCode(t *testing.T) {
	provider := llmtest.New("Here you go:\n```python\ndef test_login_form():\n    assert True\n```\nGood luck")
	g := New(provider)

	tc := types.TestCase{Title: "Login Form"}
	code, err := g.GenerateCode(context.Background(), tc, "https://example.com", "")
	require.NoError(t, err)

	assert.Equal(t, "test_login_form.py", code.FileName)
	assert.Equal(t, "def test_login_form():\n    assert True", code.Source)
	assert.False(t, code.Fallback)
}

func TestGenerateCodeFallback(t *testing.T) {
	provider := llmtest.New().Push(llmtest.Reply{Err: errors.New("quota exceeded")})
	g := New(provider)

	tc := types.TestCase{Title: "Search-Box works", Description: "searching returns results", ElementType: "input"}
	code, err := g.GenerateCode(context.Background(), tc, "https://example.com", "")
	require.Error(t, err)

	assert.True(t, code.Fallback)
	assert.Equal(t, "test_search_box_works.py", code.FileName)
	assert.Contains(t, code.Source, "def test_search_box_works():")
	assert.Contains(t, code.Source, "searching returns results")
	assert.Contains(t, code.Source, "input elements")
}

func TestFix(t *testing.T) {
	provider := llmtest.New("```python\ndef test_x():\n    assert 1 == 1\n```")
	g := New(provider)

	fixed, err := g.Fix(context.Background(), fixloop.FixRequest{
		Source:      "def test_x():\n    assert 1 == 2",
		Error:       "AssertionError",
		URL:         "https://example.com",
		Requirement: "math works",
		Attempt:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "def test_x():\n    assert 1 == 1", fixed)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Options.Temperature)
	assert.Equal(t, 0.3, *calls[0].Options.Temperature)
	assert.False(t, calls[0].Options.JSONResponse)
	assert.Contains(t, calls[0].Messages[1].Content, "assert 1 == 2")
}

func TestFixError(t *testing.T) {
	g := New(llmtest.New())
	fixed, err := g.Fix(context.Background(), fixloop.FixRequest{Source: "x"})
	assert.Error(t, err)
	assert.Empty(t, fixed)
}

func TestAnalyze(t *testing.T) {
	provider := llmtest.New(`{"explanation": "The selector is wrong", "likely_causes": ["renamed button"], "suggestions": ["use get_by_role"]}`)
	g := New(provider)

	analysis, err := g.Analyze(context.Background(), types.ExecutionResult{
		Status: types.ExecutionFailed,
		Code:   "def test_x(): pass",
		Error:  "TimeoutError",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "The selector is wrong", analysis.Explanation)
	assert.Equal(t, "medium", analysis.FixPriority)
	assert.Equal(t, []string{"use get_by_role"}, analysis.Suggestions)
}

func TestAnalyzeFallback(t *testing.T) {
	g := New(llmtest.New(`{"likely_causes": []}`))

	analysis, err := g.Analyze(context.Background(), types.ExecutionResult{Status: types.ExecutionFailed}, "")
	require.ErrorIs(t, err, llm.ErrInvalidResponse)
	require.NotNil(t, analysis)
	assert.Equal(t, "Unable to analyze the test failure automatically.", analysis.Explanation)
	assert.Equal(t, []string{"Unknown"}, analysis.LikelyCauses)
	assert.True(t, strings.HasPrefix(analysis.AdditionalContext, "Failed to get analysis:"))
}

func TestContextIsTrimmedToBudget(t *testing.T) {
	provider := llmtest.New(`{"test_cases": [{"title": "a"}]}`)
	g := New(provider, WithContextBudget(10))

	long := strings.Repeat("word ", 500)
	_, err := g.GenerateCases(context.Background(), "https://example.com", "x", long)
	require.NoError(t, err)

	user := provider.Calls()[0].Messages[1].Content
	assert.NotContains(t, user, long)
}
