package types

import (
	"regexp"
	"strings"
)

// TestCase is a test scenario produced by the case generator. It stays on the
// session until it is superseded or the session is cleared.
type TestCase struct {
	Title            string   `json:"title" validate:"required"`
	Description      string   `json:"description"`
	ExpectedBehavior string   `json:"expected_behavior"`
	TestSteps        []string `json:"test_steps"`
	ElementType      string   `json:"element_type"`
	TestType         string   `json:"test_type,omitempty"`
	Source           string   `json:"html_code,omitempty"`
	TestCode         string   `json:"test_code,omitempty"`
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug returns the title as a python identifier fragment.
func (tc TestCase) Slug() string {
	title := tc.Title
	if title == "" {
		title = "case"
	}
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.NewReplacer(" ", "_", "-", "_").Replace(slug)
	slug = nonIdentChars.ReplaceAllString(slug, "")
	if slug == "" {
		slug = "case"
	}
	return slug
}

// FileName is the name generated code for this case is stored under.
func (tc TestCase) FileName() string {
	return "test_" + tc.Slug() + ".py"
}

// Query joins the descriptive fields into a retrieval query.
func (tc TestCase) Query() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{tc.Title, tc.Description, tc.ExpectedBehavior, tc.ElementType} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(tc.TestSteps) > 0 {
		parts = append(parts, strings.Join(tc.TestSteps, " "))
	}
	return strings.Join(parts, " ")
}

// GeneratedCode is test source produced for a test case.
type GeneratedCode struct {
	FileName string `json:"filename"`
	Source   string `json:"test_code"`

	// Fallback is true when the source is the placeholder template used
	// after code generation failed.
	Fallback bool `json:"fallback"`
}
