package fixloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/testpilot/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		errText     string
		category    string
		action      string
		flaky       bool
		environment bool
		fixContains string
	}{
		{
			name:        "missing pytest",
			errText:     "pytest is not installed. Please install pytest: pip install pytest",
			category:    types.CategoryEnvironment,
			action:      "fix_environment",
			environment: true,
			fixContains: "pip install pytest",
		},
		{
			name:        "missing browser",
			output:      "E   playwright._impl._errors.Error: Executable doesn't exist at /root/.cache/ms-playwright/chromium",
			category:    types.CategoryEnvironment,
			action:      "fix_environment",
			environment: true,
			fixContains: "playwright install",
		},
		{
			name:        "network error",
			output:      "E   playwright._impl._errors.Error: Page.goto: net::ERR_NAME_NOT_RESOLVED at https://nope.invalid/",
			category:    types.CategoryNetworkFlaky,
			action:      "retry_or_check_target",
			flaky:       true,
			environment: true,
		},
		{
			name: "locator timeout",
			output: "E   playwright._impl._errors.TimeoutError: Locator.click: Timeout 30000ms exceeded.\n" +
				"E   Call log:\nE     - waiting for locator(\"#submit\")",
			category:    types.CategorySelectorBroken,
			action:      "update_selector",
			fixContains: "#submit",
		},
		{
			name:        "navigation timeout",
			output:      "E   playwright._impl._errors.TimeoutError: Page.goto: Timeout 30000ms exceeded.",
			category:    types.CategoryTimingFlaky,
			action:      "add_wait",
			flaky:       true,
			fixContains: "wait_for_load_state",
		},
		{
			name:     "strict mode",
			output:   "E   playwright._impl._errors.Error: strict mode violation: get_by_text(\"Login\") resolved to 2 elements",
			category: types.CategorySelectorBroken,
			action:   "update_selector",
		},
		{
			name:     "assertion",
			output:   "    def test_title():\n>       assert page.title() == \"Home\"\nE       assert 'Login' == 'Home'",
			category: types.CategoryAssertionFailed,
			action:   "review_expectation",
		},
		{
			name:     "python error in test",
			output:   "E   NameError: name 'pgae' is not defined",
			category: types.CategoryTestBug,
			action:   "fix_test",
		},
		{
			name:     "unrecognized",
			output:   "something odd happened",
			category: types.CategoryUnknown,
			action:   "manual_review",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(types.ExecutionResult{Status: types.ExecutionFailed, Output: tt.output, Error: tt.errText})
			require.NotNil(t, c)

			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.action, c.RecommendedAction)
			assert.Equal(t, tt.flaky, c.IsFlaky)
			assert.Equal(t, tt.environment, c.IsEnvironment)
			assert.NotEmpty(t, c.Evidence)
			assert.Greater(t, c.Confidence, 0.0)
			if tt.fixContains != "" {
				assert.Contains(t, c.SuggestedFix, tt.fixContains)
			}
		})
	}
}

func TestClassifyPassedIsNil(t *testing.T) {
	assert.Nil(t, Classify(types.ExecutionResult{Status: types.ExecutionSuccess}))
}

func TestClassifyAssertionEvidence(t *testing.T) {
	c := Classify(types.ExecutionResult{
		Status: types.ExecutionFailed,
		Output: "E       assert 'Login' == 'Home'",
	})
	require.NotNil(t, c)
	assert.Contains(t, c.Evidence, "assert 'Login' == 'Home'")
}
