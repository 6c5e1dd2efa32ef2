package prompts

import (
	"strings"
	"testing"

	"github.com/entrhq/testpilot/pkg/types"
)

func TestDecisionPromptBuilder(t *testing.T) {
	prompt := NewDecisionPromptBuilder().
		WithActions([]ActionSpec{
			{Name: "extract_url", Params: []string{"url"}, Description: "remember the page under test"},
			{Name: "no_action"},
		}).
		WithSession("https://example.com", "testing login").
		WithConversation("user: hi\nassistant: hello").
		WithRetrievedContext("Relevant context from 1 embeddings:").
		Build()

	for _, want := range []string{
		AssistantRolePrompt,
		"<available_actions>",
		"- extract_url (parameters: url): remember the page under test",
		"- no_action\n",
		"Current URL: https://example.com",
		"Notes: testing login",
		"<conversation>\nuser: hi\nassistant: hello\n</conversation>",
		"Relevant context from 1 embeddings:",
		`"user_response"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}

func TestDecisionPromptBuilderDefaults(t *testing.T) {
	prompt := NewDecisionPromptBuilder().Build()

	if strings.Contains(prompt, "<available_actions>") {
		t.Error("empty action list should be omitted")
	}
	if strings.Contains(prompt, "<session_state>") {
		t.Error("empty session state should be omitted")
	}
	if strings.Contains(prompt, "<conversation>") {
		t.Error("empty conversation should be omitted")
	}
	if !strings.Contains(prompt, NoContext) {
		t.Error("missing context should render the default")
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("system", "user")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != types.RoleSystem || msgs[0].Content != "system" {
		t.Errorf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != types.RoleUser || msgs[1].Content != "user" {
		t.Errorf("unexpected user message: %+v", msgs[1])
	}
}

func TestCodeGenerationPrompt(t *testing.T) {
	tc := types.TestCase{
		Title:            "Login Form",
		Description:      "submits credentials",
		ExpectedBehavior: "dashboard is shown",
		TestSteps:        []string{"fill user", "click submit"},
		ElementType:      "form",
	}
	prompt := CodeGenerationPrompt(tc, "https://example.com/login", "")

	for _, want := range []string{
		"https://example.com/login",
		"Title: Login Form",
		"Step 2: click submit",
		"test_login_form",
		NoContext,
		"<test_code_rules>",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}

func TestFixPrompt(t *testing.T) {
	prompt := FixPrompt(Failure{
		Source:      "def test_x(): pass",
		Output:      "1 failed",
		Error:       "AssertionError",
		URL:         "https://example.com",
		Requirement: "login works",
		Classification: &types.FailureClassification{
			Category:     types.CategoryAssertionFailed,
			Confidence:   0.7,
			Evidence:     []string{"Assertion failure detected"},
			SuggestedFix: "check the expectation",
		},
	})

	for _, want := range []string{
		"<test_code>\ndef test_x(): pass\n</test_code>",
		"<test_error>\nAssertionError\n</test_error>",
		"<user_requirements>\nlogin works\n</user_requirements>",
		"Category: assertion_failed (confidence 0.70)",
		"Suggested fix: check the expectation",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}

func TestAnalysisPrompt(t *testing.T) {
	prompt := AnalysisPrompt(Failure{Source: "code"})
	if !strings.Contains(prompt, `"likely_causes"`) {
		t.Error("analysis prompt should request the analysis format")
	}
	if strings.Contains(prompt, "<failure_classification>") {
		t.Error("classification section should be omitted when nil")
	}
}
