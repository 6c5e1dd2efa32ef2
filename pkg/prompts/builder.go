// Package prompts assembles the prompts sent to the language model.
package prompts

import (
	"fmt"
	"strings"

	"github.com/entrhq/testpilot/pkg/types"
)

// ActionSpec describes one action the resolver may choose.
type ActionSpec struct {
	Name        string
	Description string
	Params      []string
}

// DecisionPromptBuilder constructs the system prompt for intent resolution
type DecisionPromptBuilder struct {
	actions        []ActionSpec
	context        string
	conversation   string
	currentURL     string
	sessionContext string
}

// NewDecisionPromptBuilder creates a new prompt builder with default settings
func NewDecisionPromptBuilder() *DecisionPromptBuilder {
	return &DecisionPromptBuilder{}
}

// WithActions sets the actions the model may choose from
func (pb *DecisionPromptBuilder) WithActions(actions []ActionSpec) *DecisionPromptBuilder {
	pb.actions = actions
	return pb
}

// WithRetrievedContext adds page content retrieved for the message
func (pb *DecisionPromptBuilder) WithRetrievedContext(context string) *DecisionPromptBuilder {
	pb.context = context
	return pb
}

// WithConversation adds the rendered recent conversation
func (pb *DecisionPromptBuilder) WithConversation(conversation string) *DecisionPromptBuilder {
	pb.conversation = conversation
	return pb
}

// WithSession adds what the session already knows
func (pb *DecisionPromptBuilder) WithSession(currentURL, sessionContext string) *DecisionPromptBuilder {
	pb.currentURL = currentURL
	pb.sessionContext = sessionContext
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *DecisionPromptBuilder) Build() string {
	var builder strings.Builder

	builder.WriteString(AssistantRolePrompt)
	builder.WriteString("\n\n")

	builder.WriteString(CapabilitiesPrompt)
	builder.WriteString("\n\n")

	if len(pb.actions) > 0 {
		builder.WriteString("<available_actions>\n")
		builder.WriteString(FormatActions(pb.actions))
		builder.WriteString("</available_actions>\n\n")
	}

	builder.WriteString(DecisionRulesPrompt)
	builder.WriteString("\n\n")

	if pb.currentURL != "" || pb.sessionContext != "" {
		builder.WriteString("<session_state>\n")
		if pb.currentURL != "" {
			fmt.Fprintf(&builder, "Current URL: %s\n", pb.currentURL)
		}
		if pb.sessionContext != "" {
			fmt.Fprintf(&builder, "Notes: %s\n", pb.sessionContext)
		}
		builder.WriteString("</session_state>\n\n")
	}

	if pb.conversation != "" {
		builder.WriteString("<conversation>\n")
		builder.WriteString(pb.conversation)
		builder.WriteString("\n</conversation>\n\n")
	}

	builder.WriteString("<relevant_context>\n")
	builder.WriteString(contextOrDefault(pb.context))
	builder.WriteString("\n</relevant_context>\n\n")

	builder.WriteString(ResponseFormatPrompt)

	return builder.String()
}

// FormatActions renders the action catalog one action per line.
func FormatActions(actions []ActionSpec) string {
	var b strings.Builder
	for _, a := range actions {
		b.WriteString("- ")
		b.WriteString(a.Name)
		if len(a.Params) > 0 {
			fmt.Fprintf(&b, " (parameters: %s)", strings.Join(a.Params, ", "))
		}
		if a.Description != "" {
			b.WriteString(": ")
			b.WriteString(a.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BuildMessages pairs a system prompt with a single user prompt.
func BuildMessages(systemPrompt, userPrompt string) []*types.Message {
	return []*types.Message{
		types.NewSystemMessage(systemPrompt),
		types.NewUserMessage(userPrompt),
	}
}

// CaseGenerationPrompt asks for count test cases for url.
func CaseGenerationPrompt(url, requirements, context string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d test cases for the page at %s.\n\n", count, url)
	fmt.Fprintf(&b, "<requirements>\n%s\n</requirements>\n\n", requirements)
	fmt.Fprintf(&b, "<page_context>\n%s\n</page_context>\n\n", contextOrDefault(context))
	b.WriteString(TestCaseFormatPrompt)
	return b.String()
}

// CodeGenerationPrompt asks for an executable test for tc.
func CodeGenerationPrompt(tc types.TestCase, url, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a pytest + Playwright test for the page at %s.\n\n", url)
	b.WriteString("<test_case>\n")
	fmt.Fprintf(&b, "Title: %s\n", tc.Title)
	if tc.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", tc.Description)
	}
	if tc.ExpectedBehavior != "" {
		fmt.Fprintf(&b, "Expected behavior: %s\n", tc.ExpectedBehavior)
	}
	if tc.ElementType != "" {
		fmt.Fprintf(&b, "Element type: %s\n", tc.ElementType)
	}
	for i, step := range tc.TestSteps {
		fmt.Fprintf(&b, "Step %d: %s\n", i+1, step)
	}
	if tc.Source != "" {
		fmt.Fprintf(&b, "Relevant markup:\n%s\n", tc.Source)
	}
	b.WriteString("</test_case>\n\n")
	fmt.Fprintf(&b, "<page_context>\n%s\n</page_context>\n\n", contextOrDefault(context))
	fmt.Fprintf(&b, "Name the test function test_%s.\n\n", tc.Slug())
	b.WriteString(TestCodeRulesPrompt)
	return b.String()
}

// Failure describes a failed run for the fix and analysis prompts.
type Failure struct {
	Classification *types.FailureClassification
	Source         string
	Output         string
	Error          string
	URL            string
	Context        string
	Requirement    string
}

func (f Failure) write(b *strings.Builder) {
	fmt.Fprintf(b, "<test_code>\n%s\n</test_code>\n\n", f.Source)
	fmt.Fprintf(b, "<test_output>\n%s\n</test_output>\n\n", f.Output)
	fmt.Fprintf(b, "<test_error>\n%s\n</test_error>\n\n", f.Error)
	fmt.Fprintf(b, "<url>%s</url>\n\n", f.URL)
	if f.Requirement != "" {
		fmt.Fprintf(b, "<user_requirements>\n%s\n</user_requirements>\n\n", f.Requirement)
	}
	if c := f.Classification; c != nil {
		b.WriteString("<failure_classification>\n")
		fmt.Fprintf(b, "Category: %s (confidence %.2f)\n", c.Category, c.Confidence)
		for _, e := range c.Evidence {
			fmt.Fprintf(b, "Evidence: %s\n", e)
		}
		if c.SuggestedFix != "" {
			fmt.Fprintf(b, "Suggested fix: %s\n", c.SuggestedFix)
		}
		b.WriteString("</failure_classification>\n\n")
	}
	fmt.Fprintf(b, "<page_context>\n%s\n</page_context>\n\n", contextOrDefault(f.Context))
}

// FixPrompt asks for a corrected version of a failing test.
func FixPrompt(f Failure) string {
	var b strings.Builder
	b.WriteString("The following test failed. Analyze the failure and return a corrected, complete test.\n\n")
	f.write(&b)
	b.WriteString(TestCodeRulesPrompt)
	return b.String()
}

// AnalysisPrompt asks for an explanation of a failing test.
func AnalysisPrompt(f Failure) string {
	var b strings.Builder
	b.WriteString("The following test failed. Explain the failure to the user.\n\n")
	f.write(&b)
	b.WriteString(AnalysisFormatPrompt)
	return b.String()
}

func contextOrDefault(context string) string {
	if strings.TrimSpace(context) == "" {
		return NoContext
	}
	return context
}
