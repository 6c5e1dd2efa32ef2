package fixloop

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/testpilot/pkg/types"
)

// categoryActions maps failure categories to their recommended action.
var categoryActions = map[string]string{
	types.CategorySelectorBroken:  "update_selector",
	types.CategoryTimingFlaky:     "add_wait",
	types.CategoryNetworkFlaky:    "retry_or_check_target",
	types.CategoryAssertionFailed: "review_expectation",
	types.CategoryTestBug:         "fix_test",
	types.CategoryEnvironment:     "fix_environment",
}

// Classify reads a failed run's output and error text and categorizes the
// failure. It returns nil for a passing result.
func Classify(result types.ExecutionResult) *types.FailureClassification {
	if result.Passed() {
		return nil
	}

	text := result.Error + "\n" + result.Output
	category, confidence, evidence := matchClassificationPattern(text)

	action := categoryActions[category]
	if action == "" {
		action = "manual_review"
	}

	return &types.FailureClassification{
		Category:          category,
		Confidence:        confidence,
		Evidence:          evidence,
		IsFlaky:           category == types.CategoryTimingFlaky || category == types.CategoryNetworkFlaky,
		IsEnvironment:     category == types.CategoryEnvironment || category == types.CategoryNetworkFlaky,
		RecommendedAction: action,
		SuggestedFix:      suggestedFix(category, text),
	}
}

// classificationRule defines a single error pattern matcher.
type classificationRule struct {
	match      func(string) bool
	evidence   func(string) []string
	category   string
	confidence float64
}

var (
	locatorPattern   = regexp.MustCompile(`(?:waiting for|locator\()\s*(?:locator\()?["']([^"']+)["']`)
	assertionPattern = regexp.MustCompile(`(?m)^E\s+(assert .+|AssertionError.*)$`)
)

// classificationRules is evaluated in order; the first match wins.
var classificationRules = []classificationRule{
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "pytest is not installed") ||
				strings.Contains(msg, "ModuleNotFoundError") ||
				strings.Contains(msg, "Executable doesn't exist") ||
				strings.Contains(msg, "playwright install")
		},
		category:   types.CategoryEnvironment,
		confidence: 0.9,
		evidence: func(_ string) []string {
			return []string{"Missing interpreter module or browser binary", "The test cannot run until the environment is fixed"}
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "net::ERR_") || strings.Contains(msg, "NS_ERROR_") ||
				strings.Contains(msg, "Connection refused")
		},
		category:   types.CategoryNetworkFlaky,
		confidence: 0.85,
		evidence: func(msg string) []string {
			return []string{"Network error detected: " + firstMatchingLine(msg, "ERR", "Connection"), "Likely network connectivity or target availability issue"}
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "TimeoutError") && locatorPattern.MatchString(msg)
		},
		category:   types.CategorySelectorBroken,
		confidence: 0.9,
		evidence: func(msg string) []string {
			matches := locatorPattern.FindStringSubmatch(msg)
			return []string{
				fmt.Sprintf("Selector '%s' not found in current DOM", matches[1]),
				"Timeout waiting for locator",
			}
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "TimeoutError") ||
				(strings.Contains(msg, "Timeout ") && strings.Contains(msg, "exceeded"))
		},
		category:   types.CategoryTimingFlaky,
		confidence: 0.8,
		evidence: func(_ string) []string {
			return []string{"Timeout exceeded", "Element or page state might exist but timing is inconsistent"}
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "not attached to the DOM") || strings.Contains(msg, "Element is not attached")
		},
		category:   types.CategoryTimingFlaky,
		confidence: 0.8,
		evidence: func(_ string) []string {
			return []string{"Element detached from DOM during test", "Timing issue - element removed before interaction"}
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "strict mode violation")
		},
		category:   types.CategorySelectorBroken,
		confidence: 0.85,
		evidence: func(_ string) []string {
			return []string{"Locator resolved to more than one element", "Selector needs to be more specific"}
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "AssertionError") || assertionPattern.MatchString(msg)
		},
		category:   types.CategoryAssertionFailed,
		confidence: 0.7,
		evidence: func(msg string) []string {
			evidence := []string{"Assertion failure detected"}
			if m := assertionPattern.FindStringSubmatch(msg); m != nil {
				evidence = append(evidence, strings.TrimSpace(m[1]))
			}
			return evidence
		},
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "SyntaxError") || strings.Contains(msg, "NameError") ||
				strings.Contains(msg, "AttributeError") || strings.Contains(msg, "IndentationError")
		},
		category:   types.CategoryTestBug,
		confidence: 0.85,
		evidence: func(msg string) []string {
			return []string{"Python error in the test source", firstMatchingLine(msg, "Error")}
		},
	},
}

// matchClassificationPattern returns category, confidence and evidence for msg.
func matchClassificationPattern(msg string) (string, float64, []string) {
	for _, rule := range classificationRules {
		if rule.match(msg) {
			return rule.category, rule.confidence, rule.evidence(msg)
		}
	}
	return types.CategoryUnknown, 0.3, []string{"Error pattern not recognized"}
}

var suggestedFixes = map[string]func(string) string{
	types.CategorySelectorBroken: func(msg string) string {
		if m := locatorPattern.FindStringSubmatch(msg); m != nil {
			return fmt.Sprintf("Replace selector '%s' with a role, text or test-id locator present on the page", m[1])
		}
		return "Use a more specific locator such as get_by_role or get_by_test_id"
	},
	types.CategoryTimingFlaky: func(_ string) string {
		return "page.wait_for_load_state('networkidle') before interacting, or expect(locator).to_be_visible()"
	},
	types.CategoryNetworkFlaky: func(_ string) string {
		return "Verify the target URL is reachable from the runner"
	},
	types.CategoryEnvironment: func(msg string) string {
		if strings.Contains(msg, "pytest is not installed") {
			return "pip install pytest"
		}
		return "pip install pytest-playwright && playwright install chromium"
	},
}

func suggestedFix(category, msg string) string {
	gen := suggestedFixes[category]
	if gen == nil {
		return ""
	}
	return gen(msg)
}

func firstMatchingLine(text string, needles ...string) string {
	for _, line := range strings.Split(text, "\n") {
		for _, n := range needles {
			if strings.Contains(line, n) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}
