package types

// Failure categories assigned by the heuristic classifier.
const (
	CategorySelectorBroken  = "selector_broken"
	CategoryTimingFlaky     = "timing_flaky"
	CategoryNetworkFlaky    = "network_flaky"
	CategoryAssertionFailed = "assertion_failed"
	CategoryTestBug         = "test_bug"
	CategoryEnvironment     = "environment"
	CategoryUnknown         = "unknown"
)

// FailureClassification is a heuristic reading of a failed run's output.
type FailureClassification struct {
	Category          string   `json:"category"`
	Evidence          []string `json:"evidence"`
	RecommendedAction string   `json:"recommended_action"`
	SuggestedFix      string   `json:"suggested_fix,omitempty"`
	Confidence        float64  `json:"confidence"`
	IsFlaky           bool     `json:"is_flaky"`
	IsEnvironment     bool     `json:"is_environment"`
}

// FailureAnalysis is the model's explanation of a failed run.
type FailureAnalysis struct {
	Explanation       string   `json:"explanation" validate:"required"`
	LikelyCauses      []string `json:"likely_causes"`
	Suggestions       []string `json:"suggestions"`
	CommonIssues      []string `json:"common_issues"`
	FixPriority       string   `json:"fix_priority"`
	AdditionalContext string   `json:"additional_context"`
}
