// Package action defines the actions testpilot can take for a user and the
// dispatcher that runs them against a session.
//
// An action is a name from a fixed vocabulary plus a typed parameter struct.
// Parameters arriving as loose JSON are decoded and validated when the action
// is dispatched, so a malformed action fails on its own without affecting the
// rest of the list.
package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

// Action names.
const (
	ExtractURL            = "extract_url"
	CreateEmbeddings      = "create_embeddings"
	GenerateTestCases     = "generate_test_cases"
	GenerateTestCode      = "generate_test_code"
	ExecuteTest           = "execute_test"
	ExecuteTests          = "execute_tests"
	AnalyzeFailure        = "analyze_failure"
	ModifyTest            = "modify_test"
	ShowResults           = "show_results"
	ClearSession          = "clear_session"
	NoAction              = "no_action"
	ListDomainPages       = "list_domain_pages"
	GetRelevantEmbeddings = "get_relevant_embeddings"
)

// Action is one step requested by the resolver or a caller.
type Action struct {
	// Name is the action name.
	Name string

	// Params holds the typed parameters. Nil until the action is decoded.
	Params Params

	// raw holds undecoded parameters.
	raw map[string]interface{}
}

// New creates an action with typed parameters.
func New(name string, params Params) Action {
	return Action{Name: name, Params: params}
}

// FromMap creates an action whose parameters are decoded at dispatch.
func FromMap(name string, raw map[string]interface{}) Action {
	return Action{Name: name, raw: raw}
}

// Parameters returns the parameters as a loose map for display.
func (a Action) Parameters() map[string]interface{} {
	if a.Params == nil {
		if a.raw == nil {
			return map[string]interface{}{}
		}
		return a.raw
	}
	data, err := json.Marshal(a.Params)
	if err != nil {
		return a.raw
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]interface{}{}
	}
	return out
}

type wireAction struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// MarshalJSON encodes the action as {"action": ..., "parameters": {...}}.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAction{Action: a.Name, Parameters: a.Parameters()})
}

// UnmarshalJSON reads {"action": ..., "parameters": {...}}. Parameters are
// kept raw and decoded when the action is dispatched.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = FromMap(w.Action, w.Parameters)
	return nil
}

// String implements fmt.Stringer.
func (a Action) String() string {
	return fmt.Sprintf("%s%v", a.Name, a.Parameters())
}

// Handler runs one action. It receives a private copy of the session and
// returns the session to commit with the result. A nil session commits
// nothing. A returned error becomes an error result and discards the copy.
type Handler func(ctx context.Context, s *session.Session, p Params) (*session.Session, types.ActionResult, error)

// CaseGenerator produces test cases for a page.
type CaseGenerator interface {
	GenerateCases(ctx context.Context, url, requirements, pageContext string) ([]types.TestCase, error)
}

// CodeGenerator writes test source for a test case. On failure it returns a
// fallback source together with the error.
type CodeGenerator interface {
	GenerateCode(ctx context.Context, tc types.TestCase, url, pageContext string) (types.GeneratedCode, error)
}

// FailureAnalyzer explains a failed run. On failure it returns a generic
// analysis together with the error.
type FailureAnalyzer interface {
	Analyze(ctx context.Context, result types.ExecutionResult, pageContext string) (*types.FailureAnalysis, error)
}

// TestLoop runs a test through the fix loop.
type TestLoop interface {
	Run(ctx context.Context, req fixloop.Request, r *progress.Reporter) types.ExecutionResult
}

// Turn carries what the current user message contributes to actions.
type Turn struct {
	// Message is the user message being answered.
	Message string

	// Context is retrieval context fetched for the message.
	Context string
}

type turnKey struct{}

// WithTurn returns a context carrying t.
func WithTurn(ctx context.Context, t Turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

// TurnFromContext returns the turn stored in ctx.
func TurnFromContext(ctx context.Context) Turn {
	t, _ := ctx.Value(turnKey{}).(Turn)
	return t
}
