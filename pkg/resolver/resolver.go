// Package resolver turns a user message into a reply and an ordered list of
// actions by asking the language model for a structured decision.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/testpilot/pkg/action"
	"github.com/entrhq/testpilot/pkg/llm"
	"github.com/entrhq/testpilot/pkg/llm/tokenizer"
	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/prompts"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

const (
	// DefaultTimeout bounds one resolution call.
	DefaultTimeout = 60 * time.Second

	// DefaultUserResponse replaces an empty reply in a valid decision.
	DefaultUserResponse = "I understand your request."

	defaultTemperature   = 0.7
	defaultMaxTokens     = 2000
	defaultContextBudget = 3000
)

var logger = logging.MustLogger("resolver")

// SessionUpdates are the session fields the model may change.
type SessionUpdates struct {
	CurrentURL string `json:"current_url,omitempty" validate:"omitempty,url"`
	Context    string `json:"context,omitempty"`
}

// Decision is the structured answer of the model.
type Decision struct {
	UserResponse   string          `json:"user_response"`
	Actions        []action.Action `json:"actions"`
	SessionUpdates SessionUpdates  `json:"session_updates"`

	// Fallback is set when the model answer could not be used.
	Fallback bool `json:"-"`
}

// Validate rejects decisions the dispatcher cannot act on.
func (d *Decision) Validate() error {
	for i, a := range d.Actions {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("actions[%d] has no action name", i)
		}
	}
	return types.ValidateStruct(d.SessionUpdates)
}

// Fallback is the decision used when the model answer is unusable.
func Fallback(message string) *Decision {
	return &Decision{
		UserResponse: fmt.Sprintf("I understand you said: %s. Let me help you with that.", message),
		Actions:      []action.Action{action.FromMap(action.NoAction, nil)},
		Fallback:     true,
	}
}

// ErrorDecision is the decision used when the model could not be reached.
func ErrorDecision(err error) *Decision {
	return &Decision{
		UserResponse: fmt.Sprintf("I encountered an error processing your request: %v", err),
		Actions:      []action.Action{action.FromMap(action.NoAction, nil)},
		Fallback:     true,
	}
}

// Request is the input of one resolution.
type Request struct {
	Message string

	// RetrievedContext is page content found for the message, if any.
	RetrievedContext string

	// Session is the snapshot the decision is made for. May be nil.
	Session *session.Session
}

// Resolver asks the model what to do with a user message.
type Resolver struct {
	provider      llm.Provider
	tokenizer     *tokenizer.Tokenizer
	actions       []prompts.ActionSpec
	timeout       time.Duration
	temperature   float64
	maxTokens     int
	contextBudget int
	history       int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTokenizer sets the tokenizer used to fit retrieved context.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(r *Resolver) {
		r.tokenizer = t
	}
}

// WithActions replaces the action catalog shown to the model.
func WithActions(actions []prompts.ActionSpec) Option {
	return func(r *Resolver) {
		r.actions = actions
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Resolver) {
		r.temperature = t
	}
}

// WithContextBudget bounds retrieved context in tokens.
func WithContextBudget(n int) Option {
	return func(r *Resolver) {
		r.contextBudget = n
	}
}

// WithHistory sets how many recent messages are shown to the model.
func WithHistory(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.history = n
		}
	}
}

// New creates a resolver offering the built-in action catalog.
func New(provider llm.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		provider:      provider,
		actions:       action.Catalog(),
		timeout:       DefaultTimeout,
		temperature:   defaultTemperature,
		maxTokens:     defaultMaxTokens,
		contextBudget: defaultContextBudget,
		history:       session.DefaultContextMessages,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the decision for req. It always returns a usable decision:
// an answer that cannot be decoded or validated yields Fallback, and a failed
// model call yields ErrorDecision together with the error.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msgs := prompts.BuildMessages(r.systemPrompt(req), req.Message)

	var d Decision
	err := llm.CompleteJSON(ctx, r.provider, msgs, &d,
		llm.WithTemperature(r.temperature), llm.WithMaxTokens(r.maxTokens))
	switch {
	case errors.Is(err, llm.ErrInvalidResponse):
		logger.Warnf("unusable decision, falling back to no_action: %v", err)
		return Fallback(req.Message), nil
	case err != nil:
		logger.Errorf("resolution failed: %v", err)
		return ErrorDecision(err), fmt.Errorf("failed to resolve message: %w", err)
	}

	if strings.TrimSpace(d.UserResponse) == "" {
		d.UserResponse = DefaultUserResponse
	}
	if d.Actions == nil {
		d.Actions = []action.Action{}
	}
	logger.Infof("resolved %d actions", len(d.Actions))
	return &d, nil
}

func (r *Resolver) systemPrompt(req Request) string {
	pb := prompts.NewDecisionPromptBuilder().
		WithActions(r.actions).
		WithRetrievedContext(r.tokenizer.Truncate(req.RetrievedContext, r.contextBudget))
	if s := req.Session; s != nil {
		pb.WithSession(s.CurrentURL, s.Context).
			WithConversation(s.ConversationContext(r.history))
	}
	return pb.Build()
}
