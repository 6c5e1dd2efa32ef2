// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/testpilot/pkg/llm"
	"github.com/entrhq/testpilot/pkg/types"
)

// ErrExhausted is returned when the fake has no scripted replies left.
var ErrExhausted = errors.New("llmtest: no scripted replies left")

// Reply is one scripted completion.
type Reply struct {
	Content string
	Err     error
}

// Call records one Complete invocation.
type Call struct {
	Messages []*types.Message
	Options  llm.CompletionOptions
}

// Provider returns scripted replies in order and records every call.
type Provider struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// New creates a fake provider that answers with the given contents in order.
func New(contents ...string) *Provider {
	p := &Provider{}
	for _, c := range contents {
		p.replies = append(p.replies, Reply{Content: c})
	}
	return p
}

// Push appends a scripted reply.
func (p *Provider) Push(r Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, r)
	return p
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message, opts ...llm.CompletionOption) (*types.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Messages: messages, Options: llm.ApplyOptions(opts...)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.replies) == 0 {
		return nil, ErrExhausted
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return types.NewAssistantMessage(r.Content, nil), nil
}

// GetModel implements llm.Provider.
func (p *Provider) GetModel() string {
	return "fake-model"
}

// Calls returns the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Complete invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
