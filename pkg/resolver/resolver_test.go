package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/testpilot/pkg/action"
	"github.com/entrhq/testpilot/pkg/llm/llmtest"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

func TestResolve(t *testing.T) {
	provider := llmtest.New(`{
		"user_response": "I'll set up tests for the login form.",
		"actions": [
			{"action": "extract_url", "parameters": {"url": "https://example.com"}},
			{"action": "generate_test_cases", "parameters": {"requirements": "login form"}}
		],
		"session_updates": {"current_url": "https://example.com", "context": "testing login"}
	}`)
	r := New(provider)

	s := session.New("s1")
	s.CurrentURL = "https://example.com/old"
	s.AddMessage(*types.NewUserMessage("hello"))
	s.AddMessage(*types.NewAssistantMessage("hi, what should I test?", nil))

	d, err := r.Resolve(context.Background(), Request{
		Message:          "https://example.com please test the login form",
		RetrievedContext: "Relevant context from 1 embeddings:",
		Session:          s,
	})
	require.NoError(t, err)
	assert.False(t, d.Fallback)
	assert.Equal(t, "I'll set up tests for the login form.", d.UserResponse)
	require.Len(t, d.Actions, 2)
	assert.Equal(t, action.ExtractURL, d.Actions[0].Name)
	assert.Equal(t, map[string]interface{}{"requirements": "login form"}, d.Actions[1].Parameters())
	assert.Equal(t, SessionUpdates{CurrentURL: "https://example.com", Context: "testing login"}, d.SessionUpdates)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Options.JSONResponse)
	require.Len(t, calls[0].Messages, 2)

	system := calls[0].Messages[0].Content
	assert.Contains(t, system, "You are an AI testing assistant that understands user intent and provides structured actions.")
	assert.Contains(t, system, "- extract_url (parameters: url)")
	assert.Contains(t, system, "Current URL: https://example.com/old")
	assert.Contains(t, system, "user: hello\nassistant: hi, what should I test?")
	assert.Contains(t, system, "Relevant context from 1 embeddings:")
	assert.Equal(t, "https://example.com please test the login form", calls[0].Messages[1].Content)
}

func TestResolveDefaults(t *testing.T) {
	r := New(llmtest.New(`{"actions": []}`))

	d, err := r.Resolve(context.Background(), Request{Message: "thanks"})
	require.NoError(t, err)
	assert.Equal(t, DefaultUserResponse, d.UserResponse)
	assert.NotNil(t, d.Actions)
	assert.Empty(t, d.Actions)
}

func TestResolveFallsBackOnce(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "prose", reply: "Sure! I will test the login form."},
		{name: "truncated json", reply: `{"user_response": "ok", "actions": [`},
		{name: "action without name", reply: `{"user_response": "ok", "actions": [{"parameters": {}}]}`},
		{name: "bad url update", reply: `{"user_response": "ok", "actions": [], "session_updates": {"current_url": "not a url"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := llmtest.New(tt.reply)
			r := New(provider)

			d, err := r.Resolve(context.Background(), Request{Message: "test the login"})
			require.NoError(t, err)
			assert.True(t, d.Fallback)
			assert.Equal(t, "I understand you said: test the login. Let me help you with that.", d.UserResponse)
			require.Len(t, d.Actions, 1)
			assert.Equal(t, action.NoAction, d.Actions[0].Name)
			assert.Equal(t, SessionUpdates{}, d.SessionUpdates)
			assert.Equal(t, 1, provider.CallCount())
		})
	}
}

func TestResolveProviderError(t *testing.T) {
	provider := llmtest.New().Push(llmtest.Reply{Err: errors.New("connection refused")})
	r := New(provider)

	d, err := r.Resolve(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NotNil(t, d)
	assert.Equal(t, "I encountered an error processing your request: connection refused", d.UserResponse)
	require.Len(t, d.Actions, 1)
	assert.Equal(t, action.NoAction, d.Actions[0].Name)
}
