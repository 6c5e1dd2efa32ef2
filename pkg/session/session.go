// Package session holds per-conversation state.
//
// A Session returned by the Store is a snapshot: callers modify a Clone and
// Commit it back. Snapshots are never mutated after they are committed, so
// summaries can be read while a request is running.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/testpilot/pkg/types"
)

// DefaultContextMessages is the number of recent messages rendered into the
// resolver prompt.
const DefaultContextMessages = 10

// TraceEntry records one processing step for diagnostics.
type TraceEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Step      string                 `json:"step"`
}

// Session is the state of one conversation.
type Session struct {
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// LastResult is the most recent test execution, nil before any run.
	LastResult *types.ExecutionResult `json:"last_result,omitempty"`

	// GeneratedCode maps a test identifier to its source.
	GeneratedCode map[string]string `json:"generated_code"`

	ID string `json:"id"`

	// CurrentURL is the page under test, empty when unknown.
	CurrentURL string `json:"current_url"`

	// LastAction is the name of the last dispatched action.
	LastAction string `json:"last_action"`

	// Context is free text the resolver keeps about the conversation.
	Context string `json:"context"`

	// TestCases are the pending generated cases.
	TestCases []types.TestCase `json:"test_cases"`

	Messages []types.Message `json:"messages"`
	Trace    []TraceEntry    `json:"trace"`

	EmbeddingsCreated bool `json:"embeddings_created"`
}

// New creates an empty session.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		GeneratedCode: make(map[string]string),
		CreatedAt:     now,
		LastActive:    now,
	}
}

// Clone returns a deep copy that can be modified without affecting s.
func (s *Session) Clone() *Session {
	c := *s

	c.GeneratedCode = make(map[string]string, len(s.GeneratedCode))
	for k, v := range s.GeneratedCode {
		c.GeneratedCode[k] = v
	}

	if s.TestCases != nil {
		c.TestCases = make([]types.TestCase, len(s.TestCases))
		copy(c.TestCases, s.TestCases)
	}
	if s.Messages != nil {
		c.Messages = make([]types.Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	if s.Trace != nil {
		c.Trace = make([]TraceEntry, len(s.Trace))
		copy(c.Trace, s.Trace)
	}
	if s.LastResult != nil {
		r := *s.LastResult
		c.LastResult = &r
	}
	return &c
}

// Touch updates the last activity time.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}

// AddMessage appends a conversation message.
func (s *Session) AddMessage(msg types.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.Touch()
}

// AddTrace appends a diagnostic entry.
func (s *Session) AddTrace(step string, details map[string]interface{}) {
	s.Trace = append(s.Trace, TraceEntry{Step: step, Timestamp: time.Now(), Details: details})
}

// ApplyUpdates sets the current URL and context when the values are non-empty.
func (s *Session) ApplyUpdates(currentURL, context string) {
	if currentURL != "" {
		s.CurrentURL = currentURL
	}
	if context != "" {
		s.Context = context
	}
}

// Reset clears the working state of the session. Identity, conversation
// history and trace are kept.
func (s *Session) Reset() {
	s.CurrentURL = ""
	s.TestCases = nil
	s.GeneratedCode = make(map[string]string)
	s.LastResult = nil
	s.EmbeddingsCreated = false
	s.LastAction = ""
	s.Context = ""
	s.Touch()
}

// FirstGeneratedCode returns the generated source in a stable order: the
// code of the first pending test case if present, otherwise the
// lexicographically smallest identifier.
func (s *Session) FirstGeneratedCode() (name, code string, ok bool) {
	if len(s.GeneratedCode) == 0 {
		return "", "", false
	}
	for _, tc := range s.TestCases {
		if c, found := s.GeneratedCode[tc.FileName()]; found {
			return tc.FileName(), c, true
		}
	}
	for k := range s.GeneratedCode {
		if name == "" || k < name {
			name = k
		}
	}
	return name, s.GeneratedCode[name], true
}

// ConversationContext renders the last n messages as "role: content" lines.
func (s *Session) ConversationContext(n int) string {
	if n <= 0 {
		n = DefaultContextMessages
	}
	msgs := s.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// Summary is the externally visible view of a session.
type Summary struct {
	CreatedAt           time.Time `json:"created_at"`
	LastActive          time.Time `json:"last_active"`
	CurrentURL          *string   `json:"current_url"`
	LastAction          *string   `json:"last_action"`
	SessionID           string    `json:"session_id"`
	Context             string    `json:"context"`
	TestCasesCount      int       `json:"test_cases_count"`
	MessageCount        int       `json:"message_count"`
	HasGeneratedCode    bool      `json:"has_generated_code"`
	HasExecutionResults bool      `json:"has_execution_results"`
}

// Summary returns the externally visible view of s.
func (s *Session) Summary() Summary {
	sum := Summary{
		SessionID:           s.ID,
		TestCasesCount:      len(s.TestCases),
		HasGeneratedCode:    len(s.GeneratedCode) > 0,
		HasExecutionResults: s.LastResult != nil,
		Context:             s.Context,
		CreatedAt:           s.CreatedAt,
		LastActive:          s.LastActive,
		MessageCount:        len(s.Messages),
	}
	if s.CurrentURL != "" {
		u := s.CurrentURL
		sum.CurrentURL = &u
	}
	if s.LastAction != "" {
		a := s.LastAction
		sum.LastAction = &a
	}
	return sum
}

// EmptySummary describes a session id that is not stored.
func EmptySummary(id string) Summary {
	return Summary{SessionID: id}
}
