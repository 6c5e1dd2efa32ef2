package types

// InputType defines the type of a client request sent over a live connection.
type InputType string

const (
	InputTypeChat          InputType = "chat"           // InputTypeChat carries a natural-language message for the resolver.
	InputTypeTestExecution InputType = "test_execution" // InputTypeTestExecution runs a test source through the fix loop.
	InputTypeCancel        InputType = "cancel"         // InputTypeCancel cancels the request in flight.
)

// Input represents a client request. Which fields are populated depends on Type.
type Input struct {
	// Type indicates the kind of input.
	Type InputType `json:"type"`

	// SessionID names the session the request belongs to. Empty means a new session.
	SessionID string `json:"session_id,omitempty"`

	// Message is the user text. Only used when Type is InputTypeChat.
	Message string `json:"message,omitempty"`

	// Code is the test source. Only used when Type is InputTypeTestExecution.
	Code string `json:"code,omitempty"`

	// TestName names the test run.
	TestName string `json:"test_name,omitempty"`

	// URL is the page under test.
	URL string `json:"url,omitempty"`

	// Requirements is the user requirement the test checks.
	Requirements string `json:"requirements,omitempty"`

	// MaxRetries overrides the fix loop retry budget. Zero uses the default.
	MaxRetries int `json:"max_retries,omitempty"`
}

// NewChatInput creates a chat input.
func NewChatInput(sessionID, message string) *Input {
	return &Input{Type: InputTypeChat, SessionID: sessionID, Message: message}
}

// NewTestExecutionInput creates a test execution input.
func NewTestExecutionInput(sessionID, code, testName string) *Input {
	return &Input{Type: InputTypeTestExecution, SessionID: sessionID, Code: code, TestName: testName}
}

// NewCancelInput creates a cancellation input.
func NewCancelInput() *Input {
	return &Input{Type: InputTypeCancel}
}

// IsChat returns true if this is a chat input.
func (i *Input) IsChat() bool {
	return i.Type == InputTypeChat
}

// IsTestExecution returns true if this is a test execution input.
func (i *Input) IsTestExecution() bool {
	return i.Type == InputTypeTestExecution
}

// IsCancel returns true if this is a cancellation input.
func (i *Input) IsCancel() bool {
	return i.Type == InputTypeCancel
}
