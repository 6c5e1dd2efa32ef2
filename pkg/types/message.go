package types

import "time"

// MessageRole identifies who authored a message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem carries instructions for the language model.
	RoleUser      MessageRole = "user"      // RoleUser is text typed by the user.
	RoleAssistant MessageRole = "assistant" // RoleAssistant is a reply produced by testpilot or the model.
)

// Message is a single conversation entry. Messages are append-only once
// stored on a session.
type Message struct {
	// Timestamp records when the message was created.
	Timestamp time.Time `json:"timestamp"`

	// Role is the author of the message.
	Role MessageRole `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Actions holds the action results produced for an assistant reply.
	Actions []ActionResult `json:"actions,omitempty"`
}

// NewSystemMessage creates a system prompt message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content, Timestamp: time.Now()}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message with the results of the
// actions that were run for it.
func NewAssistantMessage(content string, results []ActionResult) *Message {
	return &Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Actions:   results,
	}
}
