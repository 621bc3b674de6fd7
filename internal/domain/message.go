package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Attachment is raw media sent alongside a user turn.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Turn is one unit of user input handed to the dialog router.
type Turn struct {
	ThreadID  string       `json:"threadId"`
	CallerID  string       `json:"callerId"`
	Text      string       `json:"text"`
	Media     []Attachment `json:"media,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Message is a single entry in a conversation's history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"` // set on tool results
	Name       string     `json:"name,omitempty"`       // tool name on tool results
	Agent      string     `json:"agent,omitempty"`      // agent that produced an assistant message
	Timestamp  time.Time  `json:"timestamp"`
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"` // JSON object
}

// HasToolCalls reports whether the message requests any tool invocation.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
