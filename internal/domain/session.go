package domain

import (
	"slices"
	"time"
)

// Session is the persisted state of one conversation thread: its history and
// the dialog stack of active specialized agents (top is last).
type Session struct {
	ThreadID  string    `json:"threadId"`
	CallerID  string    `json:"callerId"`
	Stack     []string  `json:"stack"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy safe to mutate while the original stays untouched.
func (s *Session) Clone() *Session {
	c := *s
	c.Stack = slices.Clone(s.Stack)
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		c.Messages[i] = m
	}
	return &c
}
