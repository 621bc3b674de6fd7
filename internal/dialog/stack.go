// Package dialog implements the conversation state machine: a stack of
// active specialized agents per thread, the control signals that push and pop
// it, and the Router that drives one turn at a time.
package dialog

import (
	"errors"
	"fmt"
	"slices"
)

// AgentID identifies an agent. Primary, the empty ID, is the router agent
// that is active whenever the stack is empty.
type AgentID string

// Primary is the state of an empty dialog stack.
const Primary AgentID = ""

func (id AgentID) String() string {
	if id == Primary {
		return "primary"
	}
	return string(id)
}

var (
	// ErrEmptyStack is returned when popping an empty stack.
	ErrEmptyStack = errors.New("dialog: stack is empty")
	// ErrPushPrimary is returned when pushing the primary agent.
	ErrPushPrimary = errors.New("dialog: cannot push the primary agent")
)

// Stack is a LIFO of active specialized agents. The top is the active agent.
// Its only mutations are Push and Pop.
type Stack struct {
	ids []AgentID
}

// NewStack builds a stack from bottom to top.
func NewStack(ids ...AgentID) (*Stack, error) {
	s := &Stack{}
	for _, id := range ids {
		if err := s.Push(id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Push makes id the active agent.
func (s *Stack) Push(id AgentID) error {
	if id == Primary {
		return ErrPushPrimary
	}
	s.ids = append(s.ids, id)
	return nil
}

// Pop removes and returns the active agent. It never underflows.
func (s *Stack) Pop() (AgentID, error) {
	if len(s.ids) == 0 {
		return Primary, ErrEmptyStack
	}
	top := s.ids[len(s.ids)-1]
	s.ids = s.ids[:len(s.ids)-1]
	return top, nil
}

// Peek returns the top of the stack and whether there is one.
func (s *Stack) Peek() (AgentID, bool) {
	if len(s.ids) == 0 {
		return Primary, false
	}
	return s.ids[len(s.ids)-1], true
}

// Active returns the agent that owns the next model call.
func (s *Stack) Active() AgentID {
	id, _ := s.Peek()
	return id
}

// Depth returns the number of stacked specialized agents.
func (s *Stack) Depth() int { return len(s.ids) }

// Snapshot returns the stack contents bottom to top.
func (s *Stack) Snapshot() []AgentID { return slices.Clone(s.ids) }

// Strings returns the stack contents as plain strings for persistence.
func (s *Stack) Strings() []string {
	out := make([]string, len(s.ids))
	for i, id := range s.ids {
		out[i] = string(id)
	}
	return out
}

// restoreStack rebuilds a persisted stack, rejecting agents the graph does
// not know.
func restoreStack(ids []string, g *Graph) (*Stack, error) {
	s := &Stack{}
	for _, raw := range ids {
		id := AgentID(raw)
		if _, ok := g.specialists[id]; !ok {
			return nil, fmt.Errorf("dialog: checkpoint references unknown agent %q", raw)
		}
		if err := s.Push(id); err != nil {
			return nil, err
		}
	}
	return s, nil
}
