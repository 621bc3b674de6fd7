package dialog

import (
	"errors"
	"fmt"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/llm"
)

// ErrInvalidRoute marks a model output the active state cannot handle.
var ErrInvalidRoute = errors.New("dialog: invalid route")

// RouteError reports a tool call that is not legal in the active state.
type RouteError struct {
	Agent  AgentID
	Tool   string
	Reason string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("dialog: invalid route from %s via %q: %s", e.Agent, e.Tool, e.Reason)
}

func (e *RouteError) Unwrap() error { return ErrInvalidRoute }

// Signal is the decoded meaning of one model output. It is one of Reply,
// Transfer, Escalate or ToolUse.
type Signal interface {
	isSignal()
}

// Reply ends the turn with text for the user.
type Reply struct {
	Text string
}

// Transfer pushes a specialist. Only legal from Primary.
type Transfer struct {
	Target  AgentID
	Call    llm.ToolCall
	Request string
}

// Escalate pops the active specialist. Only legal from a specialist.
type Escalate struct {
	Call   llm.ToolCall
	Cancel bool
	Reason string
}

// ToolUse runs one of the active agent's own tools and re-invokes it.
type ToolUse struct {
	Call llm.ToolCall
}

func (Reply) isSignal()    {}
func (Transfer) isSignal() {}
func (Escalate) isSignal() {}
func (ToolUse) isSignal()  {}

type transferArgs struct {
	Request string `json:"request"`
}

type escalateArgs struct {
	Cancel *bool  `json:"cancel"`
	Reason string `json:"reason"`
}

// Decode maps the active state and the model's latest output to a Signal.
// Only the first tool call is routed; the rest are returned as extra so the
// caller can answer them without executing. Any call the active state may not
// make yields a *RouteError.
func Decode(g *Graph, active AgentID, res *agent.Result) (Signal, []llm.ToolCall, error) {
	if res.IsReply() {
		return Reply{Text: res.Text}, nil, nil
	}

	call, extra := res.Calls[0], res.Calls[1:]

	if target, ok := g.TransferTarget(call.Name); ok {
		if active != Primary {
			return nil, extra, &RouteError{Agent: active, Tool: call.Name, Reason: "transfers are only available to the primary agent"}
		}
		var args transferArgs
		if err := llm.UnmarshalJSON(call.Input, &args); err != nil {
			return nil, extra, &RouteError{Agent: active, Tool: call.Name, Reason: "malformed arguments: " + err.Error()}
		}
		return Transfer{Target: target, Call: call, Request: args.Request}, extra, nil
	}

	if call.Name == EscalateTool {
		if active == Primary {
			return nil, extra, &RouteError{Agent: active, Tool: call.Name, Reason: "the primary agent has nothing to escalate to"}
		}
		var args escalateArgs
		if err := llm.UnmarshalJSON(call.Input, &args); err != nil {
			return nil, extra, &RouteError{Agent: active, Tool: call.Name, Reason: "malformed arguments: " + err.Error()}
		}
		cancel := true
		if args.Cancel != nil {
			cancel = *args.Cancel
		}
		return Escalate{Call: call, Cancel: cancel, Reason: args.Reason}, extra, nil
	}

	def, ok := g.Definition(active)
	if !ok {
		return nil, extra, &RouteError{Agent: active, Tool: call.Name, Reason: "unknown active agent"}
	}
	if _, ok := def.Tools.Get(call.Name); !ok {
		return nil, extra, &RouteError{Agent: active, Tool: call.Name, Reason: "tool is not bound to this agent"}
	}
	return ToolUse{Call: call}, extra, nil
}
