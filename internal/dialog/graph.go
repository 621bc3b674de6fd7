package dialog

import (
	"fmt"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/llm"
)

// EscalateTool is the control tool every specialized agent holds.
const EscalateTool = "CompleteOrEscalate"

// escalateSchema describes CompleteOrEscalate arguments.
const escalateSchema = `{"type":"object","properties":{` +
	`"cancel":{"type":"boolean","description":"True to cancel the current task, false when it is complete."},` +
	`"reason":{"type":"string","description":"Why control is handed back."}},` +
	`"required":["reason"]}`

// EscalateDefinition is the tool definition offered to specialized agents.
var EscalateDefinition = llm.ToolDefinition{
	Name: EscalateTool,
	Description: "A tool to mark the current task as completed and/or to escalate control " +
		"of the dialog to the main assistant, who can re-route the dialog based on the user's needs.",
	InputSchema: escalateSchema,
}

// Specialist pairs a specialized agent with the transfer tool the primary
// agent uses to delegate to it.
type Specialist struct {
	Agent    *agent.Definition
	Transfer llm.ToolDefinition
}

// Graph is the static wiring of the primary agent and its specialists.
type Graph struct {
	primary     *agent.Definition
	specialists map[AgentID]*agent.Definition
	transfers   map[string]AgentID // transfer tool name -> target
	order       []AgentID
}

// NewGraph attaches one transfer tool per specialist to the primary agent and
// CompleteOrEscalate to every specialist. Definitions are copied, not
// modified. Specialist tool sets must be disjoint.
func NewGraph(primary *agent.Definition, specialists ...Specialist) (*Graph, error) {
	if primary == nil {
		return nil, fmt.Errorf("dialog: primary agent is required")
	}

	g := &Graph{
		specialists: make(map[AgentID]*agent.Definition),
		transfers:   make(map[string]AgentID),
	}
	p := *primary
	p.Control = append([]llm.ToolDefinition(nil), primary.Control...)

	owner := map[string]AgentID{}
	for _, name := range primary.Tools.Names() {
		owner[name] = Primary
	}

	for _, sp := range specialists {
		if sp.Agent == nil {
			return nil, fmt.Errorf("dialog: specialist without agent")
		}
		id := AgentID(sp.Agent.ID)
		if id == Primary {
			return nil, fmt.Errorf("dialog: specialist %q needs a non-empty id", sp.Agent.Name)
		}
		if _, dup := g.specialists[id]; dup {
			return nil, fmt.Errorf("dialog: duplicate specialist %q", id)
		}
		if sp.Transfer.Name == "" || sp.Transfer.Name == EscalateTool {
			return nil, fmt.Errorf("dialog: specialist %q needs a transfer tool", id)
		}
		if _, dup := g.transfers[sp.Transfer.Name]; dup {
			return nil, fmt.Errorf("dialog: transfer tool %q registered twice", sp.Transfer.Name)
		}

		for _, name := range sp.Agent.Tools.Names() {
			if name == EscalateTool {
				return nil, fmt.Errorf("dialog: %q may not register %s as a domain tool", id, EscalateTool)
			}
			if prev, taken := owner[name]; taken {
				return nil, fmt.Errorf("dialog: tool %q shared by %s and %s", name, prev, id)
			}
			owner[name] = id
		}

		s := *sp.Agent
		s.Control = []llm.ToolDefinition{EscalateDefinition}
		g.specialists[id] = &s
		g.transfers[sp.Transfer.Name] = id
		g.order = append(g.order, id)
		p.Control = append(p.Control, sp.Transfer)
	}

	for name := range g.transfers {
		if prev, taken := owner[name]; taken {
			return nil, fmt.Errorf("dialog: transfer tool %q collides with a tool of %s", name, prev)
		}
	}

	g.primary = &p
	return g, nil
}

// Definition returns the agent definition for a state.
func (g *Graph) Definition(id AgentID) (*agent.Definition, bool) {
	if id == Primary {
		return g.primary, true
	}
	d, ok := g.specialists[id]
	return d, ok
}

// TransferTarget resolves a transfer tool name to its specialist.
func (g *Graph) TransferTarget(tool string) (AgentID, bool) {
	id, ok := g.transfers[tool]
	return id, ok
}

// Name returns the display name of a state.
func (g *Graph) Name(id AgentID) string {
	if d, ok := g.Definition(id); ok && d.Name != "" {
		return d.Name
	}
	return id.String()
}

// Agents lists the primary agent followed by specialists in wiring order.
func (g *Graph) Agents() []domain.Agent {
	out := []domain.Agent{{ID: Primary.String(), Name: g.primary.Name, Tools: toolNames(g.primary), IsPrimary: true}}
	for _, id := range g.order {
		d := g.specialists[id]
		out = append(out, domain.Agent{ID: string(id), Name: d.Name, Tools: toolNames(d)})
	}
	return out
}

func toolNames(d *agent.Definition) []string {
	var names []string
	for _, t := range d.ToolDefinitions() {
		names = append(names, t.Name)
	}
	return names
}
