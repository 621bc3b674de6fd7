package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// recordingTool returns a fixed output and records the caller and input of
// every execution.
type recordingTool struct {
	name string
	out  string
	err  error

	mu    sync.Mutex
	calls []string
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return t.name }
func (t *recordingTool) InputSchema() string { return `{"type":"object"}` }
func (t *recordingTool) Execute(_ context.Context, caller, input string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, caller+"|"+input)
	if t.err != nil {
		return "", t.err
	}
	return t.out, nil
}

func (t *recordingTool) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type testTools struct {
	recall *recordingTool
	search *recordingTool
	book   *recordingTool
	hotels *recordingTool
}

func newTestTools() *testTools {
	return &testTools{
		recall: &recordingTool{name: "search_recall_memories", out: "nothing remembered"},
		search: &recordingTool{name: "search_flights", out: `[{"flight_id":1}]`},
		book:   &recordingTool{name: "book_flight", out: "Flight booked successfully"},
		hotels: &recordingTool{name: "search_hotels", out: "[]"},
	}
}

func transferDef(name string) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        name,
		Description: "Transfer work to a specialized assistant.",
		InputSchema: `{"type":"object","properties":{"request":{"type":"string"}},"required":["request"]}`,
	}
}

func testGraph(t *testing.T, tools *testTools) *Graph {
	t.Helper()
	primary := &agent.Definition{
		ID:     "primary",
		Name:   "Primary Assistant",
		Prompt: agent.NewPrompt("primary", "You are the Primary Assistant. Caller {{.Caller}}.\n{{.Recall}}"),
		Tools:  agent.NewToolRegistry(tools.recall),
	}
	flight := &agent.Definition{
		ID:     "flight",
		Name:   "Flight Assistant",
		Prompt: agent.NewPrompt("flight", "You are the Flight Assistant. Caller {{.Caller}}."),
		Tools:  agent.NewToolRegistry(tools.search, tools.book),
	}
	hotel := &agent.Definition{
		ID:     "hotel",
		Name:   "Hotel Assistant",
		Prompt: agent.NewPrompt("hotel", "You are the Hotel Assistant."),
		Tools:  agent.NewToolRegistry(tools.hotels),
	}
	g, err := NewGraph(primary,
		Specialist{Agent: flight, Transfer: transferDef("ToFlightBookingAssistant")},
		Specialist{Agent: hotel, Transfer: transferDef("ToHotelBookingAssistant")},
	)
	require.NoError(t, err)
	return g
}

func call(id, name, input string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Input: input}
}

func calls(c ...llm.ToolCall) *agent.Result {
	return &agent.Result{Calls: c}
}

// --- Stack ---

func TestStackPushPop(t *testing.T) {
	s, err := NewStack()
	require.NoError(t, err)
	assert.Equal(t, Primary, s.Active())
	assert.Equal(t, 0, s.Depth())

	require.NoError(t, s.Push("flight"))
	require.NoError(t, s.Push("hotel"))
	assert.Equal(t, AgentID("hotel"), s.Active())
	assert.Equal(t, []AgentID{"flight", "hotel"}, s.Snapshot())
	assert.Equal(t, []string{"flight", "hotel"}, s.Strings())

	top, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, AgentID("hotel"), top)
	assert.Equal(t, AgentID("flight"), s.Active())

	_, err = s.Pop()
	require.NoError(t, err)
	assert.Equal(t, Primary, s.Active())
}

func TestStackNeverUnderflows(t *testing.T) {
	s, _ := NewStack()
	_, err := s.Pop()
	assert.ErrorIs(t, err, ErrEmptyStack)
	assert.Equal(t, 0, s.Depth())
}

func TestStackRejectsPrimary(t *testing.T) {
	s, _ := NewStack("flight")
	assert.ErrorIs(t, s.Push(Primary), ErrPushPrimary)
	assert.Equal(t, 1, s.Depth())

	_, err := NewStack("flight", Primary)
	assert.ErrorIs(t, err, ErrPushPrimary)
}

func TestStackSnapshotIsCopy(t *testing.T) {
	s, _ := NewStack("flight")
	snap := s.Snapshot()
	snap[0] = "hotel"
	assert.Equal(t, AgentID("flight"), s.Active())
}

func TestAgentIDString(t *testing.T) {
	assert.Equal(t, "primary", Primary.String())
	assert.Equal(t, "flight", AgentID("flight").String())
}

func TestRestoreStack(t *testing.T) {
	g := testGraph(t, newTestTools())

	s, err := restoreStack([]string{"flight", "hotel"}, g)
	require.NoError(t, err)
	assert.Equal(t, AgentID("hotel"), s.Active())

	_, err = restoreStack([]string{"cars"}, g)
	assert.Error(t, err)
}

// --- Graph ---

func TestGraphWiresControlTools(t *testing.T) {
	g := testGraph(t, newTestTools())

	primary, ok := g.Definition(Primary)
	require.True(t, ok)
	var names []string
	for _, d := range primary.ToolDefinitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"search_recall_memories", "ToFlightBookingAssistant", "ToHotelBookingAssistant"}, names)

	flight, ok := g.Definition("flight")
	require.True(t, ok)
	names = nil
	for _, d := range flight.ToolDefinitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"search_flights", "book_flight", EscalateTool}, names)

	target, ok := g.TransferTarget("ToHotelBookingAssistant")
	assert.True(t, ok)
	assert.Equal(t, AgentID("hotel"), target)

	_, ok = g.TransferTarget("search_flights")
	assert.False(t, ok)

	assert.Equal(t, "Flight Assistant", g.Name("flight"))
	assert.Equal(t, "cars", g.Name("cars"))
}

func TestGraphDoesNotMutateInputs(t *testing.T) {
	primary := &agent.Definition{ID: "primary", Prompt: agent.NewPrompt("p", "p")}
	flight := &agent.Definition{ID: "flight", Prompt: agent.NewPrompt("f", "f")}
	_, err := NewGraph(primary, Specialist{Agent: flight, Transfer: transferDef("ToFlight")})
	require.NoError(t, err)
	assert.Empty(t, primary.Control)
	assert.Empty(t, flight.Control)
}

func TestGraphAgents(t *testing.T) {
	g := testGraph(t, newTestTools())
	agents := g.Agents()
	require.Len(t, agents, 3)
	assert.True(t, agents[0].IsPrimary)
	assert.Equal(t, "primary", agents[0].ID)
	assert.Equal(t, "flight", agents[1].ID)
	assert.Contains(t, agents[1].Tools, EscalateTool)
	assert.Equal(t, "hotel", agents[2].ID)
}

func TestNewGraphValidation(t *testing.T) {
	prompt := agent.NewPrompt("x", "x")
	def := func(id string, tools ...agent.Tool) *agent.Definition {
		return &agent.Definition{ID: id, Prompt: prompt, Tools: agent.NewToolRegistry(tools...)}
	}
	shared := &recordingTool{name: "shared"}

	tests := []struct {
		name        string
		primary     *agent.Definition
		specialists []Specialist
	}{
		{"nil primary", nil, nil},
		{"nil specialist", def("p"), []Specialist{{Transfer: transferDef("ToA")}}},
		{"empty id", def("p"), []Specialist{{Agent: def(""), Transfer: transferDef("ToA")}}},
		{"duplicate id", def("p"), []Specialist{
			{Agent: def("a"), Transfer: transferDef("ToA")},
			{Agent: def("a"), Transfer: transferDef("ToB")},
		}},
		{"missing transfer", def("p"), []Specialist{{Agent: def("a")}}},
		{"duplicate transfer", def("p"), []Specialist{
			{Agent: def("a"), Transfer: transferDef("ToA")},
			{Agent: def("b"), Transfer: transferDef("ToA")},
		}},
		{"shared tool", def("p"), []Specialist{
			{Agent: def("a", shared), Transfer: transferDef("ToA")},
			{Agent: def("b", shared), Transfer: transferDef("ToB")},
		}},
		{"escalate as domain tool", def("p"), []Specialist{
			{Agent: def("a", &recordingTool{name: EscalateTool}), Transfer: transferDef("ToA")},
		}},
		{"transfer collides with tool", def("p", &recordingTool{name: "ToA"}), []Specialist{
			{Agent: def("a"), Transfer: transferDef("ToA")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.primary, tt.specialists...)
			assert.Error(t, err)
		})
	}
}

// --- Decode ---

func TestDecodeReply(t *testing.T) {
	g := testGraph(t, newTestTools())
	sig, extra, err := Decode(g, Primary, &agent.Result{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, extra)
	assert.Equal(t, Reply{Text: "hello"}, sig)
}

func TestDecodeTransferFromPrimary(t *testing.T) {
	g := testGraph(t, newTestTools())
	c := call("1", "ToFlightBookingAssistant", `{"request":"change my flight"}`)
	sig, _, err := Decode(g, Primary, calls(c))
	require.NoError(t, err)
	tr, ok := sig.(Transfer)
	require.True(t, ok)
	assert.Equal(t, AgentID("flight"), tr.Target)
	assert.Equal(t, "change my flight", tr.Request)
	assert.Equal(t, c, tr.Call)
}

func TestDecodeTransferFromSpecialistIsRouteError(t *testing.T) {
	g := testGraph(t, newTestTools())
	_, _, err := Decode(g, "flight", calls(call("1", "ToHotelBookingAssistant", `{}`)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoute)

	var re *RouteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, AgentID("flight"), re.Agent)
	assert.Equal(t, "ToHotelBookingAssistant", re.Tool)
}

func TestDecodeEscalate(t *testing.T) {
	g := testGraph(t, newTestTools())

	sig, _, err := Decode(g, "flight", calls(call("1", EscalateTool, `{"reason":"done"}`)))
	require.NoError(t, err)
	esc := sig.(Escalate)
	assert.True(t, esc.Cancel)
	assert.Equal(t, "done", esc.Reason)

	sig, _, err = Decode(g, "flight", calls(call("1", EscalateTool, `{"cancel":false,"reason":"booked"}`)))
	require.NoError(t, err)
	assert.False(t, sig.(Escalate).Cancel)
}

func TestDecodeEscalateFromPrimaryIsRouteError(t *testing.T) {
	g := testGraph(t, newTestTools())
	_, _, err := Decode(g, Primary, calls(call("1", EscalateTool, `{}`)))
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestDecodeToolUse(t *testing.T) {
	g := testGraph(t, newTestTools())

	sig, _, err := Decode(g, "flight", calls(call("1", "search_flights", `{}`)))
	require.NoError(t, err)
	assert.Equal(t, "search_flights", sig.(ToolUse).Call.Name)

	sig, _, err = Decode(g, Primary, calls(call("1", "search_recall_memories", `{}`)))
	require.NoError(t, err)
	assert.IsType(t, ToolUse{}, sig)
}

func TestDecodeForeignToolIsRouteError(t *testing.T) {
	g := testGraph(t, newTestTools())

	_, _, err := Decode(g, Primary, calls(call("1", "search_flights", `{}`)))
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, _, err = Decode(g, "hotel", calls(call("1", "book_flight", `{}`)))
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, _, err = Decode(g, "flight", calls(call("1", "made_up", `{}`)))
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestDecodeMalformedArguments(t *testing.T) {
	g := testGraph(t, newTestTools())
	_, _, err := Decode(g, Primary, calls(call("1", "ToFlightBookingAssistant", `[1,2`)))
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestDecodeReturnsExtraCalls(t *testing.T) {
	g := testGraph(t, newTestTools())
	sig, extra, err := Decode(g, "flight", calls(
		call("1", "search_flights", `{}`),
		call("2", "book_flight", `{}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "1", sig.(ToolUse).Call.ID)
	require.Len(t, extra, 1)
	assert.Equal(t, "2", extra[0].ID)
}

// --- Checkpoints and locks ---

func TestThreadLocksSerializeSameThread(t *testing.T) {
	locks := newThreadLocks()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "t1")
	require.NoError(t, err)

	other, err := locks.acquire(ctx, "t2")
	require.NoError(t, err)
	other()

	acquired := make(chan struct{})
	go func() {
		r, err := locks.acquire(ctx, "t1")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire on the same thread should block")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}

	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestThreadLocksHonourContext(t *testing.T) {
	locks := newThreadLocks()
	release, err := locks.acquire(context.Background(), "t1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "t1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locks.size())
}

func TestMemoryCheckpointsIsolatesCopies(t *testing.T) {
	cp := NewMemoryCheckpoints()
	ctx := context.Background()

	s, err := cp.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, s)

	in := newSession("t1", "alice", "flight")
	require.NoError(t, cp.Save(ctx, in))
	in.Stack[0] = "hotel"

	out, err := cp.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"flight"}, out.Stack)
	out.Stack = nil

	again, _ := cp.Load(ctx, "t1")
	assert.Equal(t, []string{"flight"}, again.Stack)
	assert.Equal(t, []string{"t1"}, cp.List())
}

func TestEntryMessageNamesAgent(t *testing.T) {
	assert.Equal(t, 2, strings.Count(entryMessage, "%s"))
	assert.Contains(t, entryMessage, EscalateTool)
}
