package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testRegistry(mock llm.Client) *llm.Registry {
	reg := llm.NewRegistry(silentLog())
	reg.Register("mock", mock)
	reg.SetFallback("mock")
	return reg
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes input" }
func (echoTool) InputSchema() string {
	return `{"type":"object","properties":{"text":{"type":"string"}}}`
}
func (echoTool) Execute(_ context.Context, caller, input string) (string, error) {
	return caller + ":" + input, nil
}

type namedTool struct{ name string }

func (n namedTool) Name() string        { return n.name }
func (n namedTool) Description() string { return n.name }
func (n namedTool) InputSchema() string { return `{}` }
func (n namedTool) Execute(context.Context, string, string) (string, error) {
	return "", nil
}

func testDefinition() *Definition {
	return &Definition{
		ID:     "flight",
		Name:   "Flight Assistant",
		Prompt: NewPrompt("flight", "Caller {{.Caller}} at {{.Now}}.\nMemories:\n{{.Recall}}"),
		Tools:  NewToolRegistry(echoTool{}),
		Control: []llm.ToolDefinition{
			{Name: "CompleteOrEscalate", Description: "done", InputSchema: `{}`},
		},
	}
}

// --- Tool registry ---

func TestToolRegistry(t *testing.T) {
	reg := NewToolRegistry(namedTool{"b"}, namedTool{"a"})
	reg.Register(echoTool{})
	reg.Register(namedTool{"a"})

	tool, ok := reg.Get("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)

	assert.Equal(t, []string{"b", "a", "echo"}, reg.Names())
	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "echo", defs[2].Name)
}

func TestNilToolRegistry(t *testing.T) {
	var reg *ToolRegistry
	_, ok := reg.Get("x")
	assert.False(t, ok)
	assert.Nil(t, reg.Definitions())
	assert.Nil(t, reg.Names())
}

func TestToolExecuteReceivesCaller(t *testing.T) {
	out, err := echoTool{}.Execute(context.Background(), "user-1", `{"text":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, `user-1:{"text":"hello"}`, out)
}

// --- Definition ---

func TestDefinitionSystemPrompt(t *testing.T) {
	def := testDefinition()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	sys, err := def.System("user-7", []string{"prefers window seats", "lives in Basel"}, now)
	require.NoError(t, err)
	assert.Contains(t, sys, "Caller user-7")
	assert.Contains(t, sys, "Sun, 01 Mar 2026 09:30:00 UTC")
	assert.Contains(t, sys, "- prefers window seats\n- lives in Basel")

	sys, err = def.System("user-7", nil, now)
	require.NoError(t, err)
	assert.Contains(t, sys, "None.")
}

func TestDefinitionToolDefinitionsIncludeControl(t *testing.T) {
	def := testDefinition()
	defs := def.ToolDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "CompleteOrEscalate", defs[1].Name)
	assert.True(t, def.IsControl("CompleteOrEscalate"))
	assert.False(t, def.IsControl("echo"))
}

// --- Invoker ---

func TestInvokeReturnsReply(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		assert.Contains(t, req.System, "Caller alice")
		require.Len(t, req.Messages, 1)
		assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
		assert.Len(t, req.Tools, 2)
		return &llm.CompletionResponse{Content: "  Here you go. ", Model: "m"}, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{}, nil, silentLog())

	res, err := inv.Invoke(context.Background(), testDefinition(), Context{
		Caller:   "alice",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.True(t, res.IsReply())
	assert.Equal(t, "Here you go.", res.Text)
	assert.Equal(t, 1, res.Attempts)
}

func TestInvokeReturnsToolCalls(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Input: `{}`}}}, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{}, nil, silentLog())

	res, err := inv.Invoke(context.Background(), testDefinition(), Context{Caller: "alice"}, nil)
	require.NoError(t, err)
	assert.False(t, res.IsReply())
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "c1", res.Calls[0].ID)
}

func TestInvokeRetriesEmptyResponse(t *testing.T) {
	var seen [][]llm.Message
	calls := 0
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		seen = append(seen, req.Messages)
		if calls < 3 {
			return &llm.CompletionResponse{Content: "   "}, nil
		}
		return &llm.CompletionResponse{Content: "finally"}, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{MaxAttempts: 3}, nil, silentLog())

	res, err := inv.Invoke(context.Background(), testDefinition(), Context{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "finally", res.Text)
	assert.Equal(t, 3, res.Attempts)

	require.Len(t, seen, 3)
	assert.Len(t, seen[0], 1)
	assert.Len(t, seen[1], 2)
	require.Len(t, seen[2], 3)
	assert.Equal(t, "Respond with a real output.", seen[2][2].Content)
	assert.Equal(t, llm.RoleUser, seen[2][2].Role)
}

func TestInvokeGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		return &llm.CompletionResponse{}, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{MaxAttempts: 2}, nil, silentLog())

	_, err := inv.Invoke(context.Background(), testDefinition(), Context{}, nil)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 2, calls)
}

func TestInvokePropagatesClientError(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, &llm.ProviderError{Provider: "mock", Message: "bad key", Code: 401}
	}}
	inv := NewInvoker(mock, InvokerConfig{}, nil, silentLog())

	_, err := inv.Invoke(context.Background(), testDefinition(), Context{}, nil)
	var pe *llm.ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.False(t, errors.Is(err, ErrNoResponse))
}

func TestInvokeStreamsDeltas(t *testing.T) {
	mock := &llm.MockClient{StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 3)
		ch <- llm.StreamEvent{Type: "delta", Content: "Hello"}
		ch <- llm.StreamEvent{Type: "delta", Content: " world"}
		ch <- llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{Model: "m"}}
		close(ch)
		return ch, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{}, nil, silentLog())

	var mu sync.Mutex
	var got strings.Builder
	res, err := inv.Invoke(context.Background(), testDefinition(), Context{}, func(d string) {
		mu.Lock()
		got.WriteString(d)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", res.Text)
	assert.Equal(t, "Hello world", got.String())
}

func TestInvokeHoldsDeltasOfToolRound(t *testing.T) {
	mock := &llm.MockClient{StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 2)
		ch <- llm.StreamEvent{Type: "delta", Content: "Let me look that up."}
		ch <- llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_flights", Input: `{}`}},
		}}
		close(ch)
		return ch, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{}, nil, silentLog())

	var deltas []string
	res, err := inv.Invoke(context.Background(), testDefinition(), Context{}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	require.Len(t, res.Calls, 1)
	assert.Equal(t, "Let me look that up.", res.Text)
	assert.Empty(t, deltas)
}

func TestInvokeStreamError(t *testing.T) {
	mock := &llm.MockClient{StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 1)
		ch <- llm.StreamEvent{Type: "error", Error: "connection reset"}
		close(ch)
		return ch, nil
	}}
	inv := NewInvoker(mock, InvokerConfig{}, nil, silentLog())

	_, err := inv.Invoke(context.Background(), testDefinition(), Context{}, func(string) {})
	assert.ErrorContains(t, err, "connection reset")
}

func TestHistoryCarriesToolCalls(t *testing.T) {
	msgs := History([]domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "echo", Input: "{}"}}},
		{Role: domain.RoleTool, ToolCallID: "c1", Name: "echo", Content: "ok"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "c1", msgs[0].ToolCalls[0].ID)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
	assert.Equal(t, "echo", msgs[1].Name)
}

// --- Failover tests ---

// failingModel answers with err, or with its own name when err is nil.
func failingModel(name string, err error, calls *[]string) *llm.MockClient {
	return &llm.MockClient{
		ProviderName: name,
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			*calls = append(*calls, req.Model)
			if err != nil {
				return nil, err
			}
			return &llm.CompletionResponse{Content: name}, nil
		},
	}
}

func TestFailoverChain(t *testing.T) {
	overloaded := &llm.ProviderError{Provider: "p", Message: "overloaded", Code: 529}
	tests := []struct {
		name      string
		primary   error
		fallback  error
		want      string
		wantErr   bool
		wantCalls []string
	}{
		{"primary answers", nil, nil, "primary", false, []string{"primary"}},
		{"retryable moves on", overloaded, nil, "fallback", false, []string{"primary", "fallback"}},
		{"non-retryable stops", errors.New("bad request"), nil, "", true, []string{"primary"}},
		{"all fail", overloaded, &llm.ProviderError{Code: 503}, "", true, []string{"primary", "fallback"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			reg := llm.NewRegistry(silentLog())
			reg.Register("primary", failingModel("primary", tt.primary, &calls))
			reg.Register("fallback", failingModel("fallback", tt.fallback, &calls))

			fc := NewFailoverClient(reg, "primary", []string{"fallback"}, silentLog())
			resp, err := fc.Complete(context.Background(), llm.CompletionRequest{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, resp.Content)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestFailoverSkipsUnknownModel(t *testing.T) {
	var calls []string
	reg := llm.NewRegistry(silentLog())
	reg.Register("fallback", failingModel("fallback", nil, &calls))

	fc := NewFailoverClient(reg, "ghost/model", []string{"fallback"}, silentLog())
	assert.Equal(t, "failover:ghost/model", fc.Name())
	ch, err := fc.Stream(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	var got string
	for ev := range ch {
		got += ev.Content
	}
	assert.Equal(t, "fallback", got)
	assert.Equal(t, []string{"fallback"}, calls)
}

func TestFailoverAsInvokerClient(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "via failover"}, nil
	}}
	fc := NewFailoverClient(testRegistry(mock), "mock", nil, silentLog())
	inv := NewInvoker(fc, InvokerConfig{}, nil, silentLog())

	res, err := inv.Invoke(context.Background(), testDefinition(), Context{}, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "via failover", res.Text)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&llm.ProviderError{Code: 429}))
	assert.True(t, isRetryable(&llm.ProviderError{Code: 529}))
	assert.True(t, isRetryable(&llm.ProviderError{Code: 503}))
	assert.True(t, isRetryable(fmt.Errorf("server overloaded")))
	assert.True(t, isRetryable(fmt.Errorf("rate limit exceeded")))
	assert.False(t, isRetryable(fmt.Errorf("invalid input")))
	assert.False(t, isRetryable(nil))
}
