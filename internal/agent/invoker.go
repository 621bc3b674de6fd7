package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/soyeahso/tripdesk/internal/metrics"
)

// ErrNoResponse is returned when the model produced neither text nor a tool
// call within the attempt budget.
var ErrNoResponse = errors.New("agent: model returned no response")

// retryInstruction is appended as a user message after an empty response.
const retryInstruction = "Respond with a real output."

// DefaultMaxAttempts bounds model calls per invocation.
const DefaultMaxAttempts = 3

// InvokerConfig configures the model calls an Invoker makes.
type InvokerConfig struct {
	MaxAttempts int
	MaxTokens   int
	Temperature *float64
}

// Context is everything an invocation needs besides the agent definition.
type Context struct {
	Caller   string
	Recall   []string
	Messages []domain.Message
	Now      time.Time
}

// Result is the outcome of one invocation: either a text reply or a batch of
// tool calls.
type Result struct {
	Text     string
	Calls    []llm.ToolCall
	Model    string
	Usage    llm.Usage
	Attempts int
}

// IsReply reports whether the result is plain text with no tool calls.
func (r *Result) IsReply() bool { return len(r.Calls) == 0 }

// DeltaFunc receives streamed text as it arrives.
type DeltaFunc func(delta string)

// Invoker binds an LLM client to agent definitions. It has no side effects
// beyond the model call.
type Invoker struct {
	client  llm.Client
	cfg     InvokerConfig
	metrics *metrics.Collectors
	log     *logging.Logger
}

// NewInvoker creates an invoker. m may be nil.
func NewInvoker(client llm.Client, cfg InvokerConfig, m *metrics.Collectors, log *logging.Logger) *Invoker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Invoker{client: client, cfg: cfg, metrics: m, log: log.Sub("agent.invoker")}
}

// Invoke renders def's prompt, submits the conversation with def's tools and
// returns the model's reply or tool calls. Empty responses are retried with a
// corrective user instruction up to MaxAttempts times, after which
// ErrNoResponse is returned. When onDelta is non-nil the call is streamed,
// and deltas reach onDelta only once the response turns out to be a reply
// rather than a tool round.
func (inv *Invoker) Invoke(ctx context.Context, def *Definition, ic Context, onDelta DeltaFunc) (*Result, error) {
	now := ic.Now
	if now.IsZero() {
		now = time.Now()
	}
	system, err := def.System(ic.Caller, ic.Recall, now)
	if err != nil {
		return nil, err
	}

	req := llm.CompletionRequest{
		System:      system,
		Messages:    History(ic.Messages),
		Tools:       def.ToolDefinitions(),
		MaxTokens:   inv.cfg.MaxTokens,
		Temperature: inv.cfg.Temperature,
	}

	log := inv.log.With("agent", def.ID)
	for attempt := 1; attempt <= inv.cfg.MaxAttempts; attempt++ {
		resp, err := inv.call(ctx, req, onDelta)
		if err != nil {
			return nil, fmt.Errorf("invoking %s: %w", def.ID, err)
		}
		if !resp.Empty() {
			log.Debug().
				Int("attempt", attempt).
				Int("toolCalls", len(resp.ToolCalls)).
				Int("inputTokens", resp.Usage.InputTokens).
				Int("outputTokens", resp.Usage.OutputTokens).
				Msg("model responded")
			return &Result{
				Text:     strings.TrimSpace(resp.Content),
				Calls:    resp.ToolCalls,
				Model:    resp.Model,
				Usage:    resp.Usage,
				Attempts: attempt,
			}, nil
		}

		log.Warn().Int("attempt", attempt).Msg("empty model response")
		if attempt < inv.cfg.MaxAttempts {
			inv.metrics.InvokerRetry(def.ID)
			req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: retryInstruction})
		}
	}
	return nil, ErrNoResponse
}

func (inv *Invoker) call(ctx context.Context, req llm.CompletionRequest, onDelta DeltaFunc) (*llm.CompletionResponse, error) {
	if onDelta == nil {
		return inv.client.Complete(ctx, req)
	}

	ch, err := inv.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var held []string
	var final *llm.CompletionResponse
	for evt := range ch {
		switch evt.Type {
		case "delta":
			text.WriteString(evt.Content)
			held = append(held, evt.Content)
		case "done":
			final = evt.Response
		case "error":
			return nil, fmt.Errorf("stream error: %s", evt.Error)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if final == nil {
		final = &llm.CompletionResponse{}
	}
	if final.Content == "" {
		final.Content = text.String()
	}
	if len(final.ToolCalls) == 0 {
		for _, d := range held {
			onDelta(d)
		}
	}
	return final, nil
}

// History converts stored conversation messages into LLM messages.
func History(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		out = append(out, lm)
	}
	return out
}
