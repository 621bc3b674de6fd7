package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/hooks"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/soyeahso/tripdesk/internal/metrics"
)

var (
	// ErrTooManyRounds is returned when a turn exceeds its model call budget.
	ErrTooManyRounds = errors.New("dialog: too many tool rounds in one turn")
	// ErrCallerMismatch is returned when a thread is resumed by another caller.
	ErrCallerMismatch = errors.New("dialog: thread belongs to another caller")
)

const (
	entryMessage = "The assistant is now the %s. Reflect on the above conversation between the host assistant and the user. " +
		"The user's intent is unsatisfied. Use the provided tools to assist the user. Remember, you are %s, " +
		"and the booking, search, or other action is not complete until after you have successfully invoked the appropriate tool. " +
		"If the user changes their mind or needs help for other tasks, call the CompleteOrEscalate function to let the primary host assistant take control. " +
		"Do not mention who you are - just act as the proxy for the assistant."
	resumeMessage      = "Resuming dialog with the host assistant. Please reflect on the past conversation and assist the user as needed."
	notExecutedMessage = "Not executed: only the first tool call of a response is handled. Call %s again if it is still needed."

	defaultMaxToolRounds = 12
)

// Recaller is the memory surface the router needs.
type Recaller interface {
	Retrieve(ctx context.Context, owner, query string) ([]string, error)
	AnalyzeAndStore(ctx context.Context, owner, text string) error
}

// Config bounds a turn.
type Config struct {
	MaxToolRounds  int
	TurnTimeout    time.Duration
	AnalyzeTimeout time.Duration
	FallbackReply  string
	FailureReply   string
}

// Event is streamed to the transport while a turn runs.
type Event struct {
	Type    string `json:"type"` // "delta" or "agent"
	Content string `json:"content,omitempty"`
	Agent   string `json:"agent"`
}

// StreamFunc receives turn events. It is called from the turn's goroutine.
type StreamFunc func(Event)

// TurnResult is what the transport shows the user.
type TurnResult struct {
	ThreadID string        `json:"threadId"`
	Reply    string        `json:"reply"`
	Agent    string        `json:"agent"`
	Depth    int           `json:"depth"`
	Rounds   int           `json:"rounds"`
	Fallback bool          `json:"fallback,omitempty"`
	Failed   bool          `json:"failed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SessionInfo summarizes a persisted thread.
type SessionInfo struct {
	ThreadID  string    `json:"threadId"`
	CallerID  string    `json:"callerId"`
	Agent     string    `json:"agent"`
	Stack     []string  `json:"stack"`
	Depth     int       `json:"depth"`
	Messages  int       `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RouterOption configures optional Router collaborators.
type RouterOption func(*Router)

// WithMemory enables recall retrieval and analyze-and-store.
func WithMemory(m Recaller) RouterOption {
	return func(r *Router) { r.memory = m }
}

// WithHooks emits lifecycle events on m.
func WithHooks(m *hooks.Manager) RouterOption {
	return func(r *Router) { r.hooks = m }
}

// WithMetrics records turn metrics on c.
func WithMetrics(c *metrics.Collectors) RouterOption {
	return func(r *Router) { r.metrics = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// Router drives conversation turns through the agent graph. Turns on the
// same thread are serialized; distinct threads run in parallel.
type Router struct {
	graph       *Graph
	invoker     *agent.Invoker
	checkpoints Checkpoints
	memory      Recaller
	hooks       *hooks.Manager
	metrics     *metrics.Collectors
	cfg         Config
	locks       *threadLocks
	background  sync.WaitGroup
	now         func() time.Time
	log         *logging.Logger
}

// NewRouter creates a router.
func NewRouter(g *Graph, inv *agent.Invoker, cp Checkpoints, cfg Config, log *logging.Logger, opts ...RouterOption) *Router {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = 30 * time.Second
	}
	r := &Router{
		graph:       g,
		invoker:     inv,
		checkpoints: cp,
		cfg:         cfg,
		locks:       newThreadLocks(),
		now:         time.Now,
		log:         log.Sub("dialog.router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Graph returns the agent graph.
func (r *Router) Graph() *Graph { return r.graph }

// Wait blocks until background memory analysis has finished.
func (r *Router) Wait() { r.background.Wait() }

// turnState is the working copy of a session during a turn. Nothing in it
// is persisted unless the turn completes.
type turnState struct {
	session *domain.Session
	stack   *Stack
	caller  string
	recall  []string
	stream  StreamFunc
	rounds  int
}

// Turn processes one user input. On failure the returned result carries the
// configured failure reply alongside the error and the checkpoint is left
// untouched.
func (r *Router) Turn(ctx context.Context, in domain.Turn, stream StreamFunc) (*TurnResult, error) {
	start := r.now()
	if in.ThreadID == "" {
		return nil, fmt.Errorf("dialog: thread id is required")
	}
	if in.CallerID == "" {
		return nil, fmt.Errorf("dialog: caller identity is required")
	}

	if r.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TurnTimeout)
		defer cancel()
	}

	log := r.log.With("thread", in.ThreadID).With("caller", in.CallerID)

	release, err := r.locks.acquire(ctx, in.ThreadID)
	if err != nil {
		return r.fail(ctx, in, Primary, 0, start, fmt.Errorf("waiting for thread: %w", err))
	}
	defer release()

	st, err := r.begin(ctx, in)
	if err != nil {
		return r.fail(ctx, in, Primary, 0, start, err)
	}
	st.stream = stream

	r.hooks.Emit(ctx, hooks.EventTurnStart, map[string]any{
		"thread": in.ThreadID,
		"caller": in.CallerID,
		"agent":  st.stack.Active().String(),
	})

	if r.memory != nil {
		st.recall, err = r.memory.Retrieve(ctx, in.CallerID, in.Text)
		if err != nil {
			return r.fail(ctx, in, st.stack.Active(), st.stack.Depth(), start, fmt.Errorf("retrieving memories: %w", err))
		}
		r.analyzeAsync(ctx, in)
	}

	reply, fallback, err := r.run(ctx, st, log)
	if err != nil {
		return r.fail(ctx, in, st.stack.Active(), st.stack.Depth(), start, err)
	}

	st.session.Stack = st.stack.Strings()
	st.session.UpdatedAt = r.now()
	if err := r.checkpoints.Save(ctx, st.session); err != nil {
		return r.fail(ctx, in, st.stack.Active(), st.stack.Depth(), start, fmt.Errorf("saving checkpoint: %w", err))
	}

	res := &TurnResult{
		ThreadID: in.ThreadID,
		Reply:    reply,
		Agent:    st.stack.Active().String(),
		Depth:    st.stack.Depth(),
		Rounds:   st.rounds,
		Fallback: fallback,
		Duration: r.now().Sub(start),
	}

	outcome := metrics.OutcomeOK
	if fallback {
		outcome = metrics.OutcomeFallback
	}
	r.metrics.Turn(outcome, res.Duration)
	r.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventTurnEnd, map[string]any{
		"thread":  in.ThreadID,
		"caller":  in.CallerID,
		"agent":   res.Agent,
		"depth":   res.Depth,
		"outcome": outcome,
	})

	log.Info().
		Str("agent", res.Agent).
		Int("depth", res.Depth).
		Int("rounds", res.Rounds).
		Bool("fallback", fallback).
		Dur("duration", res.Duration).
		Msg("turn complete")
	return res, nil
}

// begin loads or creates the session and appends the user message.
func (r *Router) begin(ctx context.Context, in domain.Turn) (*turnState, error) {
	loaded, err := r.checkpoints.Load(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	var session *domain.Session
	if loaded == nil {
		now := r.now()
		session = &domain.Session{ThreadID: in.ThreadID, CallerID: in.CallerID, CreatedAt: now, UpdatedAt: now}
	} else {
		if loaded.CallerID != in.CallerID {
			return nil, ErrCallerMismatch
		}
		session = loaded.Clone()
	}

	stack, err := restoreStack(session.Stack, r.graph)
	if err != nil {
		return nil, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	session.Messages = append(session.Messages, domain.Message{Role: domain.RoleUser, Content: in.Text, Timestamp: ts})

	return &turnState{session: session, stack: stack, caller: in.CallerID}, nil
}

// run invokes agents until one replies with text.
func (r *Router) run(ctx context.Context, st *turnState, log *logging.Logger) (string, bool, error) {
	for st.rounds < r.cfg.MaxToolRounds {
		st.rounds++
		active := st.stack.Active()
		def, ok := r.graph.Definition(active)
		if !ok {
			return "", false, fmt.Errorf("dialog: no definition for %s", active)
		}

		var onDelta agent.DeltaFunc
		if st.stream != nil {
			onDelta = func(d string) { st.stream(Event{Type: "delta", Content: d, Agent: active.String()}) }
		}

		res, err := r.invoker.Invoke(ctx, def, agent.Context{
			Caller:   st.caller,
			Recall:   st.recall,
			Messages: st.session.Messages,
			Now:      r.now(),
		}, onDelta)
		if errors.Is(err, agent.ErrNoResponse) {
			log.Warn().Str("agent", active.String()).Msg("no model response, using fallback reply")
			r.appendAssistant(st, active, r.cfg.FallbackReply, nil)
			return r.cfg.FallbackReply, true, nil
		}
		if err != nil {
			return "", false, err
		}

		sig, extra, err := Decode(r.graph, active, res)
		if err != nil {
			return "", false, err
		}
		if len(extra) > 0 {
			names := make([]string, len(extra))
			for i, c := range extra {
				names[i] = c.Name
			}
			log.Warn().
				Str("agent", active.String()).
				Strs("ignored", names).
				Msg("model returned several tool calls, only the first is handled")
			r.metrics.IgnoredToolCalls(active.String(), len(extra))
		}

		switch s := sig.(type) {
		case Reply:
			r.appendAssistant(st, active, s.Text, nil)
			return s.Text, false, nil

		case Transfer:
			name := r.graph.Name(s.Target)
			content := fmt.Sprintf(entryMessage, name, name)
			if s.Request != "" {
				content += "\n\nRequest: " + s.Request
			}
			r.appendAssistant(st, active, res.Text, res.Calls)
			r.appendToolResult(st, s.Call, content)
			r.answerExtra(st, extra)
			if err := st.stack.Push(s.Target); err != nil {
				return "", false, err
			}
			r.transitioned(ctx, st, "transfer", s.Target, log)

		case Escalate:
			r.appendAssistant(st, active, res.Text, res.Calls)
			r.appendToolResult(st, s.Call, resumeMessage)
			r.answerExtra(st, extra)
			if _, err := st.stack.Pop(); err != nil {
				return "", false, err
			}
			log.Debug().Bool("cancel", s.Cancel).Str("reason", s.Reason).Msg("specialist handed back control")
			r.transitioned(ctx, st, "escalate", active, log)

		case ToolUse:
			r.appendAssistant(st, active, res.Text, res.Calls)
			out, err := r.execute(ctx, def, st.caller, s.Call, log)
			if err != nil {
				return "", false, err
			}
			r.appendToolResult(st, s.Call, out)
			r.answerExtra(st, extra)
		}
	}
	return "", false, ErrTooManyRounds
}

// execute runs a domain tool. Domain failures arrive as output text; an
// error here is an infrastructure failure and aborts the turn.
func (r *Router) execute(ctx context.Context, def *agent.Definition, caller string, call llm.ToolCall, log *logging.Logger) (string, error) {
	tool, _ := def.Tools.Get(call.Name)
	start := time.Now()
	out, err := tool.Execute(ctx, caller, call.Input)
	if err != nil {
		r.metrics.ToolCall(call.Name, "error")
		return "", fmt.Errorf("tool %s: %w", call.Name, err)
	}
	r.metrics.ToolCall(call.Name, "ok")
	log.Debug().
		Str("agent", def.ID).
		Str("tool", call.Name).
		Str("callId", call.ID).
		Dur("duration", time.Since(start)).
		Msg("tool executed")
	return out, nil
}

func (r *Router) transitioned(ctx context.Context, st *turnState, kind string, id AgentID, log *logging.Logger) {
	r.metrics.Transition(kind, id.String())
	event := hooks.EventAgentTransfer
	if kind == "escalate" {
		event = hooks.EventAgentEscalate
	}
	r.hooks.EmitAsync(context.WithoutCancel(ctx), event, map[string]any{
		"thread": st.session.ThreadID,
		"caller": st.caller,
		"agent":  id.String(),
		"depth":  st.stack.Depth(),
	})
	if st.stream != nil {
		st.stream(Event{Type: "agent", Agent: st.stack.Active().String()})
	}
	log.Info().
		Str("kind", kind).
		Str("agent", id.String()).
		Int("depth", st.stack.Depth()).
		Msg("dialog transition")
}

func (r *Router) appendAssistant(st *turnState, id AgentID, text string, calls []llm.ToolCall) {
	msg := domain.Message{Role: domain.RoleAssistant, Content: text, Agent: id.String(), Timestamp: r.now()}
	for _, c := range calls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{ID: c.ID, Name: c.Name, Input: c.Input})
	}
	st.session.Messages = append(st.session.Messages, msg)
}

func (r *Router) appendToolResult(st *turnState, call llm.ToolCall, content string) {
	st.session.Messages = append(st.session.Messages, domain.Message{
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
		Timestamp:  r.now(),
	})
}

// answerExtra gives every unrouted call a result so the history stays valid
// for providers that require one result per call.
func (r *Router) answerExtra(st *turnState, extra []llm.ToolCall) {
	for _, c := range extra {
		r.appendToolResult(st, c, fmt.Sprintf(notExecutedMessage, c.Name))
	}
}

// analyzeAsync runs analyze-and-store detached from the turn so the reply
// never waits on it.
func (r *Router) analyzeAsync(ctx context.Context, in domain.Turn) {
	if strings.TrimSpace(in.Text) == "" {
		return
	}
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.AnalyzeTimeout)
		defer cancel()
		if err := r.memory.AnalyzeAndStore(actx, in.CallerID, in.Text); err != nil {
			r.log.Warn().Err(err).Str("thread", in.ThreadID).Msg("memory analysis failed")
		}
	}()
}

func (r *Router) fail(ctx context.Context, in domain.Turn, active AgentID, depth int, start time.Time, err error) (*TurnResult, error) {
	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeTimeout
	case errors.Is(err, ErrInvalidRoute):
		outcome = metrics.OutcomeRouteError
	}
	d := r.now().Sub(start)
	r.metrics.Turn(outcome, d)
	r.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventTurnEnd, map[string]any{
		"thread":  in.ThreadID,
		"caller":  in.CallerID,
		"outcome": outcome,
		"error":   err.Error(),
	})
	r.log.Error().
		Err(err).
		Str("thread", in.ThreadID).
		Str("caller", in.CallerID).
		Str("outcome", outcome).
		Msg("turn failed")

	return &TurnResult{
		ThreadID: in.ThreadID,
		Reply:    r.cfg.FailureReply,
		Agent:    active.String(),
		Depth:    depth,
		Failed:   true,
		Duration: d,
	}, err
}

// Session returns a summary of a persisted thread, or nil if unknown.
func (r *Router) Session(ctx context.Context, threadID string) (*SessionInfo, error) {
	s, err := r.checkpoints.Load(ctx, threadID)
	if err != nil || s == nil {
		return nil, err
	}
	stack, err := restoreStack(s.Stack, r.graph)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		ThreadID:  s.ThreadID,
		CallerID:  s.CallerID,
		Agent:     stack.Active().String(),
		Stack:     stack.Strings(),
		Depth:     stack.Depth(),
		Messages:  len(s.Messages),
		UpdatedAt: s.UpdatedAt,
	}, nil
}
