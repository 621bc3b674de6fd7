package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/tripdesk/internal/hooks"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/soyeahso/tripdesk/internal/metrics"
)

// DefaultK is the number of memories retrieved per turn.
const DefaultK = 3

const analyzeSystem = `You decide whether a message from a travel-booking customer contains a durable fact worth remembering about them: preferences (seats, airlines, hotel tiers, diets), constraints (budget, accessibility, travel companions, pets), home airport or city, loyalty programs, or plans they expect to come back to.
Greetings, one-off questions and booking requests that reveal nothing lasting are not memorable.
If the message is memorable, restate the fact as one short third-person sentence about the user, without dates relative to today.`

const analyzeSchema = `{"type":"object","properties":{` +
	`"memorable":{"type":"boolean","description":"Whether the message holds a durable fact about the user."},` +
	`"memory":{"type":"string","description":"The fact restated as one sentence, empty when not memorable."}},` +
	`"required":["memorable","memory"]}`

type verdict struct {
	Memorable bool   `json:"memorable"`
	Memory    string `json:"memory"`
}

// Recall is the memory service used by the router and the memory tools.
// All operations are scoped to an owner.
type Recall struct {
	store    Store
	embedder Embedder
	analyzer llm.Client
	model    string
	k        int
	hooks    *hooks.Manager
	metrics  *metrics.Collectors
	now      func() time.Time
	log      *logging.Logger
}

// RecallOption configures a Recall.
type RecallOption func(*Recall)

// WithAnalyzer enables AnalyzeAndStore using client.
func WithAnalyzer(client llm.Client, model string) RecallOption {
	return func(r *Recall) {
		r.analyzer = client
		r.model = model
	}
}

// WithK sets the per-turn retrieval size.
func WithK(k int) RecallOption {
	return func(r *Recall) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithHooks emits memory_stored events on m.
func WithHooks(m *hooks.Manager) RecallOption {
	return func(r *Recall) { r.hooks = m }
}

// WithMetrics counts stored memories on c.
func WithMetrics(c *metrics.Collectors) RecallOption {
	return func(r *Recall) { r.metrics = c }
}

// NewRecall creates a recall service.
func NewRecall(store Store, embedder Embedder, log *logging.Logger, opts ...RecallOption) *Recall {
	r := &Recall{
		store:    store,
		embedder: embedder,
		k:        DefaultK,
		now:      time.Now,
		log:      log.Sub("memory.recall"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// K returns the per-turn retrieval size.
func (r *Recall) K() int { return r.k }

// Search returns up to k of owner's memories nearest to query.
func (r *Recall) Search(ctx context.Context, owner, query string, k int) ([]Hit, error) {
	if err := callerOwner(owner); err != nil {
		return nil, err
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return r.store.Search(ctx, owner, vec, k)
}

// Retrieve returns the texts of owner's K memories nearest to query.
func (r *Recall) Retrieve(ctx context.Context, owner, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	hits, err := r.Search(ctx, owner, query, r.k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

// Save stores text as a memory of owner.
func (r *Recall) Save(ctx context.Context, owner, text string) (*Record, error) {
	if err := callerOwner(owner); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("memory: text is required")
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}
	rec := Record{
		ID:        uuid.NewString(),
		Owner:     owner,
		Text:      text,
		Vector:    vec,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.Add(ctx, rec); err != nil {
		return nil, err
	}

	r.metrics.MemoryStored()
	r.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventMemoryStored, map[string]any{
		"owner": owner,
		"id":    rec.ID,
	})
	r.log.Debug().Str("owner", owner).Str("id", rec.ID).Msg("memory stored")
	return &rec, nil
}

// AnalyzeAndStore asks the analyzer model whether message is worth
// remembering and, if so, saves its restatement. It is a no-op without an
// analyzer.
func (r *Recall) AnalyzeAndStore(ctx context.Context, owner, message string) error {
	if r.analyzer == nil {
		return nil
	}
	if err := callerOwner(owner); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return nil
	}

	resp, err := r.analyzer.Complete(ctx, llm.CompletionRequest{
		Model:          r.model,
		System:         analyzeSystem,
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: message}},
		MaxTokens:      256,
		ResponseSchema: analyzeSchema,
	})
	if err != nil {
		return fmt.Errorf("analyzing message: %w", err)
	}

	var v verdict
	if err := llm.UnmarshalJSON(resp.Content, &v); err != nil {
		return fmt.Errorf("parsing analysis: %w", err)
	}
	if !v.Memorable || strings.TrimSpace(v.Memory) == "" {
		r.log.Debug().Str("owner", owner).Msg("message not memorable")
		return nil
	}
	_, err = r.Save(ctx, owner, v.Memory)
	return err
}
