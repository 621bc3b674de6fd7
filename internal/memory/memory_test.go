package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/soyeahso/tripdesk/internal/config"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/soyeahso/tripdesk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestTopK(t *testing.T) {
	hits := []Hit{
		{Record: Record{ID: "a"}, Score: 0.1},
		{Record: Record{ID: "b"}, Score: 0.9},
		{Record: Record{ID: "c"}, Score: 0.5},
		{Record: Record{ID: "d"}, Score: 0.5},
	}
	top := TopK(hits, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "c", top[1].ID)
	assert.Equal(t, "d", top[2].ID)
}

func TestHashEmbedder(t *testing.T) {
	e := HashEmbedder{}
	ctx := context.Background()

	a, err := e.Embed(ctx, "I prefer aisle seats")
	require.NoError(t, err)
	assert.Len(t, a, DefaultHashDims)

	again, _ := e.Embed(ctx, "i PREFER aisle seats!")
	assert.Equal(t, a, again)

	related, _ := e.Embed(ctx, "aisle seats please")
	unrelated, _ := e.Embed(ctx, "vegetarian breakfast")
	assert.Greater(t, Cosine(a, related), Cosine(a, unrelated))

	empty, err := e.Embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, DefaultHashDims)
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	e, err := NewEmbedder(ctx, config.MemoryConfig{Embedder: "hash"}, "")
	require.NoError(t, err)
	assert.IsType(t, HashEmbedder{}, e)

	e, err = NewEmbedder(ctx, config.MemoryConfig{Embedder: "openai"}, "sk-test")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, e)
	assert.Equal(t, DefaultOpenAIEmbedModel, e.(*OpenAIEmbedder).model)

	e, err = NewEmbedder(ctx, config.MemoryConfig{Embedder: "ollama", EmbedModel: "mxbai-embed-large"}, "")
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", e.(*OllamaEmbedder).model)

	_, err = NewEmbedder(ctx, config.MemoryConfig{Embedder: "word2vec"}, "")
	assert.Error(t, err)
}

func TestInMemoryStoreRequiresOwner(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	assert.ErrorIs(t, s.Add(ctx, Record{Text: "x"}), ErrNoOwner)
	_, err := s.Search(ctx, "", []float32{1}, 3)
	assert.ErrorIs(t, err, ErrNoOwner)
}

func newRecall(t *testing.T, opts ...RecallOption) (*Recall, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	return NewRecall(store, HashEmbedder{}, silentLog(), opts...), store
}

func TestRecallNeverLeaksAcrossOwners(t *testing.T) {
	r, _ := newRecall(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.Save(ctx, "alice", fmt.Sprintf("alice likes window seats %d", i))
		require.NoError(t, err)
		_, err = r.Save(ctx, "bob", fmt.Sprintf("bob likes window seats %d", i))
		require.NoError(t, err)
	}

	for k := 1; k <= 12; k++ {
		for _, q := range []string{"window seats", "bob", "alice", "something else"} {
			hits, err := r.Search(ctx, "alice", q, k)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(hits), k)
			for _, h := range hits {
				assert.Equal(t, "alice", h.Owner, "k=%d query=%q", k, q)
			}
		}
	}

	hits, err := r.Search(ctx, "carol", "window seats", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRecallRetrieve(t *testing.T) {
	r, _ := newRecall(t, WithK(2))
	ctx := context.Background()
	assert.Equal(t, 2, r.K())

	_, err := r.Save(ctx, "alice", "Alice is vegetarian.")
	require.NoError(t, err)
	_, err = r.Save(ctx, "alice", "Alice flies out of Hanoi.")
	require.NoError(t, err)
	_, err = r.Save(ctx, "alice", "Alice travels with a dog.")
	require.NoError(t, err)

	texts, err := r.Retrieve(ctx, "alice", "Alice flies out of Hanoi.")
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, "Alice flies out of Hanoi.", texts[0])

	texts, err = r.Retrieve(ctx, "alice", "   ")
	require.NoError(t, err)
	assert.Empty(t, texts)

	_, err = r.Retrieve(ctx, "", "anything")
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestRecallSaveValidates(t *testing.T) {
	r, store := newRecall(t)
	ctx := context.Background()

	_, err := r.Save(ctx, "", "text")
	assert.ErrorIs(t, err, ErrNoOwner)
	_, err = r.Save(ctx, "alice", "  ")
	assert.Error(t, err)
	_, err = r.Save(ctx, CatalogOwner, "Da Lat is cool in the evenings.")
	assert.ErrorIs(t, err, ErrReservedOwner)
	_, err = r.Search(ctx, CatalogOwner, "Da Lat", 3)
	assert.ErrorIs(t, err, ErrReservedOwner)
	assert.Equal(t, 0, store.Len())

	rec, err := r.Save(ctx, "alice", "  Alice is allergic to peanuts.  ")
	require.NoError(t, err)
	assert.Equal(t, "Alice is allergic to peanuts.", rec.Text)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, store.Len())
}

func analyzer(content string, err error) *llm.MockClient {
	return &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if err != nil {
				return nil, err
			}
			if req.ResponseSchema == "" || !strings.Contains(req.ResponseSchema, "memorable") {
				return nil, errors.New("missing response schema")
			}
			return &llm.CompletionResponse{Content: content}, nil
		},
	}
}

func TestAnalyzeAndStoreMemorable(t *testing.T) {
	m := metrics.New()
	r, store := newRecall(t,
		WithAnalyzer(analyzer("```json\n{\"memorable\": true, \"memory\": \"The user always travels with a dog.\"}\n```", nil), "gemini-2.0-flash"),
		WithMetrics(m),
	)
	require.NoError(t, r.AnalyzeAndStore(context.Background(), "alice", "I always fly with my dog"))
	assert.Equal(t, 1, store.Len())

	texts, err := r.Retrieve(context.Background(), "alice", "dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"The user always travels with a dog."}, texts)
}

func TestAnalyzeAndStoreNotMemorable(t *testing.T) {
	r, store := newRecall(t, WithAnalyzer(analyzer(`{"memorable": false, "memory": ""}`, nil), ""))
	require.NoError(t, r.AnalyzeAndStore(context.Background(), "alice", "hello"))
	assert.Equal(t, 0, store.Len())
}

func TestAnalyzeAndStoreRepairsJSON(t *testing.T) {
	r, store := newRecall(t, WithAnalyzer(analyzer(`{"memorable": true, "memory": "The user is based in Da Nang.",}`, nil), ""))
	require.NoError(t, r.AnalyzeAndStore(context.Background(), "alice", "I live in Da Nang"))
	assert.Equal(t, 1, store.Len())
}

func TestAnalyzeAndStoreErrors(t *testing.T) {
	r, _ := newRecall(t, WithAnalyzer(analyzer("", errors.New("quota exceeded")), ""))
	assert.Error(t, r.AnalyzeAndStore(context.Background(), "alice", "I live in Da Nang"))
	assert.ErrorIs(t, r.AnalyzeAndStore(context.Background(), "", "I live in Da Nang"), ErrNoOwner)
}

func TestAnalyzeWithoutAnalyzerIsNoop(t *testing.T) {
	r, store := newRecall(t)
	require.NoError(t, r.AnalyzeAndStore(context.Background(), "alice", "I live in Da Nang"))
	assert.Equal(t, 0, store.Len())
}

func TestSplitPassages(t *testing.T) {
	text := "Guide\nintro line\n1. First place\nabout it\n2. Second\n\n10. Tenth\nend"
	assert.Equal(t, []string{"1. First place\nabout it", "2. Second", "10. Tenth\nend"}, SplitPassages(text))
	assert.Empty(t, SplitPassages("no headings here"))
	assert.Equal(t, []string{"1. Only"}, SplitPassages("1. Only"))
}

func TestCatalog(t *testing.T) {
	store := NewInMemoryStore()
	c := NewCatalog(store, HashEmbedder{}, silentLog())
	ctx := context.Background()

	n, err := c.LoadFile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	passages, err := c.Lookup(ctx, "Ha Long Bay limestone karsts emerald Quang Ninh", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.True(t, strings.HasPrefix(passages[0], "1. Ha Long Bay"))

	// Catalog passages never surface as user memories.
	r := NewRecall(store, HashEmbedder{}, silentLog())
	texts, err := r.Retrieve(ctx, "alice", "Ha Long Bay")
	require.NoError(t, err)
	assert.Empty(t, texts)

	_, err = c.LoadFile(ctx, "/nonexistent/destinations.txt")
	assert.Error(t, err)
}

func TestSearchPipelineFiltersOwner(t *testing.T) {
	p := searchPipeline("recall_vector_index", "alice", []float32{0.5, 0.25}, 3)
	require.Len(t, p, 2)
	stage := p[0][0]
	assert.Equal(t, "$vectorSearch", stage.Key)
	vs := stage.Value.(bson.D).Map()
	assert.Equal(t, "recall_vector_index", vs["index"])
	assert.Equal(t, int64(3), vs["limit"])
	assert.Equal(t, int64(30), vs["numCandidates"])
	assert.Equal(t, []float64{0.5, 0.25}, vs["queryVector"])
	assert.Equal(t, bson.D{{Key: "owner", Value: bson.D{{Key: "$eq", Value: "alice"}}}}, vs["filter"])
}
