package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/soyeahso/tripdesk/internal/memory"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(MemoryPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tripdesk.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.FileExists(t, path)
}

func TestMigrationsAppliedOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)

	require.NoError(t, db.migrate(ctx))
	v2, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripdesk.db")
	log := logging.New(nil, "silent")
	db, err := Open(path, log)
	require.NoError(t, err)
	require.NoError(t, NewCheckpointStore(db).Save(context.Background(), session("t-1", "primary")))
	require.NoError(t, db.Close())

	db, err = Open(path, log)
	require.NoError(t, err)
	defer db.Close()
	got, err := NewCheckpointStore(db).Load(context.Background(), "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"primary"}, got.Stack)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"sessions", "messages", "memories"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- Checkpoint store tests ---

func session(thread string, stack ...string) *domain.Session {
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	return &domain.Session{
		ThreadID:  thread,
		CallerID:  "alice",
		Stack:     stack,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Find me a flight", Timestamp: now},
			{
				Role: domain.RoleAssistant, Agent: "primary", Timestamp: now,
				ToolCalls: []domain.ToolCall{{ID: "c1", Name: "ToFlightBookingAssistant", Input: `{"request":"HAN to SGN"}`}},
			},
			{Role: domain.RoleTool, Content: "The assistant is now the Flight Assistant.", ToolCallID: "c1", Name: "ToFlightBookingAssistant", Timestamp: now},
		},
	}
}

func TestCheckpointStore_LoadMissing(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	got, err := cs.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	ctx := context.Background()
	want := session("t1", "flight")
	require.NoError(t, cs.Save(ctx, want))

	got, err := cs.Load(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.CallerID)
	assert.Equal(t, []string{"flight"}, got.Stack)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Messages, 3)
	assert.Equal(t, want.Messages[1].ToolCalls, got.Messages[1].ToolCalls)
	assert.Equal(t, "primary", got.Messages[1].Agent)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)
	assert.Equal(t, "ToFlightBookingAssistant", got.Messages[2].Name)
	assert.True(t, want.Messages[0].Timestamp.Equal(got.Messages[0].Timestamp))
}

func TestCheckpointStore_EmptyStack(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	ctx := context.Background()
	require.NoError(t, cs.Save(ctx, session("t1")))

	got, err := cs.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.Stack)
}

func TestCheckpointStore_SaveAppendsAndReplacesStack(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	ctx := context.Background()
	s := session("t1", "flight")
	require.NoError(t, cs.Save(ctx, s))

	s.Stack = nil
	s.Messages = append(s.Messages,
		domain.Message{Role: domain.RoleTool, Content: "Resuming dialog with the host assistant.", ToolCallID: "c2"},
		domain.Message{Role: domain.RoleAssistant, Content: "Anything else?"},
	)
	s.UpdatedAt = s.UpdatedAt.Add(time.Minute)
	require.NoError(t, cs.Save(ctx, s))

	got, err := cs.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.Stack)
	require.Len(t, got.Messages, 5)
	assert.Equal(t, "Anything else?", got.Messages[4].Content)
	assert.True(t, s.UpdatedAt.Equal(got.UpdatedAt))
}

func TestCheckpointStore_SaveTruncatesShorterHistory(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	ctx := context.Background()
	s := session("t1")
	require.NoError(t, cs.Save(ctx, s))

	s.Messages = s.Messages[:1]
	require.NoError(t, cs.Save(ctx, s))

	got, err := cs.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestCheckpointStore_ThreadsAreIsolated(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	ctx := context.Background()
	require.NoError(t, cs.Save(ctx, session("t1", "flight")))
	b := session("t2", "hotel")
	b.CallerID = "bob"
	b.Messages = b.Messages[:1]
	require.NoError(t, cs.Save(ctx, b))

	a, err := cs.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"flight"}, a.Stack)
	assert.Len(t, a.Messages, 3)

	got, err := cs.Load(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.CallerID)
	assert.Equal(t, []string{"hotel"}, got.Stack)
	assert.Len(t, got.Messages, 1)
}

func TestCheckpointStore_ThreadsAndDelete(t *testing.T) {
	cs := NewCheckpointStore(testDB(t))
	ctx := context.Background()
	older := session("old")
	newer := session("new")
	newer.UpdatedAt = newer.UpdatedAt.Add(time.Hour)
	require.NoError(t, cs.Save(ctx, older))
	require.NoError(t, cs.Save(ctx, newer))

	ids, err := cs.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	require.NoError(t, cs.Delete(ctx, "old"))
	got, err := cs.Load(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got)

	var n int
	require.NoError(t, cs.db.sql.QueryRow(`SELECT COUNT(*) FROM messages WHERE thread_id = 'old'`).Scan(&n))
	assert.Zero(t, n)
}

// --- Vector store tests ---

func TestVectorStore_OwnerRequired(t *testing.T) {
	vs := NewVectorStore(testDB(t))
	ctx := context.Background()
	assert.ErrorIs(t, vs.Add(ctx, memory.Record{ID: "1", Text: "x"}), memory.ErrNoOwner)
	_, err := vs.Search(ctx, "", []float32{1}, 3)
	assert.ErrorIs(t, err, memory.ErrNoOwner)
}

func TestVectorStore_SearchRanksWithinOwner(t *testing.T) {
	vs := NewVectorStore(testDB(t))
	ctx := context.Background()
	require.NoError(t, vs.Add(ctx, memory.Record{ID: "a1", Owner: "alice", Text: "likes beaches", Vector: []float32{1, 0}}))
	require.NoError(t, vs.Add(ctx, memory.Record{ID: "a2", Owner: "alice", Text: "afraid of heights", Vector: []float32{0, 1}}))
	require.NoError(t, vs.Add(ctx, memory.Record{ID: "b1", Owner: "bob", Text: "likes beaches too", Vector: []float32{1, 0}}))

	hits, err := vs.Search(ctx, "alice", []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1", hits[0].ID)
	assert.Equal(t, []float32{1, 0}, hits[0].Vector)

	hits, err = vs.Search(ctx, "alice", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "alice", h.Owner)
	}

	hits, err = vs.Search(ctx, "carol", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorStore_NeverLeaksAcrossOwners(t *testing.T) {
	vs := NewVectorStore(testDB(t))
	ctx := context.Background()
	for i := range 20 {
		owner := "alice"
		if i%2 == 1 {
			owner = "bob"
		}
		require.NoError(t, vs.Add(ctx, memory.Record{ID: fmt.Sprint(i), Owner: owner, Text: "m", Vector: []float32{float32(i), 1}}))
	}
	for k := 1; k <= 12; k++ {
		hits, err := vs.Search(ctx, "bob", []float32{0, 1}, k)
		require.NoError(t, err)
		assert.Len(t, hits, min(k, 10))
		for _, h := range hits {
			assert.Equal(t, "bob", h.Owner)
		}
	}
}

func TestVectorStore_UpsertAndCount(t *testing.T) {
	vs := NewVectorStore(testDB(t))
	ctx := context.Background()
	require.NoError(t, vs.Add(ctx, memory.Record{ID: "1", Owner: "alice", Text: "old", Vector: []float32{1}}))
	require.NoError(t, vs.Add(ctx, memory.Record{ID: "1", Owner: "alice", Text: "new", Vector: []float32{1}}))

	n, err := vs.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := vs.Search(ctx, "alice", []float32{1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Text)
}

func TestVectorStore_BacksRecall(t *testing.T) {
	vs := NewVectorStore(testDB(t))
	r := memory.NewRecall(vs, memory.HashEmbedder{}, logging.New(nil, "silent"))
	ctx := context.Background()

	_, err := r.Save(ctx, "alice", "Alice prefers window seats on long flights")
	require.NoError(t, err)
	got, err := r.Retrieve(ctx, "alice", "Alice prefers window seats on long flights")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice prefers window seats on long flights"}, got)

	got, err = r.Retrieve(ctx, "bob", "window seats")
	require.NoError(t, err)
	assert.Empty(t, got)
}
