package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/tripdesk/internal/memory"
)

var _ memory.Store = (*VectorStore)(nil)

// VectorStore is a memory.Store over SQLite. Embeddings are stored as JSON
// and ranked in Go after an owner-filtered scan.
type VectorStore struct {
	db *DB
}

// NewVectorStore creates a vector store using the given database.
func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

func (v *VectorStore) Add(ctx context.Context, r memory.Record) error {
	if r.Owner == "" {
		return memory.ErrNoOwner
	}
	emb, err := json.Marshal(r.Vector)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = v.db.sql.ExecContext(ctx,
		`INSERT INTO memories (id, owner, text, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   text = excluded.text,
		   embedding = excluded.embedding`,
		r.ID, r.Owner, r.Text, string(emb), formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("storing memory %s: %w", r.ID, err)
	}
	return nil
}

func (v *VectorStore) Search(ctx context.Context, owner string, vector []float32, k int) ([]memory.Hit, error) {
	if owner == "" {
		return nil, memory.ErrNoOwner
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := v.db.sql.QueryContext(ctx,
		`SELECT id, owner, text, embedding, created_at
		 FROM memories WHERE owner = ? ORDER BY created_at, id`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	var hits []memory.Hit
	for rows.Next() {
		var r memory.Record
		var emb, created string
		if err := rows.Scan(&r.ID, &r.Owner, &r.Text, &emb, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(emb), &r.Vector); err != nil {
			return nil, fmt.Errorf("decoding embedding of %s: %w", r.ID, err)
		}
		r.CreatedAt = parseTime(created)
		hits = append(hits, memory.Hit{Record: r, Score: memory.Cosine(vector, r.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memory.TopK(hits, k), nil
}

// Count returns the number of memories held for owner.
func (v *VectorStore) Count(ctx context.Context, owner string) (int, error) {
	var n int
	err := v.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE owner = ?`, owner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}
