// Package memory implements long-term recall: owner-scoped vector memories,
// the embedders that produce their vectors, and the destination catalog.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoOwner is returned when a memory operation is not scoped to an owner.
var ErrNoOwner = errors.New("memory: owner is required")

// ErrReservedOwner is returned when a caller claims an internal owner
// namespace such as the destination catalog.
var ErrReservedOwner = errors.New("memory: owner is reserved")

// reservedPrefix marks owners used by the service itself.
const reservedPrefix = "catalog:"

// Reserved reports whether owner belongs to an internal namespace that no
// caller may use.
func Reserved(owner string) bool {
	return strings.HasPrefix(owner, reservedPrefix)
}

// callerOwner validates an owner supplied on behalf of a caller.
func callerOwner(owner string) error {
	switch {
	case owner == "":
		return ErrNoOwner
	case Reserved(owner):
		return ErrReservedOwner
	}
	return nil
}

// Record is one stored memory.
type Record struct {
	ID        string    `json:"id" bson:"_id"`
	Owner     string    `json:"owner" bson:"owner"`
	Text      string    `json:"text" bson:"text"`
	Vector    []float32 `json:"-" bson:"embedding"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Hit is a search result.
type Hit struct {
	Record
	Score float64 `json:"score"`
}

// Store is a nearest-neighbour index over records. Search only ranks records
// whose Owner equals owner; filtering happens before the limit is applied.
type Store interface {
	Add(ctx context.Context, r Record) error
	Search(ctx context.Context, owner string, vector []float32, k int) ([]Hit, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK sorts hits by descending score, keeping insertion order on ties, and
// truncates to k.
func TopK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// InMemoryStore is a brute-force Store for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Add(_ context.Context, r Record) error {
	if r.Owner == "" {
		return ErrNoOwner
	}
	r.Vector = append([]float32(nil), r.Vector...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *InMemoryStore) Search(_ context.Context, owner string, vector []float32, k int) ([]Hit, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []Hit
	for _, r := range s.records {
		if r.Owner != owner {
			continue
		}
		hits = append(hits, Hit{Record: r, Score: Cosine(vector, r.Vector)})
	}
	return TopK(hits, k), nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
