package dialog

import (
	"context"
	"sort"
	"sync"

	"github.com/soyeahso/tripdesk/internal/domain"
)

// Checkpoints persists conversation sessions keyed by thread id.
type Checkpoints interface {
	// Load returns the session for a thread, or nil if none exists.
	Load(ctx context.Context, threadID string) (*domain.Session, error)

	// Save stores the full session, replacing any previous state.
	Save(ctx context.Context, s *domain.Session) error
}

// MemoryCheckpoints is an in-memory Checkpoints implementation.
type MemoryCheckpoints struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemoryCheckpoints creates an empty in-memory checkpoint store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryCheckpoints) Load(_ context.Context, threadID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[threadID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryCheckpoints) Save(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ThreadID] = s.Clone()
	return nil
}

// List returns all thread ids.
func (m *MemoryCheckpoints) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
