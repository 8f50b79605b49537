package risk

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory decision store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Decision
	byUser map[string][]*Decision
}

// NewMemoryStore creates an in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Decision),
		byUser: make(map[string][]*Decision),
	}
}

func (s *MemoryStore) Record(ctx context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	if existing, ok := s.byID[d.ID]; ok {
		*existing = cp
		return nil
	}
	s.byID[d.ID] = &cp
	s.byUser[d.UserID] = append(s.byUser[d.UserID], &cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.byID[id]
	if !ok {
		return nil, ErrDecisionNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decisions := s.byUser[userID]
	result := make([]*Decision, 0, len(decisions))
	for _, d := range decisions {
		cp := *d
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EvaluatedAt.After(result[j].EvaluatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
