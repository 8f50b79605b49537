package profile

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*UserProfile
}

// NewMemoryStore creates an in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*UserProfile)}
}

func (s *MemoryStore) GetByUserID(ctx context.Context, userID string) (*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) Create(ctx context.Context, p *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.UserID]; ok {
		return ErrExists
	}
	now := time.Now()
	cp := copyProfile(p)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.RiskTier == "" {
		cp.RiskTier = "BRONZE"
	}
	s.profiles[p.UserID] = cp
	return nil
}

func (s *MemoryStore) AddKnownDevice(ctx context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	if p.KnowsDevice(deviceID) {
		return nil
	}
	p.KnownDevices = append(p.KnownDevices, deviceID)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AdjustTrustScore(ctx context.Context, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.TrustScore += delta
	if p.TrustScore < 0 {
		p.TrustScore = 0
	}
	if p.TrustScore > 100 {
		p.TrustScore = 100
	}
	p.UpdatedAt = time.Now()
	return nil
}

func copyProfile(p *UserProfile) *UserProfile {
	cp := *p
	cp.KnownDevices = append([]string(nil), p.KnownDevices...)
	return &cp
}
