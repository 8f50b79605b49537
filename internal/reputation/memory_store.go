package reputation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an in-memory reputation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) GetByPayee(ctx context.Context, payee string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[payee]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) IncrementTotal(ctx context.Context, payee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[payee]
	if r == nil {
		r = &Record{Payee: payee}
		s.records[payee] = r
	}
	r.TotalTransactions++
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReportFraud(ctx context.Context, payee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[payee]
	if r == nil {
		r = &Record{Payee: payee}
		s.records[payee] = r
	}
	r.FraudCount++
	if r.FraudCount > r.TotalTransactions {
		r.TotalTransactions = r.FraudCount
	}
	r.UpdatedAt = time.Now()
	return nil
}

// Seed installs a record directly, for tests and demo fixtures.
func (s *MemoryStore) Seed(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.records[r.Payee] = &cp
}
