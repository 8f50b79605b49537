package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Transaction
	byUser map[string][]*Transaction
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Transaction),
		byUser: make(map[string][]*Transaction),
	}
}

func (s *MemoryStore) Record(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	if existing, ok := s.byID[cp.ID]; ok {
		// Idempotent upsert by ID
		*existing = cp
		return nil
	}
	s.byID[cp.ID] = &cp
	s.byUser[cp.UserID] = append(s.byUser[cp.UserID], &cp)
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	return nil
}

func (s *MemoryStore) SetRiskResult(ctx context.Context, id string, result RiskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	tx.RiskScore = result.Score
	tx.RiskLevel = result.Level
	tx.Action = result.Action
	if result.Status != "" {
		tx.Status = result.Status
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) Stats(ctx context.Context, userID string, now time.Time) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{DaysSinceLastTxn: DaysSinceLastSentinel}

	txns := s.byUser[userID]
	if len(txns) == 0 {
		return stats, nil
	}

	cutoff30d := now.Add(-30 * 24 * time.Hour)
	cutoff7d := now.Add(-7 * 24 * time.Hour)
	cutoff24h := now.Add(-24 * time.Hour)
	cutoff1h := now.Add(-time.Hour)
	cutoff5m := now.Add(-5 * time.Minute)

	var sum30, sum7 int64
	var n30, n7 int
	var night30, total30 int
	var last time.Time

	for _, tx := range txns {
		ts := tx.CreatedAt
		if ts.After(now) {
			continue
		}
		// Recency tracks completed transfers only: a burst of pending
		// attempts must not mask a dormant account.
		if tx.Status == StatusCompleted && ts.After(last) {
			last = ts
		}

		if ts.After(cutoff30d) {
			total30++
			if isNightHour(ts.Hour()) {
				night30++
			}
			stats.Count30D++
			if ts.After(cutoff24h) {
				stats.Count24H++
			}
			if ts.After(cutoff1h) {
				stats.Count1H++
			}
			if ts.After(cutoff5m) {
				stats.Count5Min++
			}
			if tx.Status == StatusFailed && ts.After(cutoff7d) {
				stats.Failed7d++
			}
			if tx.Status == StatusCompleted {
				sum30 += tx.Amount
				n30++
				if tx.Amount > stats.MaxAmount30d {
					stats.MaxAmount30d = tx.Amount
				}
				if ts.After(cutoff7d) {
					sum7 += tx.Amount
					n7++
					if tx.Amount > stats.MaxAmount7d {
						stats.MaxAmount7d = tx.Amount
					}
				}
			}
		}
	}

	if n30 > 0 {
		stats.AvgAmount30d = float64(sum30) / float64(n30)
	}
	if n7 > 0 {
		stats.AvgAmount7d = float64(sum7) / float64(n7)
	}
	if total30 > 0 {
		stats.NightTxnRatio = float64(night30) / float64(total30)
	}
	if !last.IsZero() {
		stats.DaysSinceLastTxn = int(now.Sub(last).Hours() / 24)
	}
	return stats, nil
}

func (s *MemoryStore) CountCompletedToPayee(ctx context.Context, userID, payee string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.byUser[userID] {
		if tx.Payee == payee && tx.Status == StatusCompleted {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txns := s.byUser[userID]
	result := make([]*Transaction, 0, len(txns))
	for _, tx := range txns {
		cp := *tx
		result = append(result, &cp)
	}
	// Most recent first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
