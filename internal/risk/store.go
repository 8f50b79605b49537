package risk

import (
	"context"
	"errors"
)

var ErrDecisionNotFound = errors.New("decision not found")

// Store persists decisions for audit and history queries. Record is an
// idempotent upsert keyed by the decision ID, so pipeline retries cannot
// duplicate audit rows.
type Store interface {
	Record(ctx context.Context, d *Decision) error
	Get(ctx context.Context, id string) (*Decision, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Decision, error)
}
