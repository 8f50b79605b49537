// Package history records transfer transactions and computes the rolling
// statistics the risk pipeline reads: windowed amount averages, velocity
// counts, failure counts, and recency.
package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("transaction not found")

// Transaction statuses. A transaction is recorded PENDING when analysis
// starts and moves to a terminal status afterwards.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusBlocked   Status = "BLOCKED"
)

// DaysSinceLastSentinel is reported when a user has no transaction history.
const DaysSinceLastSentinel = 999

// Transaction is one recorded transfer attempt. Amount is in minor units.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Payee       string    `json:"payee"`
	Amount      int64     `json:"amount"`
	Note        string    `json:"note"`
	DeviceID    string    `json:"deviceId"`
	PaymentMode string    `json:"paymentMode"`
	Status      Status    `json:"status"`
	RiskScore   float64   `json:"riskScore"`
	RiskLevel   string    `json:"riskLevel,omitempty"`
	Action      string    `json:"action,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Stats are the rolling statistics for one user as of a reference time.
// Averages and maxima consider only COMPLETED transactions; velocity counts
// consider all statuses.
type Stats struct {
	AvgAmount7d  float64 `json:"avgAmount7d"`
	AvgAmount30d float64 `json:"avgAmount30d"`
	MaxAmount7d  int64   `json:"maxAmount7d"`
	MaxAmount30d int64   `json:"maxAmount30d"`

	Count5Min  int `json:"count5Min"`
	Count1H    int `json:"count1H"`
	Count24H   int `json:"count24H"`
	Count30D   int `json:"count30D"`
	Failed7d   int `json:"failed7d"`

	// DaysSinceLastTxn counts from the most recent COMPLETED transfer,
	// so pending attempts cannot mask a dormant account.
	DaysSinceLastTxn int     `json:"daysSinceLastTxn"`
	NightTxnRatio    float64 `json:"nightTxnRatio"` // share of 30d txns in 23:00-05:59
}

// RiskResult stamps analysis output onto a recorded transaction.
type RiskResult struct {
	Score  float64
	Level  string
	Action string
	Status Status // optional status transition, empty to leave unchanged
}

// Store persists transactions and answers the windowed queries the risk
// pipeline needs. All reads are as-of the supplied reference time so tests
// can pin the clock.
type Store interface {
	Record(ctx context.Context, tx *Transaction) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	SetRiskResult(ctx context.Context, id string, result RiskResult) error
	Get(ctx context.Context, id string) (*Transaction, error)
	Stats(ctx context.Context, userID string, now time.Time) (*Stats, error)
	CountCompletedToPayee(ctx context.Context, userID, payee string) (int, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// isNightHour reports whether the hour falls in the 23:00-05:59 band.
func isNightHour(h int) bool {
	return h >= 23 || h <= 5
}
