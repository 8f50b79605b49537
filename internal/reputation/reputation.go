// Package reputation tracks network-level payee standing: how many
// transfers the network has seen to a payee and how many of those were
// reported as fraud.
package reputation

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("payee reputation not found")

// MinSampleSize is the number of observed transactions below which
// fraud ratios are considered too noisy to act on.
const MinSampleSize = 10

// Record is the network-wide fraud standing of one payee.
type Record struct {
	Payee             string    `json:"payee"`
	TotalTransactions int       `json:"totalTransactions"`
	FraudCount        int       `json:"fraudCount"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// FraudRatio returns the share of observed transactions reported as
// fraud, in [0, 1].
func (r *Record) FraudRatio() float64 {
	if r.TotalTransactions <= 0 {
		return 0
	}
	ratio := float64(r.FraudCount) / float64(r.TotalTransactions)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Store persists payee reputation records.
type Store interface {
	GetByPayee(ctx context.Context, payee string) (*Record, error)
	// IncrementTotal bumps the observed transaction count, creating the
	// record if the payee is new to the network.
	IncrementTotal(ctx context.Context, payee string) error
	// ReportFraud bumps both the fraud count and, when the payee is new,
	// the total so the ratio stays well defined.
	ReportFraud(ctx context.Context, payee string) error
}
