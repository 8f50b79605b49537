package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists payee reputation in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed reputation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payee_reputation table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payee_reputation (
			payee              VARCHAR(255) PRIMARY KEY,
			total_transactions INTEGER NOT NULL DEFAULT 0 CHECK (total_transactions >= 0),
			fraud_count        INTEGER NOT NULL DEFAULT 0 CHECK (fraud_count >= 0),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) GetByPayee(ctx context.Context, payee string) (*Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx, `
		SELECT payee, total_transactions, fraud_count, updated_at
		FROM payee_reputation
		WHERE payee = $1
	`, payee).Scan(&r.Payee, &r.TotalTransactions, &r.FraudCount, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) IncrementTotal(ctx context.Context, payee string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payee_reputation (payee, total_transactions)
		VALUES ($1, 1)
		ON CONFLICT (payee) DO UPDATE SET
			total_transactions = payee_reputation.total_transactions + 1,
			updated_at = NOW()
	`, payee)
	if err != nil {
		return fmt.Errorf("failed to increment total: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReportFraud(ctx context.Context, payee string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payee_reputation (payee, total_transactions, fraud_count)
		VALUES ($1, 1, 1)
		ON CONFLICT (payee) DO UPDATE SET
			fraud_count = payee_reputation.fraud_count + 1,
			total_transactions = GREATEST(payee_reputation.total_transactions, payee_reputation.fraud_count + 1),
			updated_at = NOW()
	`, payee)
	if err != nil {
		return fmt.Errorf("failed to report fraud: %w", err)
	}
	return nil
}
