package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id           VARCHAR(64) PRIMARY KEY,
			user_id      VARCHAR(64) NOT NULL,
			payee        VARCHAR(255) NOT NULL,
			amount       BIGINT NOT NULL CHECK (amount > 0),
			note         TEXT NOT NULL DEFAULT '',
			device_id    VARCHAR(128) NOT NULL DEFAULT '',
			payment_mode VARCHAR(32) NOT NULL DEFAULT '',
			status       VARCHAR(10) NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED', 'BLOCKED')),
			risk_score   NUMERIC(4,3) NOT NULL DEFAULT 0,
			risk_level   VARCHAR(10) NOT NULL DEFAULT '',
			action       VARCHAR(16) NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_user_created
			ON transactions (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_transactions_user_payee
			ON transactions (user_id, payee) WHERE status = 'COMPLETED';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, tx *Transaction) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	status := tx.Status
	if status == "" {
		status = StatusPending
	}

	// Upsert keyed by the run-generated ID so retried records are idempotent.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, payee, amount, note, device_id, payment_mode, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			note   = EXCLUDED.note
	`, tx.ID, tx.UserID, tx.Payee, tx.Amount, tx.Note, tx.DeviceID, tx.PaymentMode, status, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetRiskResult(ctx context.Context, id string, result RiskResult) error {
	query := `UPDATE transactions SET risk_score = $2, risk_level = $3, action = $4 WHERE id = $1`
	args := []any{id, result.Score, result.Level, result.Action}
	if result.Status != "" {
		query = `UPDATE transactions SET risk_score = $2, risk_level = $3, action = $4, status = $5 WHERE id = $1`
		args = append(args, result.Status)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set risk result: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, payee, amount, note, device_id, payment_mode, status, risk_score, risk_level, action, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.UserID, &tx.Payee, &tx.Amount, &tx.Note, &tx.DeviceID,
		&tx.PaymentMode, &tx.Status, &tx.RiskScore, &tx.RiskLevel, &tx.Action, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (s *PostgresStore) Stats(ctx context.Context, userID string, now time.Time) (*Stats, error) {
	stats := &Stats{DaysSinceLastTxn: DaysSinceLastSentinel}

	// Windowed aggregates in one pass over the 30-day slice.
	var night int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(amount) FILTER (WHERE status = 'COMPLETED'), 0),
			COALESCE(MAX(amount) FILTER (WHERE status = 'COMPLETED'), 0),
			COALESCE(AVG(amount) FILTER (WHERE status = 'COMPLETED' AND created_at >= $3), 0),
			COALESCE(MAX(amount) FILTER (WHERE status = 'COMPLETED' AND created_at >= $3), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $4),
			COUNT(*) FILTER (WHERE created_at >= $5),
			COUNT(*) FILTER (WHERE created_at >= $6),
			COUNT(*) FILTER (WHERE status = 'FAILED' AND created_at >= $3),
			COUNT(*) FILTER (WHERE EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC') >= 23
				OR EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC') <= 5)
		FROM transactions
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $7
	`, userID,
		now.Add(-30*24*time.Hour),
		now.Add(-7*24*time.Hour),
		now.Add(-24*time.Hour),
		now.Add(-time.Hour),
		now.Add(-5*time.Minute),
		now,
	).Scan(&stats.AvgAmount30d, &stats.MaxAmount30d, &stats.AvgAmount7d, &stats.MaxAmount7d,
		&stats.Count30D, &stats.Count24H, &stats.Count1H, &stats.Count5Min, &stats.Failed7d,
		&night)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	if stats.Count30D > 0 {
		stats.NightTxnRatio = float64(night) / float64(stats.Count30D)
	}

	// Recency considers completed transfers over the full history, not
	// just the 30-day window. Pending attempts must not mask dormancy.
	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM transactions
		WHERE user_id = $1 AND status = 'COMPLETED' AND created_at <= $2
	`, userID, now).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to find last transaction: %w", err)
	}
	if last.Valid {
		stats.DaysSinceLastTxn = int(now.Sub(last.Time).Hours() / 24)
	}

	return stats, nil
}

func (s *PostgresStore) CountCompletedToPayee(ctx context.Context, userID, payee string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND payee = $2 AND status = 'COMPLETED'
	`, userID, payee).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payee transactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, payee, amount, note, device_id, payment_mode, status, risk_score, risk_level, action, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Payee, &tx.Amount, &tx.Note, &tx.DeviceID,
			&tx.PaymentMode, &tx.Status, &tx.RiskScore, &tx.RiskLevel, &tx.Action, &tx.CreatedAt); err != nil {
			continue
		}
		result = append(result, &tx)
	}
	return result, rows.Err()
}
