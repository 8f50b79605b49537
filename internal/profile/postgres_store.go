package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists user profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id       VARCHAR(64) PRIMARY KEY,
			email         VARCHAR(255) NOT NULL DEFAULT '',
			full_name     VARCHAR(255) NOT NULL DEFAULT '',
			trust_score   INTEGER NOT NULL DEFAULT 50 CHECK (trust_score >= 0 AND trust_score <= 100),
			risk_tier     VARCHAR(10) NOT NULL DEFAULT 'BRONZE' CHECK (risk_tier IN ('BRONZE', 'SILVER', 'GOLD')),
			known_devices JSONB NOT NULL DEFAULT '[]',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) GetByUserID(ctx context.Context, userID string) (*UserProfile, error) {
	var p UserProfile
	var devicesJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, full_name, trust_score, risk_tier, known_devices, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Email, &p.FullName, &p.TrustScore, &p.RiskTier, &devicesJSON, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := json.Unmarshal(devicesJSON, &p.KnownDevices); err != nil {
		p.KnownDevices = nil
	}
	return &p, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *UserProfile) error {
	devicesJSON, err := json.Marshal(p.KnownDevices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	tier := p.RiskTier
	if tier == "" {
		tier = "BRONZE"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, email, full_name, trust_score, risk_tier, known_devices, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, p.UserID, p.Email, p.FullName, p.TrustScore, tier, devicesJSON, createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddKnownDevice(ctx context.Context, userID, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET known_devices = CASE
			WHEN known_devices ? $2 THEN known_devices
			ELSE known_devices || to_jsonb($2::text)
		END,
		updated_at = NOW()
		WHERE user_id = $1
	`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to add device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AdjustTrustScore(ctx context.Context, userID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET trust_score = LEAST(100, GREATEST(0, trust_score + $2)),
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust trust score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
