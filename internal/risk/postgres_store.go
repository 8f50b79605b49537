package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists decisions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_events table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_events (
			id             VARCHAR(64) PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL,
			user_id        VARCHAR(64) NOT NULL,
			payee          VARCHAR(255) NOT NULL,
			amount         BIGINT NOT NULL,
			action         VARCHAR(16) NOT NULL,
			risk_level     VARCHAR(10) NOT NULL,
			score          NUMERIC(4,3) NOT NULL,
			rule_score     NUMERIC(4,3) NOT NULL,
			model_score    NUMERIC(4,3) NOT NULL,
			scoring_path   VARCHAR(16) NOT NULL DEFAULT '',
			model_version  VARCHAR(32) NOT NULL DEFAULT '',
			detail         JSONB NOT NULL DEFAULT '{}',
			evaluated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_events_user_evaluated
			ON risk_events (user_id, evaluated_at DESC);
	`)
	return err
}

// decisionDetail carries the parts of a decision stored as one JSONB blob.
type decisionDetail struct {
	RequiresStepUp  bool               `json:"requiresStepUp"`
	Message         string             `json:"message"`
	Recommendations []string           `json:"recommendations,omitempty"`
	RiskFactors     []RiskFactor       `json:"riskFactors,omitempty"`
	Breakdown       Breakdown          `json:"breakdown"`
	Explanation     string             `json:"explanation,omitempty"`
	Features        map[string]float64 `json:"features,omitempty"`
	Flags           []string           `json:"flags,omitempty"`
}

func (s *PostgresStore) Record(ctx context.Context, d *Decision) error {
	detail, err := json.Marshal(decisionDetail{
		RequiresStepUp:  d.RequiresStepUp,
		Message:         d.Message,
		Recommendations: d.Recommendations,
		RiskFactors:     d.RiskFactors,
		Breakdown:       d.Breakdown,
		Explanation:     d.Explanation,
		Features:        d.Features,
		Flags:           d.Flags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal decision detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_events (id, transaction_id, user_id, payee, amount, action, risk_level,
			score, rule_score, model_score, scoring_path, model_version, detail, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.TransactionID, d.UserID, d.Payee, d.Amount, d.Action, d.RiskLevel,
		d.Score, d.RuleScore, d.ModelScore, d.ScoringPath, d.ModelVersion, detail, d.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, user_id, payee, amount, action, risk_level,
			score, rule_score, model_score, scoring_path, model_version, detail, evaluated_at
		FROM risk_events
		WHERE id = $1
	`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, payee, amount, action, risk_level,
			score, rule_score, model_score, scoring_path, model_version, detail, evaluated_at
		FROM risk_events
		WHERE user_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			continue
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var d Decision
	var detailJSON []byte
	if err := row.Scan(&d.ID, &d.TransactionID, &d.UserID, &d.Payee, &d.Amount,
		&d.Action, &d.RiskLevel, &d.Score, &d.RuleScore, &d.ModelScore,
		&d.ScoringPath, &d.ModelVersion, &detailJSON, &d.EvaluatedAt); err != nil {
		return nil, err
	}

	var detail decisionDetail
	if err := json.Unmarshal(detailJSON, &detail); err == nil {
		d.RequiresStepUp = detail.RequiresStepUp
		d.Message = detail.Message
		d.Recommendations = detail.Recommendations
		d.RiskFactors = detail.RiskFactors
		d.Breakdown = detail.Breakdown
		d.Explanation = detail.Explanation
		d.Features = detail.Features
		d.Flags = detail.Flags
	}
	return &d, nil
}
