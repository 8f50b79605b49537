// Package risk implements the transfer risk decision pipeline.
//
// Every peer-to-peer transfer intent is evaluated in five stages: context
// aggregation, deterministic rule checks, probabilistic scoring, score
// fusion, and action resolution. The result is a single auditable decision
// (allow / warning / otp-required / block) with a fused risk score in
// [0.0, 1.0]. A blacklisted payee hard-blocks before any scoring runs.
package risk

import (
	"context"
	"errors"
	"time"
)

// Action is the terminal decision for a transfer intent.
type Action string

const (
	ActionAllow       Action = "ALLOW"
	ActionWarning     Action = "WARNING"
	ActionOTPRequired Action = "OTP_REQUIRED"
	ActionBlock       Action = "BLOCK"
)

// RiskLevel buckets the fused score for display and audit.
type RiskLevel string

const (
	LevelLow      RiskLevel = "LOW"
	LevelModerate RiskLevel = "MODERATE"
	LevelHigh     RiskLevel = "HIGH"
	LevelVeryHigh RiskLevel = "VERY_HIGH"
)

// Risk tiers assigned to user profiles.
const (
	TierBronze = "BRONZE"
	TierSilver = "SILVER"
	TierGold   = "GOLD"
)

// Flags raised by the rule evaluator. The action resolver treats
// FlagDeviceChange and FlagImpossibleTravel as identity signals, distinct
// from transaction-fraud signals.
const (
	FlagVelocitySpike         = "VELOCITY_SPIKE"
	FlagNewReceiverHighAmount = "NEW_RECEIVER_HIGH_AMOUNT"
	FlagDeviceChange          = "DEVICE_CHANGE"
	FlagHighFailedTxn         = "HIGH_FAILED_TXN"
	FlagSuspiciousNote        = "SUSPICIOUS_NOTE"
	FlagImpossibleTravel      = "IMPOSSIBLE_TRAVEL"
)

// Scoring paths for the probabilistic scorer.
const (
	PathTrained  = "trained"
	PathFallback = "fallback"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidIntent = errors.New("invalid transaction intent")
)

// TransactionIntent is the caller-supplied transfer request. Amounts are in
// minor currency units. Immutable for the duration of one evaluation.
type TransactionIntent struct {
	Amount      int64     `json:"amount"`
	Payee       string    `json:"payee"`
	Note        string    `json:"note"`
	DeviceID    string    `json:"deviceId"`
	PaymentMode string    `json:"paymentMode"`
	Timestamp   time.Time `json:"timestamp"`
}

// RuleOutcome is the result of deterministic rule evaluation.
// A non-empty BlockReason is terminal: the pipeline stops immediately.
type RuleOutcome struct {
	RuleScore   float64            `json:"ruleScore"`
	Flags       []string           `json:"flags"`
	BlockReason string             `json:"blockReason,omitempty"`
	Breakdown   map[string]float64 `json:"breakdown"`
}

// HardBlocked reports whether the outcome terminates the pipeline.
func (r *RuleOutcome) HardBlocked() bool {
	return r.BlockReason != ""
}

// HasFlag reports whether the given flag was raised.
func (r *RuleOutcome) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ProbabilisticOutcome is the result of one scoring run, identical in shape
// for the trained-model and heuristic strategies.
type ProbabilisticOutcome struct {
	ModelScore   float64    `json:"modelScore"`
	Features     FeatureSet `json:"features"`
	ScoringPath  string     `json:"scoringPath"`
	ModelVersion string     `json:"modelVersion"`
}

// RiskFactor is one human-readable contributor to a decision.
type RiskFactor struct {
	Factor   string `json:"factor"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Breakdown holds per-axis sub-scores (0-100) for display.
type Breakdown struct {
	Behavior int `json:"behavior"`
	Amount   int `json:"amount"`
	Payee    int `json:"payee"`
}

// Decision is the terminal, immutable artifact of one pipeline run.
type Decision struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`
	UserID        string `json:"userId"`
	Payee         string `json:"payee"`
	Amount        int64  `json:"amount"`

	Action         Action    `json:"action"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	Score          float64   `json:"score"`
	RuleScore      float64   `json:"ruleScore"`
	ModelScore     float64   `json:"modelScore"`
	RequiresStepUp bool      `json:"requiresStepUp"`

	Message         string       `json:"message"`
	Recommendations []string     `json:"recommendations"`
	RiskFactors     []RiskFactor `json:"riskFactors"`
	Breakdown       Breakdown    `json:"breakdown"`
	Explanation     string       `json:"explanation,omitempty"`

	// Features is the named feature map the scorer saw, carried into the
	// audit record. Empty for hard blocks, where scoring never ran.
	Features map[string]float64 `json:"features,omitempty"`

	Flags        []string  `json:"flags"`
	ScoringPath  string    `json:"scoringPath"`
	ModelVersion string    `json:"modelVersion,omitempty"`
	EvaluatedAt  time.Time `json:"evaluatedAt"`
}

// CanProceed reports whether the transfer may continue (possibly after
// step-up authentication).
func (d *Decision) CanProceed() bool {
	return d.Action != ActionBlock
}

// ModelRuntime abstracts a loaded fraud classifier. Predict takes the
// fixed-order feature vector and returns P(fraud); it may fail per call,
// in which case the scorer falls back to the heuristic for that call only.
type ModelRuntime interface {
	Predict(vector []float32) (float64, error)
	Version() string
}

// DecisionRecorder persists decisions for audit. Failures are logged and
// swallowed; they never alter an already-computed decision.
type DecisionRecorder interface {
	Record(ctx context.Context, d *Decision) error
}

// ExplanationGenerator produces an optional narrative for a decision.
// Purely additive: it never affects the action or score.
type ExplanationGenerator interface {
	Explain(score float64, flags []string, payee string) string
}

// EventEmitter receives completed decisions for realtime streaming.
type EventEmitter interface {
	EmitDecision(d *Decision)
}
