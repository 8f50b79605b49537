package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/vigil/internal/history"
	"github.com/mbd888/vigil/internal/idgen"
	"github.com/mbd888/vigil/internal/metrics"
	"github.com/mbd888/vigil/internal/traces"
)

// EvaluateOptions control per-run behavior.
type EvaluateOptions struct {
	// Persist records the decision via the configured recorder.
	Persist bool
}

// Engine is the pipeline coordinator. It sequences context aggregation,
// rule evaluation, probabilistic scoring, fusion, and action resolution,
// short-circuiting on a hard block. Engines are safe for concurrent use;
// runs share no mutable state beyond the cache and stores.
type Engine struct {
	aggregator *Aggregator
	scorer     Scorer
	txns       history.Store
	thresholds Thresholds

	recorder  DecisionRecorder
	explainer ExplanationGenerator
	emitter   EventEmitter
	logger    *slog.Logger
	clock     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets the decision audit recorder.
func WithRecorder(r DecisionRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithExplainer sets the optional narrative generator.
func WithExplainer(g ExplanationGenerator) Option {
	return func(e *Engine) { e.explainer = g }
}

// WithEmitter sets the realtime decision event sink.
func WithEmitter(em EventEmitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithThresholds overrides the action thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the evaluation clock, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a pipeline coordinator. The scorer is chosen once at
// startup; it never changes for the engine's lifetime.
func NewEngine(aggregator *Aggregator, scorer Scorer, txns history.Store, opts ...Option) *Engine {
	e := &Engine{
		aggregator: aggregator,
		scorer:     scorer,
		txns:       txns,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the full pipeline for one transfer intent. It returns
// ErrUserNotFound for an unknown user and ErrInvalidIntent for a malformed
// intent; every other failure degrades inside the pipeline rather than
// surfacing. The returned decision is terminal and immutable.
func (e *Engine) Evaluate(ctx context.Context, intent *TransactionIntent, userID string, opts EvaluateOptions) (*Decision, error) {
	started := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	}()

	if err := validateIntent(intent, userID); err != nil {
		return nil, err
	}

	// The evaluation time is the intent timestamp when given, the clock
	// otherwise. It is resolved once and carried on the context, so
	// replayed inputs produce identical decisions.
	now := intent.Timestamp
	if now.IsZero() {
		now = e.clock()
	}

	ctx, span := traces.StartSpan(ctx, "risk.evaluate",
		traces.UserID(userID),
		traces.Payee(intent.Payee),
		traces.Amount(intent.Amount),
	)
	defer span.End()

	// Context is built before the attempt is recorded so the current
	// transfer never feeds its own velocity and recency statistics.
	uc, err := e.aggregator.Build(ctx, userID, intent.Payee, now)
	if err != nil {
		return nil, err
	}

	txnID := idgen.WithPrefix("txn_")

	// Record the attempt so a confirmation can reference it even when the
	// pipeline blocks the transfer.
	if err := e.txns.Record(ctx, &history.Transaction{
		ID:          txnID,
		UserID:      userID,
		Payee:       intent.Payee,
		Amount:      intent.Amount,
		Note:        intent.Note,
		DeviceID:    intent.DeviceID,
		PaymentMode: intent.PaymentMode,
		Status:      history.StatusPending,
		CreatedAt:   now,
	}); err != nil {
		e.logger.Warn("failed to record pending transaction", "transactionId", txnID, "error", err)
	}

	rules := EvaluateRules(intent, uc)
	if rules.HardBlocked() {
		d := e.blockedDecision(txnID, userID, intent, rules, now)
		e.finish(ctx, d, history.StatusBlocked)
		if opts.Persist && e.recorder != nil {
			if err := e.recorder.Record(ctx, d); err != nil {
				e.logger.Warn("failed to record decision", "decisionId", d.ID, "error", err)
			}
		}
		metrics.HardBlocksTotal.Inc()
		span.SetAttributes(traces.DecisionAction(string(d.Action)))
		return d, nil
	}

	prob := e.scorer.Score(intent, uc)
	metrics.ScoringPathTotal.WithLabelValues(prob.ScoringPath).Inc()

	score := FuseScores(rules.RuleScore, prob.ModelScore, uc, intent)
	res := ResolveAction(score, rules.Flags, uc, e.thresholds)

	d := &Decision{
		ID:            idgen.WithPrefix("dec_"),
		TransactionID: txnID,
		UserID:        userID,
		Payee:         intent.Payee,
		Amount:        intent.Amount,

		Action:         res.Action,
		RiskLevel:      res.RiskLevel,
		Score:          score,
		RuleScore:      rules.RuleScore,
		ModelScore:     prob.ModelScore,
		RequiresStepUp: res.RequiresStepUp,

		Message:         res.Message,
		Recommendations: res.Recommendations,
		RiskFactors:     extractRiskFactors(rules, &prob.Features),
		Breakdown:       buildBreakdown(rules, uc, intent.Amount),

		Features:     prob.Features.Named(),
		Flags:        rules.Flags,
		ScoringPath:  prob.ScoringPath,
		ModelVersion: prob.ModelVersion,
		EvaluatedAt:  now,
	}

	if e.explainer != nil {
		d.Explanation = e.explainer.Explain(score, rules.Flags, intent.Payee)
	}

	status := history.Status("")
	if d.Action == ActionBlock {
		status = history.StatusBlocked
	}
	e.finish(ctx, d, status)
	if opts.Persist && e.recorder != nil {
		if err := e.recorder.Record(ctx, d); err != nil {
			e.logger.Warn("failed to record decision", "decisionId", d.ID, "error", err)
		}
	}

	span.SetAttributes(
		traces.DecisionAction(string(d.Action)),
		traces.ScoringPath(d.ScoringPath),
	)
	e.logger.Info("decision evaluated",
		"transactionId", txnID,
		"userId", userID,
		"action", d.Action,
		"score", d.Score,
		"scoringPath", d.ScoringPath,
	)
	return d, nil
}

// blockedDecision builds the terminal artifact for a blacklist hard block.
// Scoring and fusion never ran; the score is pinned to 1.0.
func (e *Engine) blockedDecision(txnID, userID string, intent *TransactionIntent, rules *RuleOutcome, now time.Time) *Decision {
	return &Decision{
		ID:            idgen.WithPrefix("dec_"),
		TransactionID: txnID,
		UserID:        userID,
		Payee:         intent.Payee,
		Amount:        intent.Amount,

		Action:    ActionBlock,
		RiskLevel: LevelVeryHigh,
		Score:     1.0,
		RuleScore: rules.RuleScore,

		Message: fmt.Sprintf("Transaction blocked: %s", rules.BlockReason),
		Recommendations: []string{
			"This payee has been flagged for suspicious activity",
			"Contact support if you believe this is an error",
		},
		RiskFactors: []RiskFactor{{
			Factor:   "Blacklisted payee",
			Severity: SeverityCritical,
			Detail:   "This payee has a confirmed fraud history",
		}},
		Breakdown: Breakdown{Behavior: 100, Amount: 100, Payee: 100},

		Flags:       rules.Flags,
		ScoringPath: "none",
		EvaluatedAt: now,
	}
}

// finish stamps the risk result onto the recorded transaction and emits
// the decision. Both are best effort.
func (e *Engine) finish(ctx context.Context, d *Decision, status history.Status) {
	metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()

	if err := e.txns.SetRiskResult(ctx, d.TransactionID, history.RiskResult{
		Score:  d.Score,
		Level:  string(d.RiskLevel),
		Action: string(d.Action),
		Status: status,
	}); err != nil {
		e.logger.Warn("failed to stamp risk result", "transactionId", d.TransactionID, "error", err)
	}

	if e.emitter != nil {
		e.emitter.EmitDecision(d)
	}
}

func validateIntent(intent *TransactionIntent, userID string) error {
	if intent == nil {
		return fmt.Errorf("%w: missing intent", ErrInvalidIntent)
	}
	if userID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidIntent)
	}
	if intent.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	if strings.TrimSpace(intent.Payee) == "" {
		return fmt.Errorf("%w: missing payee", ErrInvalidIntent)
	}
	return nil
}
