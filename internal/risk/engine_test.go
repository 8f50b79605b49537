package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/vigil/internal/history"
	"github.com/mbd888/vigil/internal/profile"
	"github.com/mbd888/vigil/internal/reputation"
)

type failingRecorder struct{}

func (f *failingRecorder) Record(ctx context.Context, d *Decision) error {
	return errors.New("audit store down")
}

type engineFixture struct {
	engine   *Engine
	profiles *profile.MemoryStore
	txns     *history.MemoryStore
	reps     *reputation.MemoryStore
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	profiles := profile.NewMemoryStore()
	txns := history.NewMemoryStore()
	reps := reputation.NewMemoryStore()

	mustCreateProfile(t, profiles, "user-1")

	agg := NewAggregator(profiles, txns, reps, nil, nil)
	engine := NewEngine(agg, NewHeuristicScorer(), txns, opts...)
	return &engineFixture{engine: engine, profiles: profiles, txns: txns, reps: reps}
}

func TestEvaluateInvalidIntent(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		intent *TransactionIntent
		userID string
	}{
		{"nil intent", nil, "user-1"},
		{"missing user", &TransactionIntent{Amount: 100, Payee: "a@b"}, ""},
		{"zero amount", &TransactionIntent{Amount: 0, Payee: "a@b"}, "user-1"},
		{"negative amount", &TransactionIntent{Amount: -5, Payee: "a@b"}, "user-1"},
		{"missing payee", &TransactionIntent{Amount: 100}, "user-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.engine.Evaluate(ctx, tc.intent, tc.userID, EvaluateOptions{})
			if !errors.Is(err, ErrInvalidIntent) {
				t.Errorf("err = %v, want ErrInvalidIntent", err)
			}
		})
	}
}

func TestEvaluateUnknownUser(t *testing.T) {
	fx := newEngineFixture(t)
	intent := &TransactionIntent{Amount: 100, Payee: "a@b"}

	_, err := fx.engine.Evaluate(context.Background(), intent, "nobody", EvaluateOptions{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestEvaluateCleanTransfer(t *testing.T) {
	fx := newEngineFixture(t)
	intent := &TransactionIntent{
		Amount:    500,
		Payee:     "alice@upi",
		DeviceID:  "device-1",
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !d.CanProceed() {
		t.Errorf("clean transfer should proceed, action = %v", d.Action)
	}
	if d.Score < 0 || d.Score > 1 {
		t.Errorf("score %v out of range", d.Score)
	}
	if d.ScoringPath != PathFallback {
		t.Errorf("heuristic engine should report fallback path, got %q", d.ScoringPath)
	}
	if d.TransactionID == "" || d.ID == "" {
		t.Error("decision must carry generated ids")
	}

	// The attempt is recorded and stamped.
	tx, err := fx.txns.Get(context.Background(), d.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if tx.RiskScore != d.Score {
		t.Errorf("stamped score %v, decision score %v", tx.RiskScore, d.Score)
	}
}

func TestEvaluateBlacklistHardBlock(t *testing.T) {
	fx := newEngineFixture(t)
	fx.reps.Seed(&reputation.Record{Payee: "scammer@upi", TotalTransactions: 20, FraudCount: 16})

	intent := &TransactionIntent{
		Amount:    50,
		Payee:     "scammer@upi",
		DeviceID:  "device-1",
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if d.Action != ActionBlock {
		t.Errorf("action = %v, want BLOCK", d.Action)
	}
	if d.Score != 1.0 {
		t.Errorf("hard block score = %v, want 1.0", d.Score)
	}
	if d.RiskLevel != LevelVeryHigh {
		t.Errorf("level = %v, want VERY_HIGH", d.RiskLevel)
	}
	if d.CanProceed() {
		t.Error("blocked decision must not proceed")
	}

	tx, err := fx.txns.Get(context.Background(), d.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != history.StatusBlocked {
		t.Errorf("transaction status = %v, want BLOCKED", tx.Status)
	}
}

func TestEvaluateDormantBurst(t *testing.T) {
	fx := newEngineFixture(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Last completed activity 10 days back, then a burst of pending
	// attempts within 5 minutes.
	old := now.Add(-10 * 24 * time.Hour)
	seedTxn(t, fx.txns, "t-old", old, history.StatusCompleted)
	for i, offset := range []time.Duration{-4 * time.Minute, -3 * time.Minute, -2 * time.Minute, -time.Minute} {
		seedTxn(t, fx.txns, "t-burst-"+string(rune('a'+i)), now.Add(offset), history.StatusPending)
	}

	intent := &TransactionIntent{
		Amount:    500,
		Payee:     "alice@upi",
		DeviceID:  "device-1",
		Timestamp: now,
	}
	d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, f := range d.Flags {
		if f == FlagVelocitySpike {
			found = true
		}
	}
	if !found {
		t.Errorf("expected VELOCITY_SPIKE, flags = %v", d.Flags)
	}
	if d.RuleScore < 0.50 {
		t.Errorf("rule score = %v, want >= 0.50", d.RuleScore)
	}
}

func TestEvaluateCurrentAttemptExcludedFromStats(t *testing.T) {
	fx := newEngineFixture(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Recent completed activity plus four attempts inside the 5-minute
	// window. The transfer under evaluation is recorded only after the
	// context is built, so the window count stays at four and the velocity
	// contribution is the 3-or-more tier, not the 5-or-more tier.
	seedTxn(t, fx.txns, "t-recent", now.Add(-2*time.Hour), history.StatusCompleted)
	for i, offset := range []time.Duration{-4 * time.Minute, -3 * time.Minute, -2 * time.Minute, -time.Minute} {
		seedTxn(t, fx.txns, "t-win-"+string(rune('a'+i)), now.Add(offset), history.StatusPending)
	}

	intent := &TransactionIntent{
		Amount:    500,
		Payee:     "alice@upi",
		DeviceID:  "device-1",
		Timestamp: now,
	}
	d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if diff := d.RuleScore - 0.15; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("rule score = %v, want 0.15 from the four prior attempts only", d.RuleScore)
	}

	// The attempt itself is still on record for confirmation.
	tx, err := fx.txns.Get(context.Background(), d.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != history.StatusPending {
		t.Errorf("transaction status = %v, want PENDING", tx.Status)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	intent := &TransactionIntent{
		Amount:    2500,
		Payee:     "alice@upi",
		DeviceID:  "device-unknown",
		Timestamp: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC),
	}

	run := func() *Decision {
		fx := newEngineFixture(t)
		d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{})
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	a, b := run(), run()
	if a.Action != b.Action || a.Score != b.Score || a.RuleScore != b.RuleScore ||
		a.ModelScore != b.ModelScore || a.RiskLevel != b.RiskLevel {
		t.Errorf("identical inputs diverged: %+v vs %+v", a, b)
	}
	if len(a.Flags) != len(b.Flags) {
		t.Errorf("flag sets diverged: %v vs %v", a.Flags, b.Flags)
	}
}

func TestEvaluateRecorderFailureHarmless(t *testing.T) {
	fx := newEngineFixture(t, WithRecorder(&failingRecorder{}))
	intent := &TransactionIntent{
		Amount:    500,
		Payee:     "alice@upi",
		DeviceID:  "device-1",
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{Persist: true})
	if err != nil {
		t.Fatalf("recorder failure must not surface: %v", err)
	}
	if d == nil || d.Action == "" {
		t.Fatal("decision must still be complete")
	}
}

func TestEvaluatePersistsDecision(t *testing.T) {
	store := NewMemoryStore()
	fx := newEngineFixture(t, WithRecorder(store))
	intent := &TransactionIntent{
		Amount:    500,
		Payee:     "alice@upi",
		DeviceID:  "device-1",
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	d, err := fx.engine.Evaluate(context.Background(), intent, "user-1", EvaluateOptions{Persist: true})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("persisted decision not found: %v", err)
	}
	if got.Action != d.Action {
		t.Errorf("persisted action = %v, want %v", got.Action, d.Action)
	}
	if got.Features["amount"] != 500 {
		t.Errorf("persisted features missing amount, got %v", got.Features)
	}
	if len(got.Features) != len(FeatureNames) {
		t.Errorf("persisted feature map has %d entries, want %d", len(got.Features), len(FeatureNames))
	}

	list, err := store.ListByUser(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("history length = %d, want 1", len(list))
	}
}

func seedTxn(t *testing.T, store *history.MemoryStore, id string, at time.Time, status history.Status) {
	t.Helper()
	if err := store.Record(context.Background(), &history.Transaction{
		ID:        id,
		UserID:    "user-1",
		Payee:     "someone@upi",
		Amount:    500,
		Status:    status,
		CreatedAt: at,
	}); err != nil {
		t.Fatal(err)
	}
}
