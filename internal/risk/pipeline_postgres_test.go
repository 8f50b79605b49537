//go:build integration

package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/mbd888/vigil/internal/cache"
	"github.com/mbd888/vigil/internal/history"
	"github.com/mbd888/vigil/internal/profile"
	"github.com/mbd888/vigil/internal/reputation"
	"github.com/mbd888/vigil/internal/testutil"
)

// Runs the whole pipeline against Postgres: migrated schema, real stores,
// aggregation, scoring, and decision persistence.
func TestPipeline_Postgres(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()

	profiles := profile.NewPostgresStore(db)
	txns := history.NewPostgresStore(db)
	reps := reputation.NewPostgresStore(db)
	decisions := NewPostgresStore(db)

	if err := profiles.Create(ctx, &profile.UserProfile{
		UserID:       "pipe-user",
		Email:        "pipe@example.com",
		FullName:     "Pipeline User",
		TrustScore:   50,
		RiskTier:     "BRONZE",
		KnownDevices: []string{"device-1"},
	}); err != nil {
		t.Fatalf("Create profile failed: %v", err)
	}

	agg := NewAggregator(profiles, txns, reps, cache.NewTTL(), nil)
	eng := NewEngine(agg, NewHeuristicScorer(), txns, WithRecorder(decisions))

	intent := &TransactionIntent{Amount: 500, Payee: "bob@upi", DeviceID: "device-1"}
	d, err := eng.Evaluate(ctx, intent, "pipe-user", EvaluateOptions{Persist: true})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Score < 0 || d.Score > 1 {
		t.Errorf("score %v out of range", d.Score)
	}

	// The decision and the pending transaction must both survive a round
	// trip through the database.
	stored, err := decisions.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("decision not persisted: %v", err)
	}
	if stored.Action != d.Action {
		t.Errorf("stored action = %q, want %q", stored.Action, d.Action)
	}

	tx, err := txns.Get(ctx, d.TransactionID)
	if err != nil {
		t.Fatalf("transaction not persisted: %v", err)
	}
	if tx.Status != history.StatusPending {
		t.Errorf("status = %q, want pending", tx.Status)
	}
}

func TestPipeline_Postgres_UnknownUser(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	profiles := profile.NewPostgresStore(db)
	txns := history.NewPostgresStore(db)
	reps := reputation.NewPostgresStore(db)

	agg := NewAggregator(profiles, txns, reps, cache.NewTTL(), nil)
	eng := NewEngine(agg, NewHeuristicScorer(), txns)

	intent := &TransactionIntent{Amount: 500, Payee: "bob@upi"}
	_, err := eng.Evaluate(context.Background(), intent, "nobody", EvaluateOptions{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPipeline_Postgres_BlacklistedPayee(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()

	profiles := profile.NewPostgresStore(db)
	txns := history.NewPostgresStore(db)
	reps := reputation.NewPostgresStore(db)
	decisions := NewPostgresStore(db)

	if err := profiles.Create(ctx, &profile.UserProfile{
		UserID: "pipe-user-2", Email: "p2@example.com", FullName: "P Two",
		TrustScore: 50, RiskTier: "BRONZE",
	}); err != nil {
		t.Fatalf("Create profile failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := reps.ReportFraud(ctx, "scam@pay"); err != nil {
			t.Fatalf("ReportFraud failed: %v", err)
		}
	}

	agg := NewAggregator(profiles, txns, reps, cache.NewTTL(), nil)
	eng := NewEngine(agg, NewHeuristicScorer(), txns, WithRecorder(decisions))

	intent := &TransactionIntent{Amount: 100, Payee: "scam@pay"}
	d, err := eng.Evaluate(ctx, intent, "pipe-user-2", EvaluateOptions{Persist: true})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if d.Action != ActionBlock {
		t.Errorf("action = %q, want BLOCK", d.Action)
	}
	if d.Score != 1 {
		t.Errorf("score = %v, want 1", d.Score)
	}
}
