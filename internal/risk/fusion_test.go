package risk

import (
	"testing"

	"github.com/mbd888/vigil/internal/history"
)

func fusionContext(avg30 float64) *UserContext {
	return &UserContext{
		Stats: ContextStats{Stats: history.Stats{AvgAmount30d: avg30}},
	}
}

func TestFuseScoresAlwaysInRange(t *testing.T) {
	scores := []float64{0, 0.25, 0.5, 0.75, 1.0}
	amounts := []int64{1, 100, 5000, 1000000}
	for _, rs := range scores {
		for _, ms := range scores {
			for _, amt := range amounts {
				uc := fusionContext(5000)
				got := FuseScores(rs, ms, uc, &TransactionIntent{Amount: amt})
				if got < 0 || got > 1 {
					t.Fatalf("FuseScores(%v, %v, amount=%d) = %v, out of range", rs, ms, amt, got)
				}
			}
		}
	}
}

func TestFuseScoresMonotonic(t *testing.T) {
	uc := fusionContext(5000)
	intent := &TransactionIntent{Amount: 5000}

	prev := -1.0
	for _, ms := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		got := FuseScores(0.3, ms, uc, intent)
		if got < prev {
			t.Fatalf("fused score decreased as model score rose: %v after %v", got, prev)
		}
		prev = got
	}

	prev = -1.0
	for _, rs := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		got := FuseScores(rs, 0.3, uc, intent)
		if got < prev {
			t.Fatalf("fused score decreased as rule score rose: %v after %v", got, prev)
		}
		prev = got
	}
}

func TestFuseScoresNoDoubleCounting(t *testing.T) {
	uc := fusionContext(1000)
	intent := &TransactionIntent{Amount: 10000} // exposure > 3, multiplier 1.0

	// behavior = max(0.6, 0.6) = 0.6; raw = 0.70*0.6 + 0.30*0.6 = 0.6.
	got := FuseScores(0.6, 0.6, uc, intent)
	if got != 0.6 {
		t.Errorf("identical signals should fuse to the same value, got %v", got)
	}
}

func TestFuseScoresDamageBands(t *testing.T) {
	// raw is held at 1.0 so the output equals the multiplier.
	tests := []struct {
		amount int64
		avg30  float64
		want   float64
	}{
		{100, 999, 0.25},  // exposure 0.1
		{500, 999, 0.5},   // exposure 0.5
		{2000, 999, 0.8},  // exposure 2.0
		{5000, 999, 1.0},  // exposure 5.0
	}
	for _, tt := range tests {
		uc := fusionContext(tt.avg30)
		got := FuseScores(1.0, 1.0, uc, &TransactionIntent{Amount: tt.amount})
		if got != tt.want {
			t.Errorf("amount=%d avg=%v: fused = %v, want %v", tt.amount, tt.avg30, got, tt.want)
		}
	}
}

func TestFuseScoresForgiveness(t *testing.T) {
	uc := fusionContext(50000)
	uc.Payee.FirstTimeForUser = true
	intent := &TransactionIntent{Amount: 100}

	got := FuseScores(1.0, 1.0, uc, intent)
	if got > 0.45 {
		t.Errorf("small first-time transfer should cap at 0.45, got %v", got)
	}
}

func TestFuseScoresForgivenessCeiling(t *testing.T) {
	// Large first-time transfer: over both the ceiling and the average
	// slice, no cap applies.
	uc := fusionContext(100)
	uc.Payee.FirstTimeForUser = true
	intent := &TransactionIntent{Amount: 5000}

	got := FuseScores(1.0, 1.0, uc, intent)
	if got <= 0.45 {
		t.Errorf("large first-time transfer must not be forgiven, got %v", got)
	}
}

func TestFuseScoresKnownPayeeNoForgiveness(t *testing.T) {
	uc := fusionContext(50000)
	uc.Payee.FirstTimeForUser = false
	intent := &TransactionIntent{Amount: 100}

	// Exposure is tiny so the damage multiplier already pulls this to
	// 0.25; verify the cap logic simply doesn't fire for repeat payees.
	got := FuseScores(1.0, 1.0, uc, intent)
	if got != 0.25 {
		t.Errorf("fused = %v, want damage-scaled 0.25", got)
	}
}
