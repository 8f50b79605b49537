package risk

import (
	"testing"

	"github.com/mbd888/vigil/internal/history"
)

func baseContext() *UserContext {
	return &UserContext{
		Profile: ProfileSnapshot{
			UserID:       "user-1",
			TrustScore:   50,
			RiskTier:     TierBronze,
			KnownDevices: []string{"device-1"},
		},
		Stats: ContextStats{
			Stats: history.Stats{
				AvgAmount30d:     5000,
				MaxAmount30d:     8000,
				DaysSinceLastTxn: 1,
			},
		},
		Payee: PayeeReputation{Payee: "alice@upi", ReputationScore: 0.1},
	}
}

func baseIntent() *TransactionIntent {
	return &TransactionIntent{
		Amount:   1000,
		Payee:    "alice@upi",
		DeviceID: "device-1",
	}
}

func TestRulesCleanTransaction(t *testing.T) {
	out := EvaluateRules(baseIntent(), baseContext())

	if out.HardBlocked() {
		t.Fatal("clean transaction should not hard block")
	}
	if out.RuleScore != 0 {
		t.Errorf("expected zero rule score, got %v", out.RuleScore)
	}
	if len(out.Flags) != 0 {
		t.Errorf("expected no flags, got %v", out.Flags)
	}
}

func TestRulesBlacklistByRatio(t *testing.T) {
	uc := baseContext()
	uc.Payee.TotalTransactions = 20
	uc.Payee.FraudCount = 16
	uc.Payee.FraudRatio = 0.8

	out := EvaluateRules(baseIntent(), uc)
	if !out.HardBlocked() {
		t.Fatal("fraud ratio 0.8 with 20 txns should hard block")
	}
	if out.RuleScore != 1.0 {
		t.Errorf("hard block score = %v, want 1.0", out.RuleScore)
	}
}

func TestRulesBlacklistByCount(t *testing.T) {
	uc := baseContext()
	uc.Payee.TotalTransactions = 30
	uc.Payee.FraudCount = 7
	uc.Payee.FraudRatio = float64(7) / 30

	out := EvaluateRules(baseIntent(), uc)
	if !out.HardBlocked() {
		t.Fatal("7 fraud reports over 30 txns should hard block")
	}
}

func TestRulesBlacklistNeedsSample(t *testing.T) {
	uc := baseContext()
	uc.Payee.TotalTransactions = 5
	uc.Payee.FraudCount = 5
	uc.Payee.FraudRatio = 1.0

	out := EvaluateRules(baseIntent(), uc)
	if out.HardBlocked() {
		t.Fatal("under 10 observed txns must not hard block")
	}
}

func TestRulesDormantBurst(t *testing.T) {
	uc := baseContext()
	uc.Stats.DaysSinceLastTxn = 10
	uc.Stats.Count5Min = 4

	out := EvaluateRules(baseIntent(), uc)
	if !out.HasFlag(FlagVelocitySpike) {
		t.Fatal("expected VELOCITY_SPIKE flag")
	}
	// Dormant reactivation 0.35 plus the 3-in-5min band 0.15.
	if out.RuleScore < 0.50 {
		t.Errorf("rule score = %v, want >= 0.50", out.RuleScore)
	}
}

func TestRulesVelocityBands(t *testing.T) {
	tests := []struct {
		name     string
		count5m  int
		count1h  int
		wantMin  float64
		wantFlag bool
	}{
		{"five in 5min", 5, 5, 0.25, true},
		{"three in 5min", 3, 3, 0.15, true},
		{"fifteen in 1h", 0, 15, 0.20, true},
		{"ten in 1h", 0, 10, 0.10, true},
		{"quiet", 1, 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := baseContext()
			uc.Stats.Count5Min = tt.count5m
			uc.Stats.Count1H = tt.count1h

			out := EvaluateRules(baseIntent(), uc)
			if out.HasFlag(FlagVelocitySpike) != tt.wantFlag {
				t.Errorf("flag = %v, want %v", out.HasFlag(FlagVelocitySpike), tt.wantFlag)
			}
			if out.RuleScore < tt.wantMin {
				t.Errorf("score = %v, want >= %v", out.RuleScore, tt.wantMin)
			}
		})
	}
}

func TestRulesNewPayeeHighAmount(t *testing.T) {
	uc := baseContext()
	uc.Payee.IsNew = true
	intent := baseIntent()
	intent.Amount = 20000 // 4x the 5000 average

	out := EvaluateRules(intent, uc)
	if !out.HasFlag(FlagNewReceiverHighAmount) {
		t.Fatal("expected NEW_RECEIVER_HIGH_AMOUNT flag")
	}
	// +0.30 new-payee spike, +0.15 ratio>3, +0.10 above 1.5x 30d max.
	if out.RuleScore < 0.55 {
		t.Errorf("rule score = %v, want >= 0.55", out.RuleScore)
	}
}

func TestRulesEmptyHistoryBaseline(t *testing.T) {
	uc := baseContext()
	uc.Stats.AvgAmount30d = 0
	uc.Stats.MaxAmount30d = 0
	intent := baseIntent()
	intent.Amount = 6000 // 6x the 1000 baseline

	out := EvaluateRules(intent, uc)
	if out.RuleScore < 0.25 {
		t.Errorf("ratio over baseline should score >= 0.25, got %v", out.RuleScore)
	}
}

func TestRulesDeviceChange(t *testing.T) {
	intent := baseIntent()
	intent.DeviceID = "device-unknown"

	out := EvaluateRules(intent, baseContext())
	if !out.HasFlag(FlagDeviceChange) {
		t.Fatal("expected DEVICE_CHANGE flag")
	}
	if out.RuleScore != 0.15 {
		t.Errorf("device change score = %v, want 0.15", out.RuleScore)
	}
}

func TestRulesFailedPattern(t *testing.T) {
	uc := baseContext()
	uc.Stats.Failed7d = 5

	out := EvaluateRules(baseIntent(), uc)
	if !out.HasFlag(FlagHighFailedTxn) {
		t.Fatal("expected HIGH_FAILED_TXN flag")
	}
	if out.RuleScore != 0.20 {
		t.Errorf("failed pattern score = %v, want 0.20", out.RuleScore)
	}

	uc.Stats.Failed7d = 3
	out = EvaluateRules(baseIntent(), uc)
	if out.RuleScore != 0.10 {
		t.Errorf("three failures score = %v, want 0.10", out.RuleScore)
	}
}

func TestRulesSuspiciousNoteFlagOnly(t *testing.T) {
	intent := baseIntent()
	intent.Note = "Congrats, claim your LOTTERY prize"

	out := EvaluateRules(intent, baseContext())
	if !out.HasFlag(FlagSuspiciousNote) {
		t.Fatal("expected SUSPICIOUS_NOTE flag")
	}
	if out.RuleScore != 0 {
		t.Errorf("note must not move the score, got %v", out.RuleScore)
	}
}

func TestRulesScoreCapped(t *testing.T) {
	uc := baseContext()
	uc.Stats.DaysSinceLastTxn = 30
	uc.Stats.Count5Min = 6
	uc.Stats.Count1H = 20
	uc.Stats.Failed7d = 6
	uc.Payee.IsNew = true
	intent := baseIntent()
	intent.Amount = 100000
	intent.DeviceID = "device-unknown"

	out := EvaluateRules(intent, uc)
	if out.RuleScore != 1.0 {
		t.Errorf("stacked contributions should cap at 1.0, got %v", out.RuleScore)
	}
}
