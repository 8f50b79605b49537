package risk

import (
	"math"
	"strings"
)

// FeatureNames is the fixed feature-order contract shared with the trained
// model. Vector emits values in exactly this order; a model bundle whose
// metadata lists a different order is rejected at load time.
var FeatureNames = []string{
	"amount",
	"payment_mode",
	"payee_type",
	"is_new_payee",
	"avg_amount_7d",
	"avg_amount_30d",
	"max_amount_7d",
	"txn_count_1h",
	"txn_count_24h",
	"days_since_last_txn",
	"night_txn_ratio",
	"location_mismatch",
	"is_night",
	"is_round_amount",
	"velocity_check",
	"deviation_from_sender_avg",
	"exceeds_recent_max",
	"amount_log",
	"hour_sin",
	"hour_cos",
	"ratio_30d",
	"risk_profile",
}

// paymentModes maps wire payment modes to their categorical codes. Unknown
// modes encode as 0.
var paymentModes = map[string]float64{
	"UPI":    0,
	"WALLET": 1,
	"BANK":   2,
	"CARD":   3,
}

// FeatureSet holds the engineered features for one evaluation. Raw and
// derived features live side by side so the decision artifact can expose
// them by name.
type FeatureSet struct {
	Amount                 float64 `json:"amount"`
	PaymentMode            float64 `json:"payment_mode"`
	PayeeType              float64 `json:"payee_type"`
	IsNewPayee             float64 `json:"is_new_payee"`
	AvgAmount7d            float64 `json:"avg_amount_7d"`
	AvgAmount30d           float64 `json:"avg_amount_30d"`
	MaxAmount7d            float64 `json:"max_amount_7d"`
	TxnCount1H             float64 `json:"txn_count_1h"`
	TxnCount24H            float64 `json:"txn_count_24h"`
	DaysSinceLastTxn       float64 `json:"days_since_last_txn"`
	NightTxnRatio          float64 `json:"night_txn_ratio"`
	LocationMismatch       float64 `json:"location_mismatch"`
	IsNight                float64 `json:"is_night"`
	IsRoundAmount          float64 `json:"is_round_amount"`
	VelocityCheck          float64 `json:"velocity_check"`
	DeviationFromSenderAvg float64 `json:"deviation_from_sender_avg"`
	ExceedsRecentMax       float64 `json:"exceeds_recent_max"`
	AmountLog              float64 `json:"amount_log"`
	HourSin                float64 `json:"hour_sin"`
	HourCos                float64 `json:"hour_cos"`
	Ratio30d               float64 `json:"ratio_30d"`
	RiskProfile            float64 `json:"risk_profile"`
}

// Vector returns the features as float32 values in FeatureNames order.
func (f *FeatureSet) Vector() []float32 {
	return []float32{
		float32(f.Amount),
		float32(f.PaymentMode),
		float32(f.PayeeType),
		float32(f.IsNewPayee),
		float32(f.AvgAmount7d),
		float32(f.AvgAmount30d),
		float32(f.MaxAmount7d),
		float32(f.TxnCount1H),
		float32(f.TxnCount24H),
		float32(f.DaysSinceLastTxn),
		float32(f.NightTxnRatio),
		float32(f.LocationMismatch),
		float32(f.IsNight),
		float32(f.IsRoundAmount),
		float32(f.VelocityCheck),
		float32(f.DeviationFromSenderAvg),
		float32(f.ExceedsRecentMax),
		float32(f.AmountLog),
		float32(f.HourSin),
		float32(f.HourCos),
		float32(f.Ratio30d),
		float32(f.RiskProfile),
	}
}

// Named returns the features keyed by contract name, for audit output.
func (f *FeatureSet) Named() map[string]float64 {
	vec := f.Vector()
	named := make(map[string]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		named[name] = float64(vec[i])
	}
	return named
}

// EngineerFeatures derives the full feature set from a transfer intent and
// the aggregated user context. Pure: same inputs always yield the same
// vector. Time-of-day features read the context's evaluation time, which
// the coordinator resolves once per run; the intent timestamp is only a
// fallback for direct callers.
func EngineerFeatures(intent *TransactionIntent, uc *UserContext) FeatureSet {
	amount := float64(intent.Amount)
	at := uc.EvaluatedAt
	if at.IsZero() {
		at = intent.Timestamp
	}
	hour := at.UTC().Hour()

	f := FeatureSet{
		Amount:           amount,
		PaymentMode:      paymentModes[strings.ToUpper(intent.PaymentMode)],
		AvgAmount7d:      uc.Stats.AvgAmount7d,
		AvgAmount30d:     uc.Stats.AvgAmount30d,
		MaxAmount7d:      float64(uc.Stats.MaxAmount7d),
		TxnCount1H:       float64(uc.Stats.Count1H),
		TxnCount24H:      float64(uc.Stats.Count24H),
		DaysSinceLastTxn: float64(uc.Stats.DaysSinceLastTxn),
		NightTxnRatio:    uc.Stats.NightTxnRatio,
		AmountLog:        math.Log1p(amount),
	}

	// Payees whose local part is non-numeric read as personal handles.
	if localPartNonNumeric(intent.Payee) {
		f.PayeeType = 1
	}
	if uc.Payee.IsNew {
		f.IsNewPayee = 1
	}
	if hour >= 23 || hour <= 5 {
		f.IsNight = 1
	}
	if intent.Amount%100 == 0 {
		f.IsRoundAmount = 1
	}
	if uc.Stats.Count1H > 5 {
		f.VelocityCheck = 1
	}

	// Deviation uses a floored average so thin histories don't explode the
	// ratio.
	avgFloor := uc.Stats.AvgAmount30d
	if avgFloor < 1000 {
		avgFloor = 1000
	}
	f.DeviationFromSenderAvg = amount / avgFloor

	if uc.Stats.MaxAmount7d > 0 && intent.Amount > uc.Stats.MaxAmount7d {
		f.ExceedsRecentMax = 1
	}

	rad := 2 * math.Pi * float64(hour) / 24
	f.HourSin = math.Sin(rad)
	f.HourCos = math.Cos(rad)

	f.Ratio30d = amount / (uc.Stats.AvgAmount30d + 1)

	// Relationship score: reputation, floored for risky history and capped
	// for good history.
	risk := uc.Payee.ReputationScore
	if uc.Payee.RiskyHistory && risk < 0.8 {
		risk = 0.8
	}
	if uc.Payee.GoodHistory && risk > 0.05 {
		risk = 0.05
	}
	f.RiskProfile = risk

	return f
}

func localPartNonNumeric(payee string) bool {
	local := payee
	if i := strings.IndexByte(payee, '@'); i >= 0 {
		local = payee[:i]
	}
	for _, r := range local {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}
