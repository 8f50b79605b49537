package risk

// Forgiveness cutoffs for small first-time transfers: amount must stay
// under both the absolute ceiling and a slice of the sender's average.
const (
	forgivenessCeiling  = 250
	forgivenessFraction = 0.05
	forgivenessCap      = 0.45
)

// FuseScores combines the rule and model scores into one risk score in
// [0, 1]. Overlapping detections are not double-counted: the behavioral
// component takes the stronger of the two signals, then the result is
// scaled by potential financial exposure relative to the sender's usual
// amounts.
func FuseScores(ruleScore, modelScore float64, uc *UserContext, intent *TransactionIntent) float64 {
	behavior := modelScore
	if ruleScore > behavior {
		behavior = ruleScore
	}

	raw := 0.70*behavior + 0.30*ruleScore

	amount := float64(intent.Amount)
	exposure := amount / (uc.Stats.AvgAmount30d + 1)

	var multiplier float64
	switch {
	case exposure < 0.3:
		multiplier = 0.25
	case exposure < 1.0:
		multiplier = 0.5
	case exposure < 3.0:
		multiplier = 0.8
	default:
		multiplier = 1.0
	}

	final := raw * multiplier
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}

	// Small first-time transfers get capped so a brand-new payee alone
	// cannot push an otherwise trivial amount into step-up territory.
	if uc.Payee.FirstTimeForUser {
		limit := forgivenessFraction * (uc.Stats.AvgAmount30d + 1)
		if limit > forgivenessCeiling {
			limit = forgivenessCeiling
		}
		if amount <= limit && final > forgivenessCap {
			final = forgivenessCap
		}
	}

	return final
}
