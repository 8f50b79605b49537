package risk

import "fmt"

// Severity labels for risk factors.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var flagFactors = map[string]RiskFactor{
	FlagNewReceiverHighAmount: {
		Factor:   "High amount to new payee",
		Severity: SeverityHigh,
		Detail:   "This is a large transaction to someone you haven't paid before",
	},
	FlagVelocitySpike: {
		Factor:   "Unusual transaction frequency",
		Severity: SeverityMedium,
		Detail:   "Multiple transactions in a short time period",
	},
	FlagDeviceChange: {
		Factor:   "New device detected",
		Severity: SeverityMedium,
		Detail:   "Transaction from an unrecognized device",
	},
	FlagHighFailedTxn: {
		Factor:   "Multiple failed transactions",
		Severity: SeverityMedium,
		Detail:   "Recent failed transaction attempts detected",
	},
	FlagSuspiciousNote: {
		Factor:   "Suspicious transfer note",
		Severity: SeverityMedium,
		Detail:   "The note contains wording common in payment scams",
	},
	FlagImpossibleTravel: {
		Factor:   "Improbable location change",
		Severity: SeverityHigh,
		Detail:   "This location is inconsistent with recent activity",
	},
}

// extractRiskFactors builds the ranked factor list from rule flags plus
// notable feature values, capped at five entries.
func extractRiskFactors(rules *RuleOutcome, features *FeatureSet) []RiskFactor {
	var factors []RiskFactor

	for _, flag := range rules.Flags {
		if f, ok := flagFactors[flag]; ok {
			factors = append(factors, f)
		}
	}

	if features.Ratio30d > 3 {
		factors = append(factors, RiskFactor{
			Factor:   "Amount significantly above average",
			Severity: SeverityMedium,
			Detail:   fmt.Sprintf("This amount is %.1fx your usual", features.Ratio30d),
		})
	}
	if features.DaysSinceLastTxn > 30 {
		factors = append(factors, RiskFactor{
			Factor:   "Account dormancy",
			Severity: SeverityLow,
			Detail:   "First transaction in over 30 days",
		})
	}

	if len(factors) > 5 {
		factors = factors[:5]
	}
	return factors
}

// buildBreakdown computes the per-axis display scores (0-100).
func buildBreakdown(rules *RuleOutcome, uc *UserContext, amount int64) Breakdown {
	behavior := 0
	if rules.HasFlag(FlagVelocitySpike) {
		behavior += 40
	}
	if rules.HasFlag(FlagDeviceChange) {
		behavior += 20
	}
	if rules.HasFlag(FlagHighFailedTxn) {
		behavior += 30
	}
	if uc.Stats.DaysSinceLastTxn > 30 {
		behavior += 20
	}
	if behavior > 100 {
		behavior = 100
	}

	amountScore := amountAxisScore(uc, amount)

	payee := 0
	if uc.Payee.IsNew {
		payee += 40
	}
	payee += int(uc.Payee.ReputationScore * 60)
	if payee > 100 {
		payee = 100
	}

	return Breakdown{Behavior: behavior, Amount: amountScore, Payee: payee}
}

func amountAxisScore(uc *UserContext, amount int64) int {
	avg := uc.Stats.AvgAmount30d
	if avg == 0 {
		avg = 1000
	}
	ratio := float64(amount) / avg

	switch {
	case ratio > 10:
		return 100
	case ratio > 5:
		return 80
	case ratio > 3:
		return 60
	case ratio > 1.5:
		return 40
	default:
		return 20
	}
}
