package risk

// Thresholds are the score cutoffs for the baseline action mapping.
type Thresholds struct {
	Low      float64
	Moderate float64
	High     float64
}

// DefaultThresholds follows the identity/fraud-separated policy. Calibrate
// against labeled data before trusting these in production.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.30, Moderate: 0.60, High: 0.80}
}

// Resolution is the action resolver's output before the coordinator
// assembles the full decision record.
type Resolution struct {
	Action          Action
	RiskLevel       RiskLevel
	RequiresStepUp  bool
	Message         string
	Recommendations []string
}

// ResolveAction maps the fused score, flags, and identity signals to a
// terminal action. The policy runs on two axes: fraud magnitude (the
// score) and identity assurance (device and travel signals). Identity
// doubt escalates to step-up at low scores and to a block at high ones;
// pure fraud signals without identity doubt warn instead of blocking so a
// legitimate owner is never locked out by amount anomalies alone.
func ResolveAction(score float64, flags []string, uc *UserContext, t Thresholds) Resolution {
	identityRisk := uc.ImpossibleTravel
	for _, f := range flags {
		if f == FlagImpossibleTravel || f == FlagDeviceChange {
			identityRisk = true
		}
	}

	res := baseline(score, t)

	switch {
	case identityRisk && score >= t.High:
		res = Resolution{
			Action:    ActionBlock,
			RiskLevel: LevelVeryHigh,
			Message:   "Transaction blocked: this activity does not match your usual pattern",
			Recommendations: []string{
				"Verify your account through the app before retrying",
				"Contact support if you believe this is an error",
			},
		}
	case identityRisk && score < t.Moderate:
		res = Resolution{
			Action:         ActionOTPRequired,
			RiskLevel:      LevelHigh,
			RequiresStepUp: true,
			Message:        "Please verify your identity to continue",
			Recommendations: []string{
				"Enter the one-time password sent to your registered contact",
			},
		}
	case score >= t.High && !identityRisk:
		res = Resolution{
			Action:    ActionWarning,
			RiskLevel: LevelHigh,
			Message:   "This transaction looks unusual, review before confirming",
			Recommendations: []string{
				"Double-check the payee identifier and amount",
				"Only proceed if you initiated this transfer",
			},
		}
	}

	return res
}

func baseline(score float64, t Thresholds) Resolution {
	switch {
	case score < t.Low:
		return Resolution{
			Action:    ActionAllow,
			RiskLevel: LevelLow,
			Message:   "Transaction looks safe",
		}
	case score < t.Moderate:
		return Resolution{
			Action:    ActionWarning,
			RiskLevel: LevelModerate,
			Message:   "Review this transaction before confirming",
			Recommendations: []string{
				"Double-check the payee identifier and amount",
			},
		}
	case score < t.High:
		return Resolution{
			Action:         ActionOTPRequired,
			RiskLevel:      LevelHigh,
			RequiresStepUp: true,
			Message:        "Additional verification required for this transaction",
			Recommendations: []string{
				"Enter the one-time password sent to your registered contact",
				"Only proceed if you initiated this transfer",
			},
		}
	default:
		return Resolution{
			Action:    ActionBlock,
			RiskLevel: LevelVeryHigh,
			Message:   "Transaction blocked due to very high risk",
			Recommendations: []string{
				"Contact support if you believe this is an error",
			},
		}
	}
}
