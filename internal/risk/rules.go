package risk

import "strings"

// Blacklist cutoffs. Both require a minimum sample so a single spite
// report cannot block a payee.
const (
	blacklistFraudRatio = 0.70
	blacklistFraudCount = 7
	blacklistMinSample  = 10
)

// suspiciousNoteTerms are scanned case-insensitively in the transfer note.
// A hit raises a flag for the factor list only; it never moves the score.
var suspiciousNoteTerms = []string{
	"lottery", "prize", "kyc", "crypto", "refund", "win", "cashback",
}

// EvaluateRules runs the deterministic checks in order and accumulates the
// rule score additively, capped at 1.0. A blacklisted payee terminates with
// a hard block and skips every later check. Pure: no I/O, no clock reads.
func EvaluateRules(intent *TransactionIntent, uc *UserContext) *RuleOutcome {
	out := &RuleOutcome{Breakdown: make(map[string]float64)}

	// Blacklist, terminal.
	rep := uc.Payee
	if rep.TotalTransactions >= blacklistMinSample &&
		(rep.FraudRatio > blacklistFraudRatio || rep.FraudCount >= blacklistFraudCount) {
		out.BlockReason = "payee is blacklisted for fraud"
		out.RuleScore = 1.0
		return out
	}

	add := func(name string, score float64) {
		out.RuleScore += score
		out.Breakdown[name] += score
	}

	// Velocity.
	velocity := 0.0
	if uc.Stats.DaysSinceLastTxn > 7 && uc.Stats.Count5Min >= 3 {
		velocity += 0.35
	}
	switch {
	case uc.Stats.Count5Min >= 5:
		velocity += 0.25
	case uc.Stats.Count5Min >= 3:
		velocity += 0.15
	}
	switch {
	case uc.Stats.Count1H >= 15:
		velocity += 0.20
	case uc.Stats.Count1H >= 10:
		velocity += 0.10
	}
	if velocity > 0 {
		add("velocity", velocity)
		out.Flags = append(out.Flags, FlagVelocitySpike)
	}

	// Amount anomaly. Empty history reads against a baseline average.
	avg := uc.Stats.AvgAmount30d
	if avg == 0 {
		avg = 1000
	}
	amount := float64(intent.Amount)

	amountScore := 0.0
	if rep.IsNew && amount > 3*avg {
		amountScore += 0.30
		out.Flags = append(out.Flags, FlagNewReceiverHighAmount)
	}
	ratio := amount / avg
	switch {
	case ratio > 5:
		amountScore += 0.25
	case ratio > 3:
		amountScore += 0.15
	}
	if uc.Stats.MaxAmount30d > 0 && amount > 1.5*float64(uc.Stats.MaxAmount30d) {
		amountScore += 0.10
	}
	if amountScore > 0 {
		add("amount", amountScore)
	}

	// Device change.
	if intent.DeviceID != "" && !uc.Profile.KnowsDevice(intent.DeviceID) {
		add("device", 0.15)
		out.Flags = append(out.Flags, FlagDeviceChange)
	}

	// Failed-transaction pattern.
	switch {
	case uc.Stats.Failed7d >= 5:
		add("failed", 0.20)
		out.Flags = append(out.Flags, FlagHighFailedTxn)
	case uc.Stats.Failed7d >= 3:
		add("failed", 0.10)
		out.Flags = append(out.Flags, FlagHighFailedTxn)
	}

	// Note scan contributes a flag only.
	if noteLooksSuspicious(intent.Note) {
		out.Flags = append(out.Flags, FlagSuspiciousNote)
	}

	if out.RuleScore > 1.0 {
		out.RuleScore = 1.0
	}
	return out
}

func noteLooksSuspicious(note string) bool {
	if note == "" {
		return false
	}
	lower := strings.ToLower(note)
	for _, term := range suspiciousNoteTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
