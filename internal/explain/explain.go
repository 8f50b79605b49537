// Package explain produces short human-readable narratives for risk
// decisions. Output is purely additive: it never influences the action or
// score.
package explain

import (
	"fmt"
	"strings"
)

// Generator renders a templated narrative from the decision's score and
// flags.
type Generator struct{}

// NewGenerator creates a template-based explanation generator.
func NewGenerator() *Generator {
	return &Generator{}
}

var flagPhrases = map[string]string{
	"VELOCITY_SPIKE":           "an unusual burst of transactions",
	"NEW_RECEIVER_HIGH_AMOUNT": "a large amount going to a payee you have not paid before",
	"DEVICE_CHANGE":            "a device we have not seen on your account",
	"HIGH_FAILED_TXN":          "several recent failed attempts",
	"SUSPICIOUS_NOTE":          "wording in the note that is common in scams",
	"IMPOSSIBLE_TRAVEL":        "activity from an unexpected location",
}

// Explain renders the narrative for one decision.
func (g *Generator) Explain(score float64, flags []string, payee string) string {
	var reasons []string
	for _, f := range flags {
		if phrase, ok := flagPhrases[f]; ok {
			reasons = append(reasons, phrase)
		}
	}

	switch {
	case score < 0.30:
		if len(reasons) == 0 {
			return fmt.Sprintf("This transfer to %s matches your normal activity.", payee)
		}
		return fmt.Sprintf("This transfer to %s looks mostly normal, though we noticed %s.",
			payee, joinReasons(reasons))
	case score < 0.60:
		if len(reasons) == 0 {
			return fmt.Sprintf("This transfer to %s is somewhat outside your usual pattern. Take a moment to review it.", payee)
		}
		return fmt.Sprintf("We flagged this transfer to %s because of %s. Review the details before confirming.",
			payee, joinReasons(reasons))
	case score < 0.80:
		return fmt.Sprintf("This transfer to %s carries elevated risk%s. Additional verification keeps your account safe.",
			payee, reasonClause(reasons))
	default:
		return fmt.Sprintf("This transfer to %s was rated very high risk%s. We recommend not proceeding.",
			payee, reasonClause(reasons))
	}
}

func reasonClause(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return " due to " + joinReasons(reasons)
}

func joinReasons(reasons []string) string {
	switch len(reasons) {
	case 1:
		return reasons[0]
	case 2:
		return reasons[0] + " and " + reasons[1]
	default:
		return strings.Join(reasons[:len(reasons)-1], ", ") + ", and " + reasons[len(reasons)-1]
	}
}
