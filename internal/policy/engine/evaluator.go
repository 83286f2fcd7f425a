package engine

import (
	"context"

	"sessionguard/internal/risk"
	sessiondomain "sessionguard/internal/session/domain"
)

// Decision is the policy outcome for a scored session.
type Decision struct {
	// Block means the session must be invalidated with reason suspicious_activity.
	Block bool
	// Suspicious flags the session without terminating it.
	Suspicious bool
}

// Evaluator decides how a scored session is handled, using OPA or other engines.
type Evaluator interface {
	// EvaluateSession maps a risk assessment and device trust to a Decision.
	EvaluateSession(ctx context.Context, a risk.Assessment, trust sessiondomain.DeviceTrust) (Decision, error)
}

// FixedDecision applies the stock thresholds without consulting any policy store:
// critical blocks, high flags. Used as the fail-safe when Rego evaluation breaks.
func FixedDecision(a risk.Assessment) Decision {
	return Decision{
		Block:      a.Level == risk.LevelCritical,
		Suspicious: a.Level == risk.LevelHigh,
	}
}
