package risk

import (
	"time"

	sessiondomain "sessionguard/internal/session/domain"
)

// minSessionTTL is the absolute floor: no session may expire less than 30 minutes
// after the expiry is computed, whatever the multipliers say.
const minSessionTTL = 30 * time.Minute

// TimeoutPolicy derives a session expiry from risk and device trust.
type TimeoutPolicy struct {
	BaseTTL time.Duration
}

// NewTimeoutPolicy returns a policy with the given base TTL (24h when zero).
func NewTimeoutPolicy(base time.Duration) TimeoutPolicy {
	if base <= 0 {
		base = 24 * time.Hour
	}
	return TimeoutPolicy{BaseTTL: base}
}

// ComputeExpiry returns now + max(base * riskMultiplier * trustMultiplier, 30m).
// Higher risk shortens the session, trusted devices lengthen it.
func (p TimeoutPolicy) ComputeExpiry(now time.Time, riskScore int, trust sessiondomain.DeviceTrust) time.Time {
	ttl := time.Duration(float64(p.BaseTTL) * riskMultiplier(riskScore) * trustMultiplier(trust))
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}
	return now.Add(ttl)
}

func riskMultiplier(score int) float64 {
	switch {
	case score > 50:
		return 0.25
	case score > 25:
		return 0.5
	case score < 10:
		return 1.5
	default:
		return 1.0
	}
}

func trustMultiplier(trust sessiondomain.DeviceTrust) float64 {
	switch trust {
	case sessiondomain.TrustTrusted:
		return 2.0
	case sessiondomain.TrustSuspicious:
		return 0.1
	default:
		return 1.0
	}
}
