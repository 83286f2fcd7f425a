// Package risk scores sessions from independent signals and derives session expiry.
// Everything here is pure: the clock and all context arrive as parameters, so results
// are deterministic and the functions are safe to call concurrently.
package risk

import (
	"time"

	devicedomain "sessionguard/internal/device/domain"
	"sessionguard/internal/geo"
	sessiondomain "sessionguard/internal/session/domain"
)

// Level classifies a risk score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Reason is a machine-readable explanation for score points.
type Reason string

const (
	ReasonFingerprintMismatch Reason = "fingerprint_mismatch"
	ReasonIPDistanceFar       Reason = "ip_distance_far"
	ReasonIPDistanceModerate  Reason = "ip_distance_moderate"
	ReasonLongInactivity      Reason = "long_inactivity"
	ReasonUnusualActivity     Reason = "unusual_session_activity"
)

// Signal weights and limits.
const (
	maxScore               = 100
	fingerprintPoints      = 50
	distanceFarPoints      = 30
	distanceModeratePoints = 10
	inactivityPoints       = 10
	volumePoints           = 20
	inactivityWindow       = 120 * time.Minute
	recentSessionLimit     = 10
)

// Config holds the tunable scoring thresholds. Distances are policy constants, not
// validated behavior: deployments may tighten or loosen them.
type Config struct {
	DistanceModerateKM float64
	DistanceFarKM      float64
}

// DefaultConfig returns the stock 100km/1000km distance thresholds.
func DefaultConfig() Config {
	return Config{DistanceModerateKM: 100, DistanceFarKM: 1000}
}

// Assessment is the scoring result.
type Assessment struct {
	Score   int
	Level   Level
	Reasons []Reason
}

// Score evaluates the stored session against the fresh request context. Signals are
// additive and independent; the total is capped at 100. recentSessionCount is the
// user's session count over the trailing 24h; now is the evaluation instant.
func Score(cfg Config, s *sessiondomain.Session, fresh devicedomain.RequestContext, recentSessionCount int, now time.Time, storedCoords geo.Coordinates) Assessment {
	var score int
	var reasons []Reason

	if fresh.Fingerprint() != s.DeviceFingerprint {
		score += fingerprintPoints
		reasons = append(reasons, ReasonFingerprintMismatch)
	}

	if fresh.IP != s.IPAddress {
		// Distance is neutral when either side's coordinates are unknown: a geo
		// outage must not inflate risk.
		if !storedCoords.Zero() && !fresh.Location.Coordinates.Zero() {
			switch d := geo.DistanceKM(storedCoords, fresh.Location.Coordinates); {
			case d > cfg.DistanceFarKM:
				score += distanceFarPoints
				reasons = append(reasons, ReasonIPDistanceFar)
			case d > cfg.DistanceModerateKM:
				score += distanceModeratePoints
				reasons = append(reasons, ReasonIPDistanceModerate)
			}
		}
	}

	if now.Sub(s.LastActivity) > inactivityWindow {
		score += inactivityPoints
		reasons = append(reasons, ReasonLongInactivity)
	}

	if recentSessionCount > recentSessionLimit {
		score += volumePoints
		reasons = append(reasons, ReasonUnusualActivity)
	}

	if score > maxScore {
		score = maxScore
	}
	return Assessment{Score: score, Level: LevelFor(score), Reasons: reasons}
}

// LevelFor maps a score to its level band.
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}
