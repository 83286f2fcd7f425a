package domain

import (
	"fmt"
	"time"
)

// InvalidationReason is the closed set of reasons a session leaves the active state.
type InvalidationReason string

const (
	ReasonExpired            InvalidationReason = "expired"
	ReasonSuspiciousActivity InvalidationReason = "suspicious_activity"
	ReasonUserRequested      InvalidationReason = "user_requested"
	ReasonUserRequestedAll   InvalidationReason = "user_requested_all"
	ReasonConcurrentLimit    InvalidationReason = "concurrent_session_limit"
	ReasonAdminAction        InvalidationReason = "admin_action"
)

// Valid reports whether r is a known invalidation reason.
func (r InvalidationReason) Valid() bool {
	switch r {
	case ReasonExpired, ReasonSuspiciousActivity, ReasonUserRequested,
		ReasonUserRequestedAll, ReasonConcurrentLimit, ReasonAdminAction:
		return true
	}
	return false
}

// DeviceTrust is a coarse classification used to scale session lifetime.
type DeviceTrust string

const (
	TrustNew        DeviceTrust = "new"
	TrustTrusted    DeviceTrust = "trusted"
	TrustSuspicious DeviceTrust = "suspicious"
)

// Session represents one authenticated principal's session on one device.
// Mutated only by the lifecycle manager; once inactive it never becomes active again.
type Session struct {
	ID                 string
	UserID             string
	DeviceFingerprint  string
	DeviceName         string
	Browser            string
	OS                 string
	IPAddress          string
	Location           string
	CreatedAt          time.Time
	LastActivity       time.Time
	ExpiresAt          time.Time
	IsActive           bool
	IsSuspicious       bool
	RiskScore          int
	InvalidatedAt      *time.Time // set together with InvalidationReason
	InvalidationReason *InvalidationReason
}

// ExpiredAt reports whether the session's scheduled expiry has passed at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Trust derives the device-trust classification from the session's history:
// flagged sessions are suspicious, long-lived quiet sessions are trusted,
// everything else is new.
func (s *Session) Trust(now time.Time) DeviceTrust {
	if s.IsSuspicious {
		return TrustSuspicious
	}
	if now.Sub(s.CreatedAt) > 7*24*time.Hour && s.RiskScore < 10 {
		return TrustTrusted
	}
	return TrustNew
}

// Validate checks structural invariants before persisting.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session: id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("session: user_id is required")
	}
	if s.RiskScore < 0 || s.RiskScore > 100 {
		return fmt.Errorf("session: risk_score %d out of range [0,100]", s.RiskScore)
	}
	if (s.InvalidatedAt == nil) != (s.InvalidationReason == nil) {
		return fmt.Errorf("session: invalidated_at and invalidation_reason must be set together")
	}
	if s.InvalidationReason != nil && !s.InvalidationReason.Valid() {
		return fmt.Errorf("session: unknown invalidation reason %q", *s.InvalidationReason)
	}
	return nil
}
