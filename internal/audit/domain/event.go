package domain

import (
	"fmt"
	"time"
)

// EventType is the closed set of security-relevant actions recorded in the audit trail.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventLogout             EventType = "logout"
	EventSessionCreated     EventType = "session_created"
	EventSessionInvalidated EventType = "session_invalidated"
	EventSessionExpired     EventType = "session_expired"
	EventSessionEvicted     EventType = "session_evicted"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventPasswordChange     EventType = "password_change"
	EventTwoFactorEnabled   EventType = "two_factor_enabled"
	EventTwoFactorDisabled  EventType = "two_factor_disabled"
	EventAccountLocked      EventType = "account_locked"
	EventAdminAction        EventType = "admin_action"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventLoginSuccess, EventLoginFailure, EventLogout,
		EventSessionCreated, EventSessionInvalidated, EventSessionExpired,
		EventSessionEvicted, EventSuspiciousActivity, EventPasswordChange,
		EventTwoFactorEnabled, EventTwoFactorDisabled, EventAccountLocked,
		EventAdminAction:
		return true
	}
	return false
}

// RiskLevel classifies how security-relevant an audit event is. The caller supplies
// it; the logger never infers it.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Event is one append-only audit record. Never mutated or deleted after creation.
type Event struct {
	ID          string
	UserID      string // empty when the principal is unknown (e.g. failed login)
	Email       string
	IPAddress   string
	UserAgent   string
	EventType   EventType
	Description string
	Metadata    map[string]any
	RiskLevel   RiskLevel
	Success     bool
	CreatedAt   time.Time
}

// Validate checks the closed enums before persisting.
func (e *Event) Validate() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("audit: unknown event type %q", e.EventType)
	}
	if !e.RiskLevel.Valid() {
		return fmt.Errorf("audit: unknown risk level %q", e.RiskLevel)
	}
	return nil
}

// Filter narrows audit queries on the admin surface. Zero fields match everything.
type Filter struct {
	UserID    string
	EventType EventType
	RiskLevel RiskLevel
	Since     time.Time
	Until     time.Time
	Limit     int32
	Offset    int32
}
