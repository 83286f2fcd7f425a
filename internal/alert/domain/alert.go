package domain

import (
	"fmt"
	"time"
)

// Metric is the closed set of monitored signals that can raise alerts.
type Metric string

const (
	// MetricSessionRiskCritical fires when a session is blocked for critical risk.
	MetricSessionRiskCritical Metric = "session_risk_critical"
	// MetricAdminSecurity is the escalation channel for critical audit events.
	MetricAdminSecurity Metric = "admin_security"
	// MetricLoginFailureRate is failed logins per check window.
	MetricLoginFailureRate Metric = "login_failure_rate"
	// MetricAPIErrorCount is 5xx responses per check window.
	MetricAPIErrorCount Metric = "api_error_count"
	// MetricAPILatencyP95 is the p95 request latency in milliseconds.
	MetricAPILatencyP95 Metric = "api_latency_p95"
	// MetricPaymentSuccessRate is successful payments over attempts (lower is worse).
	MetricPaymentSuccessRate Metric = "payment_success_rate"
	// MetricActiveSessionCount is the global active session count.
	MetricActiveSessionCount Metric = "active_session_count"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricSessionRiskCritical, MetricAdminSecurity, MetricLoginFailureRate,
		MetricAPIErrorCount, MetricAPILatencyP95, MetricPaymentSuccessRate,
		MetricActiveSessionCount:
		return true
	}
	return false
}

// Direction says which side of a threshold is unhealthy.
type Direction string

const (
	HigherIsWorse Direction = "higher_is_worse"
	LowerIsWorse  Direction = "lower_is_worse"
)

// Level is the alert severity.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Threshold is the admin-configurable alert policy for one metric.
type Threshold struct {
	Metric    Metric
	Critical  float64
	Warning   float64
	Direction Direction
	UpdatedAt time.Time
}

// Validate checks the threshold is internally consistent for its direction.
func (t Threshold) Validate() error {
	if !t.Metric.Valid() {
		return fmt.Errorf("alert: unknown metric %q", t.Metric)
	}
	switch t.Direction {
	case HigherIsWorse:
		if t.Critical < t.Warning {
			return fmt.Errorf("alert: %s critical %v below warning %v for higher-is-worse", t.Metric, t.Critical, t.Warning)
		}
	case LowerIsWorse:
		if t.Critical > t.Warning {
			return fmt.Errorf("alert: %s critical %v above warning %v for lower-is-worse", t.Metric, t.Critical, t.Warning)
		}
	default:
		return fmt.Errorf("alert: unknown direction %q", t.Direction)
	}
	return nil
}

// Evaluate returns the severity value breaches, or "" when the metric is healthy.
func (t Threshold) Evaluate(value float64) Level {
	if t.Direction == LowerIsWorse {
		switch {
		case value < t.Critical:
			return LevelCritical
		case value < t.Warning:
			return LevelWarning
		}
		return ""
	}
	switch {
	case value > t.Critical:
		return LevelCritical
	case value > t.Warning:
		return LevelWarning
	}
	return ""
}

// Alert is one fired (non-suppressed) alert.
type Alert struct {
	ID        string
	Metric    Metric
	Level     Level
	Value     float64
	Details   map[string]string
	CreatedAt time.Time
}

// DefaultThresholds are the compiled-in policies used until admins change them.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Metric: MetricSessionRiskCritical, Warning: 0, Critical: 0, Direction: HigherIsWorse},
		{Metric: MetricAdminSecurity, Warning: 0, Critical: 0, Direction: HigherIsWorse},
		{Metric: MetricLoginFailureRate, Warning: 10, Critical: 25, Direction: HigherIsWorse},
		{Metric: MetricAPIErrorCount, Warning: 20, Critical: 100, Direction: HigherIsWorse},
		{Metric: MetricAPILatencyP95, Warning: 800, Critical: 2000, Direction: HigherIsWorse},
		{Metric: MetricPaymentSuccessRate, Warning: 0.95, Critical: 0.85, Direction: LowerIsWorse},
		{Metric: MetricActiveSessionCount, Warning: 10000, Critical: 50000, Direction: HigherIsWorse},
	}
}
