// Package service implements the session lifecycle: create, validate, invalidate,
// and expiry cleanup, with risk scoring and policy-driven blocking.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	alertdomain "sessionguard/internal/alert/domain"
	auditdomain "sessionguard/internal/audit/domain"
	devicedomain "sessionguard/internal/device/domain"
	"sessionguard/internal/geo"
	"sessionguard/internal/policy/engine"
	"sessionguard/internal/risk"
	"sessionguard/internal/session/domain"
	"sessionguard/internal/session/repository"
	"sessionguard/internal/telemetry/producer"
)

// recentWindow is the trailing window for the session-volume risk signal.
const recentWindow = 24 * time.Hour

// Sentinel errors; the HTTP layer maps them to status codes.
var (
	// ErrInvalidInput marks malformed identifiers or missing required context.
	// Rejected immediately with no retry and no side effects.
	ErrInvalidInput = errors.New("invalid input")
)

// Machine-readable reasons returned across the caller boundary for invalid sessions.
// Scored sessions additionally carry the risk reasons from the scorer.
const (
	ReasonSessionNotFound = "session_not_found"
	ReasonSessionInactive = "session_inactive"
	ReasonSessionExpired  = "session_expired"
)

// ValidationResult is the outcome of one validation call.
type ValidationResult struct {
	Valid   bool
	Risk    risk.Level
	Reasons []string
	// Session is set when the session was found, whatever the outcome.
	Session *domain.Session
}

// AuditLogger is the slice of the audit logger the manager needs.
type AuditLogger interface {
	Log(ctx context.Context, e *auditdomain.Event) error
}

// Manager orchestrates session state transitions. All mutations go through the
// repository's conditional writes, so concurrent calls cannot resurrect or
// double-invalidate a session.
type Manager struct {
	repo        repository.Repository
	audit       AuditLogger
	decider     engine.Evaluator
	geoResolver geo.Resolver
	metrics     producer.Producer
	timeout     risk.TimeoutPolicy
	riskCfg     risk.Config
	maxSessions int
	geoTimeout  time.Duration
	nowF        func() time.Time
}

// NewManager wires the lifecycle manager. decider, geoResolver, and metrics may be
// nil: decisions then fall back to fixed thresholds, locations stay unknown, and no
// metric samples are emitted.
func NewManager(
	repo repository.Repository,
	auditLogger AuditLogger,
	decider engine.Evaluator,
	geoResolver geo.Resolver,
	metrics producer.Producer,
	timeout risk.TimeoutPolicy,
	riskCfg risk.Config,
	maxSessions int,
	geoTimeout time.Duration,
) *Manager {
	if maxSessions < 1 {
		maxSessions = 5
	}
	if geoTimeout <= 0 {
		geoTimeout = 5 * time.Second
	}
	return &Manager{
		repo:        repo,
		audit:       auditLogger,
		decider:     decider,
		geoResolver: geoResolver,
		metrics:     metrics,
		timeout:     timeout,
		riskCfg:     riskCfg,
		maxSessions: maxSessions,
		geoTimeout:  geoTimeout,
		nowF:        time.Now,
	}
}

// Create opens a session for the already-authenticated user. When the user is at the
// concurrency cap, the oldest sessions by last activity are evicted first; the
// check-evict-insert sequence is serialized per user inside the repository.
func (m *Manager) Create(ctx context.Context, userID string, reqCtx devicedomain.RequestContext) (*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := m.nowF().UTC()
	s := &domain.Session{
		ID:                uuid.New().String(),
		UserID:            userID,
		DeviceFingerprint: reqCtx.Fingerprint(),
		DeviceName:        reqCtx.Device.DeviceName,
		Browser:           reqCtx.Device.Browser,
		OS:                reqCtx.Device.OS,
		IPAddress:         reqCtx.IP,
		Location:          reqCtx.Location.String(),
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         m.timeout.ComputeExpiry(now, 0, domain.TrustNew),
		IsActive:          true,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	evicted, err := m.repo.CreateCapped(ctx, s, m.maxSessions)
	if err != nil {
		return nil, fmt.Errorf("sessions: create: %w", err)
	}

	for _, id := range evicted {
		m.auditBestEffort(ctx, &auditdomain.Event{
			UserID:      userID,
			IPAddress:   reqCtx.IP,
			EventType:   auditdomain.EventSessionEvicted,
			Description: "session evicted by concurrency cap",
			Metadata:    map[string]any{"session_id": id, "reason": string(domain.ReasonConcurrentLimit)},
			RiskLevel:   auditdomain.RiskMedium,
			Success:     true,
		})
	}
	m.auditBestEffort(ctx, &auditdomain.Event{
		UserID:      userID,
		IPAddress:   reqCtx.IP,
		EventType:   auditdomain.EventSessionCreated,
		Description: "session created",
		Metadata:    map[string]any{"session_id": s.ID, "fingerprint": s.DeviceFingerprint},
		RiskLevel:   auditdomain.RiskLow,
		Success:     true,
	})
	return s, nil
}

// Validate re-scores the session against the fresh request context. Store errors are
// returned so callers fail closed; policy outcomes (expired, blocked) come back as a
// ValidationResult, not an error.
func (m *Manager) Validate(ctx context.Context, sessionID string, reqCtx devicedomain.RequestContext) (ValidationResult, error) {
	if sessionID == "" {
		return ValidationResult{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	now := m.nowF().UTC()

	s, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("sessions: load: %w", err)
	}
	if s == nil {
		return ValidationResult{Valid: false, Risk: risk.LevelHigh, Reasons: []string{ReasonSessionNotFound}}, nil
	}
	if !s.IsActive {
		return ValidationResult{Valid: false, Risk: risk.LevelHigh, Reasons: []string{ReasonSessionInactive}, Session: s}, nil
	}
	if s.ExpiredAt(now) {
		return m.expire(ctx, s, now)
	}

	recent, err := m.repo.CountByUserSince(ctx, s.UserID, now.Add(-recentWindow))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("sessions: recent count: %w", err)
	}

	assessment := risk.Score(m.riskCfg, s, reqCtx, recent, now, m.storedCoordinates(ctx, s, reqCtx))
	decision := m.decide(ctx, assessment, s.Trust(now))

	if decision.Block {
		return m.block(ctx, s, reqCtx, assessment, now)
	}

	expiresAt := m.timeout.ComputeExpiry(now, assessment.Score, s.Trust(now))
	if err := m.repo.UpdateActivity(ctx, s.ID, now, assessment.Score, decision.Suspicious, expiresAt); err != nil {
		return ValidationResult{}, fmt.Errorf("sessions: update activity: %w", err)
	}
	s.LastActivity = now
	s.RiskScore = assessment.Score
	s.IsSuspicious = decision.Suspicious
	s.ExpiresAt = expiresAt

	return ValidationResult{Valid: true, Risk: assessment.Level, Reasons: reasonStrings(assessment.Reasons), Session: s}, nil
}

// Invalidate terminates the session. Idempotent: invalidating an already-inactive
// session is a no-op, not an error.
func (m *Manager) Invalidate(ctx context.Context, sessionID string, reason domain.InvalidationReason) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if !reason.Valid() {
		return fmt.Errorf("%w: unknown invalidation reason %q", ErrInvalidInput, reason)
	}
	now := m.nowF().UTC()
	changed, err := m.repo.Invalidate(ctx, sessionID, reason, now)
	if err != nil {
		return fmt.Errorf("sessions: invalidate: %w", err)
	}
	if !changed {
		return nil
	}
	level := auditdomain.RiskLow
	if reason == domain.ReasonAdminAction {
		level = auditdomain.RiskMedium
	}
	m.auditBestEffort(ctx, &auditdomain.Event{
		EventType:   auditdomain.EventSessionInvalidated,
		Description: "session invalidated",
		Metadata:    map[string]any{"session_id": sessionID, "reason": string(reason)},
		RiskLevel:   level,
		Success:     true,
	})
	return nil
}

// InvalidateAllExcept terminates all of the user's other active sessions and returns
// how many were affected.
func (m *Manager) InvalidateAllExcept(ctx context.Context, userID, keepSessionID string, reason domain.InvalidationReason) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !reason.Valid() {
		return 0, fmt.Errorf("%w: unknown invalidation reason %q", ErrInvalidInput, reason)
	}
	now := m.nowF().UTC()
	count, err := m.repo.InvalidateAllExcept(ctx, userID, keepSessionID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("sessions: invalidate all: %w", err)
	}
	if count > 0 {
		m.auditBestEffort(ctx, &auditdomain.Event{
			UserID:      userID,
			EventType:   auditdomain.EventSessionInvalidated,
			Description: "bulk session invalidation",
			Metadata:    map[string]any{"kept_session_id": keepSessionID, "reason": string(reason), "count": count},
			RiskLevel:   auditdomain.RiskLow,
			Success:     true,
		})
	}
	return count, nil
}

// CleanupExpired invalidates active sessions past their expiry, optionally scoped to
// one user. Safe to run concurrently with Validate: both gate on is_active, so a
// racing invalidation simply affects zero rows here.
func (m *Manager) CleanupExpired(ctx context.Context, userID *string) (int64, error) {
	now := m.nowF().UTC()
	count, err := m.repo.InvalidateExpired(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("sessions: cleanup: %w", err)
	}
	if count > 0 {
		scope := "all users"
		if userID != nil && *userID != "" {
			scope = *userID
		}
		m.auditBestEffort(ctx, &auditdomain.Event{
			EventType:   auditdomain.EventSessionExpired,
			Description: "expired sessions cleaned up",
			Metadata:    map[string]any{"count": count, "scope": scope},
			RiskLevel:   auditdomain.RiskLow,
			Success:     true,
		})
	}
	return count, nil
}

// ListActive returns the user's active sessions for the self-service and admin surfaces.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return m.repo.ListActiveByUser(ctx, userID)
}

// expire handles a session found past its expiry during validation.
func (m *Manager) expire(ctx context.Context, s *domain.Session, now time.Time) (ValidationResult, error) {
	changed, err := m.repo.Invalidate(ctx, s.ID, domain.ReasonExpired, now)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("sessions: expire: %w", err)
	}
	if changed {
		m.auditBestEffort(ctx, &auditdomain.Event{
			UserID:      s.UserID,
			IPAddress:   s.IPAddress,
			EventType:   auditdomain.EventSessionExpired,
			Description: "session expired",
			Metadata:    map[string]any{"session_id": s.ID},
			RiskLevel:   auditdomain.RiskLow,
			Success:     true,
		})
	}
	return ValidationResult{Valid: false, Risk: risk.LevelMedium, Reasons: []string{ReasonSessionExpired}, Session: s}, nil
}

// block handles a critical policy decision: durable invalidation and critical audit
// first, best-effort metric emission after. The audit logger escalates the critical
// event to the alert dispatcher.
func (m *Manager) block(ctx context.Context, s *domain.Session, reqCtx devicedomain.RequestContext, a risk.Assessment, now time.Time) (ValidationResult, error) {
	if _, err := m.repo.Invalidate(ctx, s.ID, domain.ReasonSuspiciousActivity, now); err != nil {
		return ValidationResult{}, fmt.Errorf("sessions: block: %w", err)
	}
	m.auditBestEffort(ctx, &auditdomain.Event{
		UserID:      s.UserID,
		IPAddress:   reqCtx.IP,
		EventType:   auditdomain.EventSuspiciousActivity,
		Description: "session blocked at critical risk",
		Metadata: map[string]any{
			"session_id": s.ID,
			"risk_score": a.Score,
			"reasons":    reasonStrings(a.Reasons),
		},
		RiskLevel: auditdomain.RiskCritical,
		Success:   false,
	})
	m.emitMetric(ctx, alertdomain.MetricSessionRiskCritical, float64(a.Score), map[string]string{
		"session_id": s.ID,
		"user_id":    s.UserID,
	})
	return ValidationResult{Valid: false, Risk: risk.LevelCritical, Reasons: reasonStrings(a.Reasons), Session: s}, nil
}

// storedCoordinates resolves the stored IP's location for the distance signal.
// Skipped when the IP is unchanged; lookup failures leave the signal neutral.
func (m *Manager) storedCoordinates(ctx context.Context, s *domain.Session, reqCtx devicedomain.RequestContext) geo.Coordinates {
	if m.geoResolver == nil || s.IPAddress == "" || s.IPAddress == reqCtx.IP {
		return geo.Coordinates{}
	}
	lookupCtx, cancel := context.WithTimeout(ctx, m.geoTimeout)
	defer cancel()
	return m.geoResolver.Lookup(lookupCtx, s.IPAddress).Coordinates
}

// decide consults the policy engine, falling back to the fixed thresholds when
// evaluation fails. Policy failure must never let a critical session through.
func (m *Manager) decide(ctx context.Context, a risk.Assessment, trust domain.DeviceTrust) engine.Decision {
	if m.decider == nil {
		return engine.FixedDecision(a)
	}
	d, err := m.decider.EvaluateSession(ctx, a, trust)
	if err != nil {
		log.Printf("sessions: policy evaluation failed, using fixed thresholds: %v", err)
		return engine.FixedDecision(a)
	}
	return d
}

// auditBestEffort writes the audit event and logs failures. Used where the primary
// state transition already committed and cannot be rolled back.
func (m *Manager) auditBestEffort(ctx context.Context, e *auditdomain.Event) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, e); err != nil {
		log.Printf("sessions: audit write failed for %s: %v", e.EventType, err)
	}
}

// emitMetric sends a metric sample toward the alert worker, best-effort. Taking
// the closed enum keeps emit sites honest: the worker rejects unknown metrics.
func (m *Manager) emitMetric(ctx context.Context, metric alertdomain.Metric, value float64, details map[string]string) {
	if m.metrics == nil {
		return
	}
	sample := &producer.MetricSample{Metric: string(metric), Value: value, Details: details, ObservedAt: m.nowF().UTC()}
	if err := m.metrics.Emit(ctx, sample); err != nil {
		log.Printf("sessions: metric emit failed for %s: %v", metric, err)
	}
}

func reasonStrings(rs []risk.Reason) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
