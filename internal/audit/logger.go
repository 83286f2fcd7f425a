// Package audit appends structured security events to the durable trail and
// escalates critical ones to the alert dispatcher.
package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	alertdomain "sessionguard/internal/alert/domain"
	"sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
	"sessionguard/internal/telemetry"
)

// escalateTimeout bounds the async critical escalation.
const escalateTimeout = 5 * time.Second

// Escalator is the slice of the alert dispatcher the logger needs.
type Escalator interface {
	Check(ctx context.Context, metric alertdomain.Metric, value float64, details map[string]string) (*alertdomain.Alert, error)
}

// Logger writes audit events. The store append is the durable contract and its error
// is returned; telemetry emit and critical escalation are best-effort side effects.
type Logger struct {
	repo      auditrepo.Repository
	emitter   telemetry.EventEmitter
	escalator Escalator
	nowF      func() time.Time
}

// NewLogger returns a Logger persisting to repo. emitter and escalator may be nil.
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, escalator Escalator) *Logger {
	return &Logger{repo: repo, emitter: emitter, escalator: escalator, nowF: time.Now}
}

// Log validates and appends the event. ID and CreatedAt are filled when empty.
// Returns the store error: callers that need the audit record as part of a durable
// state transition must treat failure as failure of the whole operation.
func (l *Logger) Log(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.nowF().UTC()
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if err := l.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}

	telemetry.EmitAsync(l.emitter, ctx, &telemetry.SecurityEvent{
		UserID:    e.UserID,
		EventType: string(e.EventType),
		RiskLevel: string(e.RiskLevel),
		IPAddress: e.IPAddress,
		Detail:    e.Description,
		CreatedAt: e.CreatedAt,
	})

	if e.RiskLevel == domain.RiskCritical {
		l.escalateAsync(e)
	}
	return nil
}

// escalateAsync routes critical events to the admin_security alert channel.
// Failure is logged and swallowed; the audit write already succeeded.
func (l *Logger) escalateAsync(e *domain.Event) {
	if l.escalator == nil {
		return
	}
	event := *e
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), escalateTimeout)
		defer cancel()
		details := map[string]string{
			"event_id":   event.ID,
			"event_type": string(event.EventType),
			"user_id":    event.UserID,
		}
		if _, err := l.escalator.Check(ctx, alertdomain.MetricAdminSecurity, 1, details); err != nil {
			log.Printf("audit: escalation for event %s failed: %v", event.ID, err)
		}
	}()
}
