package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	alertdomain "sessionguard/internal/alert/domain"
	"sessionguard/internal/audit/domain"
	"sessionguard/internal/telemetry"
)

type memoryAuditRepo struct {
	mu     sync.Mutex
	events []*domain.Event
	fail   bool
}

func (r *memoryAuditRepo) Append(_ context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("insert failed")
	}
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *memoryAuditRepo) GetByID(_ context.Context, id string) (*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryAuditRepo) List(_ context.Context, f domain.Filter) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryAuditRepo) CountByTypeSince(_ context.Context, t domain.EventType, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.EventType == t && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memoryAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// channelEscalator signals every escalation so tests can wait on the goroutine.
type channelEscalator struct {
	ch   chan alertdomain.Metric
	fail bool
}

func (e *channelEscalator) Check(_ context.Context, metric alertdomain.Metric, _ float64, _ map[string]string) (*alertdomain.Alert, error) {
	e.ch <- metric
	if e.fail {
		return nil, errors.New("dispatcher down")
	}
	return &alertdomain.Alert{Metric: metric}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.SecurityEvent
}

func (e *recordingEmitter) Emit(_ context.Context, ev *telemetry.SecurityEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func validEvent() *domain.Event {
	return &domain.Event{
		UserID:      "u-1",
		IPAddress:   "203.0.113.10",
		EventType:   domain.EventLoginSuccess,
		Description: "login",
		RiskLevel:   domain.RiskLow,
		Success:     true,
	}
}

func TestLogFillsIdentityAndPersists(t *testing.T) {
	repo := &memoryAuditRepo{}
	l := NewLogger(repo, nil, nil)

	e := validEvent()
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if e.ID == "" {
		t.Error("ID should be filled")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be filled")
	}
	if repo.count() != 1 {
		t.Errorf("stored events = %d, want 1", repo.count())
	}
}

func TestLogReturnsStoreError(t *testing.T) {
	repo := &memoryAuditRepo{fail: true}
	l := NewLogger(repo, nil, nil)

	if err := l.Log(context.Background(), validEvent()); err == nil {
		t.Fatal("append failure must surface: the audit write is the durable contract")
	}
}

func TestLogRejectsUnknownEnumValues(t *testing.T) {
	repo := &memoryAuditRepo{}
	l := NewLogger(repo, nil, nil)

	e := validEvent()
	e.EventType = "made_up"
	if err := l.Log(context.Background(), e); err == nil {
		t.Error("unknown event type should be rejected")
	}

	e = validEvent()
	e.RiskLevel = "severe"
	if err := l.Log(context.Background(), e); err == nil {
		t.Error("unknown risk level should be rejected")
	}
	if repo.count() != 0 {
		t.Errorf("stored events = %d, want 0", repo.count())
	}
}

func TestLogEscalatesCriticalEvents(t *testing.T) {
	repo := &memoryAuditRepo{}
	esc := &channelEscalator{ch: make(chan alertdomain.Metric, 1)}
	l := NewLogger(repo, nil, esc)

	e := validEvent()
	e.EventType = domain.EventSuspiciousActivity
	e.RiskLevel = domain.RiskCritical
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatalf("Log: %v", err)
	}

	select {
	case metric := <-esc.ch:
		if metric != alertdomain.MetricAdminSecurity {
			t.Errorf("escalated metric = %q, want admin_security", metric)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("critical event never escalated")
	}
}

func TestLogDoesNotEscalateBelowCritical(t *testing.T) {
	esc := &channelEscalator{ch: make(chan alertdomain.Metric, 1)}
	l := NewLogger(&memoryAuditRepo{}, nil, esc)

	e := validEvent()
	e.RiskLevel = domain.RiskHigh
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatalf("Log: %v", err)
	}

	select {
	case <-esc.ch:
		t.Error("non-critical event must not escalate")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLogSwallowsEscalationFailure(t *testing.T) {
	esc := &channelEscalator{ch: make(chan alertdomain.Metric, 1), fail: true}
	l := NewLogger(&memoryAuditRepo{}, nil, esc)

	e := validEvent()
	e.RiskLevel = domain.RiskCritical
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatalf("Log must not fail on escalation errors: %v", err)
	}
	<-esc.ch
}

func TestLogEmitsTelemetry(t *testing.T) {
	emitter := &recordingEmitter{}
	l := NewLogger(&memoryAuditRepo{}, emitter, nil)

	if err := l.Log(context.Background(), validEvent()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		emitter.mu.Lock()
		n := len(emitter.events)
		emitter.mu.Unlock()
		if n == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("emitted events = %d, want 1", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
