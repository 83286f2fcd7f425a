// Package alert implements the threshold + cooldown engine shared by session-risk
// escalation and business/health metric monitoring.
package alert

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sessionguard/internal/alert/cooldown"
	"sessionguard/internal/alert/domain"
	"sessionguard/internal/alert/repository"
	"sessionguard/internal/alert/sink"
)

// notifyTimeout bounds the async notification send so a slow sink never backs up
// into request handling.
const notifyTimeout = 5 * time.Second

// Dispatcher evaluates metric values against thresholds, deduplicates through the
// cooldown store, records fired alerts, and notifies on critical.
type Dispatcher struct {
	repo     repository.Repository
	cooldown cooldown.Store
	sink     sink.Sink
	window   time.Duration
	nowF     func() time.Time
}

// NewDispatcher wires the engine. repo supplies thresholds and records alerts;
// store deduplicates; s receives critical notifications (nil means none);
// window is the cooldown (30m when zero).
func NewDispatcher(repo repository.Repository, store cooldown.Store, s sink.Sink, window time.Duration) *Dispatcher {
	if s == nil {
		s = sink.Noop{}
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Dispatcher{repo: repo, cooldown: store, sink: s, window: window, nowF: time.Now}
}

// Check evaluates value for metric. Returns the fired alert, or nil when the metric
// is healthy or the alert is suppressed by cooldown. The alert record is the durable
// half; notification is dispatched async and its failure only logged.
func (d *Dispatcher) Check(ctx context.Context, metric domain.Metric, value float64, details map[string]string) (*domain.Alert, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("alert: unknown metric %q", metric)
	}
	threshold, err := d.threshold(ctx, metric)
	if err != nil {
		return nil, err
	}
	level := threshold.Evaluate(value)
	if level == "" {
		return nil, nil
	}

	claimed := false
	ok, err := d.cooldown.Acquire(ctx, string(metric), string(level), d.window)
	switch {
	case err != nil:
		// Fail open: a broken dedup store must not silence alerts. Worst case is a
		// duplicate notification, never a missed one.
		log.Printf("alert: cooldown store error for %s/%s: %v", metric, level, err)
	case !ok:
		return nil, nil
	default:
		claimed = true
	}

	a := &domain.Alert{
		ID:        uuid.New().String(),
		Metric:    metric,
		Level:     level,
		Value:     value,
		Details:   details,
		CreatedAt: d.nowF().UTC(),
	}
	if err := d.repo.RecordAlert(ctx, a); err != nil {
		// Give the claim back: a still-breaching metric must fire on the next
		// check instead of cooling down behind an alert that was never recorded.
		if claimed {
			if rerr := d.cooldown.Release(ctx, string(metric), string(level)); rerr != nil {
				log.Printf("alert: cooldown release for %s/%s: %v", metric, level, rerr)
			}
		}
		return nil, fmt.Errorf("alert: record: %w", err)
	}

	if level == domain.LevelCritical {
		d.notifyAsync(a)
	}
	return a, nil
}

// threshold returns the stored threshold for metric, falling back to the compiled-in
// default when admins have not configured one.
func (d *Dispatcher) threshold(ctx context.Context, metric domain.Metric) (domain.Threshold, error) {
	stored, err := d.repo.GetThreshold(ctx, metric)
	if err != nil {
		return domain.Threshold{}, fmt.Errorf("alert: load threshold: %w", err)
	}
	if stored != nil {
		return *stored, nil
	}
	for _, t := range domain.DefaultThresholds() {
		if t.Metric == metric {
			return t, nil
		}
	}
	return domain.Threshold{}, fmt.Errorf("alert: no threshold for metric %q", metric)
}

// notifyAsync sends the critical notification in a goroutine with its own deadline.
// The alert row is already durable; delivery failure is logged and dropped.
func (d *Dispatcher) notifyAsync(a *domain.Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		subject := fmt.Sprintf("[%s] %s", a.Level, a.Metric)
		body := fmt.Sprintf("metric %s crossed %s at value %v", a.Metric, a.Level, a.Value)
		meta := map[string]string{"alert_id": a.ID}
		for k, v := range a.Details {
			meta[k] = v
		}
		if err := d.sink.Send(ctx, subject, body, meta); err != nil {
			log.Printf("alert: notification for %s failed: %v", a.ID, err)
		}
	}()
}
