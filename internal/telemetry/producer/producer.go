// Package producer emits metric samples toward the alert worker (e.g. via Kafka).
package producer

import (
	"context"
	"time"
)

// MetricSample is one observation of a monitored business/health metric.
// The worker feeds samples into the alert dispatcher.
type MetricSample struct {
	Metric     string            `json:"metric"`
	Value      float64           `json:"value"`
	Details    map[string]string `json:"details,omitempty"`
	ObservedAt time.Time         `json:"observedAt"`
}

// Producer emits metric samples. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single sample. Implementations may block briefly; call from a
	// goroutine if needed.
	Emit(ctx context.Context, sample *MetricSample) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
