package repository

import (
	"context"
	"time"

	"sessionguard/internal/alert/domain"
)

// Repository defines persistence for alert thresholds and fired alerts.
type Repository interface {
	// GetThreshold returns the stored threshold for metric, or nil if none is configured.
	GetThreshold(ctx context.Context, metric domain.Metric) (*domain.Threshold, error)
	// ListThresholds returns all stored thresholds.
	ListThresholds(ctx context.Context) ([]*domain.Threshold, error)
	// UpsertThreshold creates or replaces the threshold for its metric.
	UpsertThreshold(ctx context.Context, t *domain.Threshold) error
	// RecordAlert persists a fired alert.
	RecordAlert(ctx context.Context, a *domain.Alert) error
	// ListAlerts returns fired alerts at or after since, newest first.
	ListAlerts(ctx context.Context, since time.Time, limit int32) ([]*domain.Alert, error)
}
