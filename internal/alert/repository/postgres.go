package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sessionguard/internal/alert/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an alert repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetThreshold returns the threshold for metric, or nil if not configured.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetThreshold(ctx context.Context, metric domain.Metric) (*domain.Threshold, error) {
	var t domain.Threshold
	var m, direction string
	err := r.db.QueryRowContext(ctx,
		`SELECT metric, critical, warning, direction, updated_at
		 FROM alert_thresholds WHERE metric = $1`, string(metric)).
		Scan(&m, &t.Critical, &t.Warning, &direction, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Metric = domain.Metric(m)
	t.Direction = domain.Direction(direction)
	return &t, nil
}

// ListThresholds returns all stored thresholds ordered by metric.
func (r *PostgresRepository) ListThresholds(ctx context.Context) ([]*domain.Threshold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT metric, critical, warning, direction, updated_at
		 FROM alert_thresholds ORDER BY metric`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Threshold
	for rows.Next() {
		var t domain.Threshold
		var m, direction string
		if err := rows.Scan(&m, &t.Critical, &t.Warning, &direction, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Metric = domain.Metric(m)
		t.Direction = domain.Direction(direction)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// UpsertThreshold creates or replaces the threshold for its metric.
func (r *PostgresRepository) UpsertThreshold(ctx context.Context, t *domain.Threshold) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_thresholds (metric, critical, warning, direction, updated_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (metric) DO UPDATE
		 SET critical = EXCLUDED.critical, warning = EXCLUDED.warning,
		     direction = EXCLUDED.direction, updated_at = EXCLUDED.updated_at`,
		string(t.Metric), t.Critical, t.Warning, string(t.Direction), t.UpdatedAt)
	return err
}

// RecordAlert persists a fired alert.
func (r *PostgresRepository) RecordAlert(ctx context.Context, a *domain.Alert) error {
	var details any
	if len(a.Details) > 0 {
		raw, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("alert: encode details: %w", err)
		}
		details = raw
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (id, metric, level, value, details, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, string(a.Metric), string(a.Level), a.Value, details, a.CreatedAt)
	return err
}

// ListAlerts returns alerts fired at or after since, newest first.
func (r *PostgresRepository) ListAlerts(ctx context.Context, since time.Time, limit int32) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, metric, level, value, details, created_at
		 FROM alerts WHERE created_at >= $1
		 ORDER BY created_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var metric, level string
		var details []byte
		if err := rows.Scan(&a.ID, &metric, &level, &a.Value, &details, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Metric = domain.Metric(metric)
		a.Level = domain.Level(level)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, fmt.Errorf("alert: decode details: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
