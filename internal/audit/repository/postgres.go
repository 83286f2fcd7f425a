package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sessionguard/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append persists the event. The audit table has no UPDATE or DELETE path.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Event) error {
	meta, err := metadataToJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("audit: encode metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_events
		 (id, user_id, email, ip_address, user_agent, event_type, description, metadata, risk_level, success, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, nullString(e.UserID), nullString(e.Email), e.IPAddress, nullString(e.UserAgent),
		string(e.EventType), e.Description, meta, string(e.RiskLevel), e.Success, e.CreatedAt)
	return err
}

// GetByID returns the event for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, ip_address, user_agent, event_type, description, metadata, risk_level, success, created_at
		 FROM audit_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// List returns events matching the filter, newest first. Limit defaults to 100.
func (r *PostgresRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Event, error) {
	query := `SELECT id, user_id, email, ip_address, user_agent, event_type, description, metadata, risk_level, success, created_at
		 FROM audit_events WHERE 1=1`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if f.UserID != "" {
		add("user_id =", f.UserID)
	}
	if f.EventType != "" {
		add("event_type =", string(f.EventType))
	}
	if f.RiskLevel != "" {
		add("risk_level =", string(f.RiskLevel))
	}
	if !f.Since.IsZero() {
		add("created_at >=", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <", f.Until)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByTypeSince counts events of type t recorded at or after since.
func (r *PostgresRepository) CountByTypeSince(ctx context.Context, t domain.EventType, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE event_type = $1 AND created_at >= $2`,
		string(t), since).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	var userID, email, userAgent sql.NullString
	var meta []byte
	var eventType, riskLevel string
	err := row.Scan(&e.ID, &userID, &email, &e.IPAddress, &userAgent,
		&eventType, &e.Description, &meta, &riskLevel, &e.Success, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.UserID = userID.String
	e.Email = email.String
	e.UserAgent = userAgent.String
	e.EventType = domain.EventType(eventType)
	e.RiskLevel = domain.RiskLevel(riskLevel)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("audit: decode metadata: %w", err)
		}
	}
	return &e, nil
}

func metadataToJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
