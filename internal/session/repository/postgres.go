package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sessionguard/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, device_fingerprint, device_name, browser, os,
	ip_address, location, created_at, last_activity, expires_at,
	is_active, is_suspicious, risk_score, invalidated_at, invalidation_reason`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// CreateCapped inserts s inside one transaction serialized per user with a
// transaction-scoped advisory lock, then evicts the oldest sessions beyond
// maxActive-1 with reason concurrent_session_limit before inserting.
//
// Row locks alone cannot enforce the cap under READ COMMITTED: a concurrent
// insert is a phantom the re-evaluated SELECT FOR UPDATE never sees, so two
// racing creates would both pass the count. The advisory lock makes the second
// create wait until the first has committed, and its fresh statement snapshot
// then includes the first's insert.
func (r *PostgresRepository) CreateCapped(ctx context.Context, s *domain.Session, maxActive int) ([]string, error) {
	if maxActive < 1 {
		return nil, fmt.Errorf("sessions: maxActive must be at least 1")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Released automatically at commit or rollback.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, s.UserID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM sessions
		 WHERE user_id = $1 AND is_active
		 ORDER BY last_activity ASC`, s.UserID)
	if err != nil {
		return nil, err
	}
	var activeIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		activeIDs = append(activeIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var evicted []string
	if excess := len(activeIDs) - maxActive + 1; excess > 0 {
		evicted = activeIDs[:excess]
		for _, id := range evicted {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions
				 SET is_active = FALSE, invalidated_at = $2, invalidation_reason = $3
				 WHERE id = $1 AND is_active`,
				id, s.CreatedAt, string(domain.ReasonConcurrentLimit)); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		s.ID, s.UserID, s.DeviceFingerprint, s.DeviceName, s.Browser, s.OS,
		s.IPAddress, s.Location, s.CreatedAt, s.LastActivity, s.ExpiresAt,
		s.IsActive, s.IsSuspicious, s.RiskScore,
		timeToNull(s.InvalidatedAt), reasonToNull(s.InvalidationReason)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return evicted, nil
}

// ListActiveByUser returns the user's active sessions ordered by last activity,
// most recent first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND is_active
		 ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByUserSince counts sessions created by the user at or after since.
func (r *PostgresRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&n)
	return n, err
}

// UpdateActivity records a successful validation: activity timestamp, fresh risk
// score and suspicion flag, and the re-derived expiry.
func (r *PostgresRepository) UpdateActivity(ctx context.Context, id string, at time.Time, riskScore int, suspicious bool, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET last_activity = $2, risk_score = $3, is_suspicious = $4, expires_at = $5
		 WHERE id = $1 AND is_active`,
		id, at, riskScore, suspicious, expiresAt)
	return err
}

// Invalidate terminates the session. The is_active guard makes the write idempotent:
// a second call (or a racing cleanup) matches zero rows and returns false.
func (r *PostgresRepository) Invalidate(ctx context.Context, id string, reason domain.InvalidationReason, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET is_active = FALSE, invalidated_at = $2, invalidation_reason = $3
		 WHERE id = $1 AND is_active`,
		id, at, string(reason))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidateAllExcept terminates all of the user's active sessions except keepID.
func (r *PostgresRepository) InvalidateAllExcept(ctx context.Context, userID, keepID string, reason domain.InvalidationReason, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET is_active = FALSE, invalidated_at = $3, invalidation_reason = $4
		 WHERE user_id = $1 AND id <> $2 AND is_active`,
		userID, keepID, at, string(reason))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InvalidateExpired terminates active sessions past their expiry, optionally scoped
// to one user. Safe to run concurrently with validation: both sides gate on is_active.
func (r *PostgresRepository) InvalidateExpired(ctx context.Context, userID *string, now time.Time) (int64, error) {
	query := `UPDATE sessions
		 SET is_active = FALSE, invalidated_at = $1, invalidation_reason = $2
		 WHERE is_active AND expires_at < $1`
	args := []any{now, string(domain.ReasonExpired)}
	if userID != nil && *userID != "" {
		query += ` AND user_id = $3`
		args = append(args, *userID)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var invalidatedAt sql.NullTime
	var reason sql.NullString
	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceFingerprint, &s.DeviceName, &s.Browser, &s.OS,
		&s.IPAddress, &s.Location, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt,
		&s.IsActive, &s.IsSuspicious, &s.RiskScore, &invalidatedAt, &reason)
	if err != nil {
		return nil, err
	}
	if invalidatedAt.Valid {
		s.InvalidatedAt = &invalidatedAt.Time
	}
	if reason.Valid {
		ir := domain.InvalidationReason(reason.String)
		s.InvalidationReason = &ir
	}
	return &s, nil
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func reasonToNull(r *domain.InvalidationReason) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}
