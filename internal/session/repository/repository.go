package repository

import (
	"context"
	"time"

	"sessionguard/internal/session/domain"
)

// Repository defines persistence for sessions. All invalidating writes are
// conditional on is_active so racing invalidations are no-ops, never double-applied.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// CreateCapped inserts s after evicting the user's oldest active sessions
	// (by last_activity) so at most maxActive rows stay active, the new one included.
	// The count-evict-insert sequence is serialized per user; returns evicted IDs.
	CreateCapped(ctx context.Context, s *domain.Session, maxActive int) (evicted []string, err error)
	// ListActiveByUser returns the user's active sessions, newest activity first.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// CountByUserSince counts sessions the user created at or after since.
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error)
	// UpdateActivity records the outcome of a successful validation.
	UpdateActivity(ctx context.Context, id string, at time.Time, riskScore int, suspicious bool, expiresAt time.Time) error
	// Invalidate terminates the session if still active. Returns false when the
	// session was already inactive or absent (idempotent no-op).
	Invalidate(ctx context.Context, id string, reason domain.InvalidationReason, at time.Time) (bool, error)
	// InvalidateAllExcept terminates all of the user's active sessions except keepID.
	// Returns the number of sessions affected.
	InvalidateAllExcept(ctx context.Context, userID, keepID string, reason domain.InvalidationReason, at time.Time) (int64, error)
	// InvalidateExpired terminates active sessions whose expires_at precedes now,
	// optionally scoped to one user (nil for all). Returns the number affected.
	InvalidateExpired(ctx context.Context, userID *string, now time.Time) (int64, error)
}
