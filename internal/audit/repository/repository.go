package repository

import (
	"context"
	"time"

	"sessionguard/internal/audit/domain"
)

// Repository defines persistence for the append-only audit trail.
type Repository interface {
	// Append persists the event. Events are never updated or deleted afterwards.
	Append(ctx context.Context, e *domain.Event) error
	// GetByID returns the event for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	// List returns events matching the filter, newest first.
	List(ctx context.Context, f domain.Filter) ([]*domain.Event, error)
	// CountByTypeSince counts events of the given type recorded at or after since.
	// Feeds the health metrics the worker samples (e.g. login failure rate).
	CountByTypeSince(ctx context.Context, t domain.EventType, since time.Time) (int, error)
}
