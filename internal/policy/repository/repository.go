package repository

import (
	"context"

	"sessionguard/internal/policy/domain"
)

// Repository defines persistence for decision policies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.DecisionPolicy, error)
	List(ctx context.Context) ([]*domain.DecisionPolicy, error)
	ListEnabled(ctx context.Context) ([]*domain.DecisionPolicy, error)
	Create(ctx context.Context, p *domain.DecisionPolicy) error
	Update(ctx context.Context, p *domain.DecisionPolicy) error
}
