package repository

import (
	"context"
	"database/sql"
	"errors"

	"sessionguard/internal/policy/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a decision-policy repository using the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const policyColumns = `id, name, rules, enabled, created_at, updated_at`

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.DecisionPolicy, error) {
	var p domain.DecisionPolicy
	err := r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM decision_policies WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// List returns all policies ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.DecisionPolicy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM decision_policies ORDER BY name`)
}

// ListEnabled returns enabled policies ordered by name.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*domain.DecisionPolicy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM decision_policies WHERE enabled ORDER BY name`)
}

func (r *PostgresRepository) list(ctx context.Context, query string) ([]*domain.DecisionPolicy, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DecisionPolicy
	for rows.Next() {
		var p domain.DecisionPolicy
		if err := rows.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create persists the policy. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.DecisionPolicy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO decision_policies (`+policyColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.Name, p.Rules, p.Enabled, p.CreatedAt, p.UpdatedAt)
	return err
}

// Update replaces the policy's mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.DecisionPolicy) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE decision_policies
		 SET name = $2, rules = $3, enabled = $4, updated_at = $5
		 WHERE id = $1`,
		p.ID, p.Name, p.Rules, p.Enabled, p.UpdatedAt)
	return err
}
