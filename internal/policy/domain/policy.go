package domain

import "time"

// DecisionPolicy is an admin-managed Rego module that shapes how scored sessions are
// handled (block, flag suspicious). Disabled policies are kept but not evaluated.
type DecisionPolicy struct {
	ID        string
	Name      string
	Rules     string // Rego source
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
