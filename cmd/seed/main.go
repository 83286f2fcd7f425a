// Command seed installs the default alert thresholds and the stock decision policy.
// Idempotent: thresholds already customized by admins are left alone, and the stock
// policy is inserted only once.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	alertrepo "sessionguard/internal/alert/repository"
	"sessionguard/internal/config"
	"sessionguard/internal/db"
	policydomain "sessionguard/internal/policy/domain"
	"sessionguard/internal/policy/engine"
	policyrepo "sessionguard/internal/policy/repository"

	alertdomain "sessionguard/internal/alert/domain"
)

const defaultPolicyName = "default-session-risk"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL must be set")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alerts := alertrepo.NewPostgresRepository(database)
	if err := seedThresholds(ctx, alerts); err != nil {
		log.Fatalf("seed thresholds: %v", err)
	}

	policies := policyrepo.NewPostgresRepository(database)
	if err := seedDefaultPolicy(ctx, policies); err != nil {
		log.Fatalf("seed policy: %v", err)
	}

	log.Println("seed: done")
}

// seedThresholds inserts the compiled-in thresholds for metrics that have none yet.
func seedThresholds(ctx context.Context, repo alertrepo.Repository) error {
	for _, t := range alertdomain.DefaultThresholds() {
		existing, err := repo.GetThreshold(ctx, t.Metric)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		t.UpdatedAt = time.Now().UTC()
		if err := repo.UpsertThreshold(ctx, &t); err != nil {
			return err
		}
		log.Printf("seed: threshold %s installed", t.Metric)
	}
	return nil
}

// seedDefaultPolicy stores the stock Rego decision policy if absent. It is seeded
// disabled: the evaluator already falls back to the same compiled-in module, and
// enabling the stored copy lets admins edit it without a deploy.
func seedDefaultPolicy(ctx context.Context, repo policyrepo.Repository) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.Name == defaultPolicyName {
			return nil
		}
	}
	now := time.Now().UTC()
	p := &policydomain.DecisionPolicy{
		ID:        uuid.New().String(),
		Name:      defaultPolicyName,
		Rules:     engine.DefaultPolicySource(),
		Enabled:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, p); err != nil {
		return err
	}
	log.Printf("seed: decision policy %s installed", defaultPolicyName)
	return nil
}
