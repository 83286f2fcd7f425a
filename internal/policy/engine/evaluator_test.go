package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessionguard/internal/policy/domain"
	"sessionguard/internal/risk"
	sessiondomain "sessionguard/internal/session/domain"
)

type memoryPolicyRepo struct {
	policies []*domain.DecisionPolicy
	fail     bool
}

func (r *memoryPolicyRepo) GetByID(_ context.Context, id string) (*domain.DecisionPolicy, error) {
	for _, p := range r.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r *memoryPolicyRepo) List(context.Context) ([]*domain.DecisionPolicy, error) {
	return r.policies, nil
}

func (r *memoryPolicyRepo) ListEnabled(context.Context) ([]*domain.DecisionPolicy, error) {
	if r.fail {
		return nil, errors.New("db down")
	}
	var out []*domain.DecisionPolicy
	for _, p := range r.policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPolicyRepo) Create(_ context.Context, p *domain.DecisionPolicy) error {
	r.policies = append(r.policies, p)
	return nil
}

func (r *memoryPolicyRepo) Update(context.Context, *domain.DecisionPolicy) error { return nil }

func assessment(score int) risk.Assessment {
	return risk.Assessment{Score: score, Level: risk.LevelFor(score)}
}

func TestFixedDecision(t *testing.T) {
	tests := []struct {
		score          int
		wantBlock      bool
		wantSuspicious bool
	}{
		{0, false, false},
		{49, false, false},
		{50, false, true},
		{79, false, true},
		{80, true, false},
		{100, true, false},
	}
	for _, tc := range tests {
		d := FixedDecision(assessment(tc.score))
		if d.Block != tc.wantBlock || d.Suspicious != tc.wantSuspicious {
			t.Errorf("FixedDecision(score=%d) = %+v, want block=%v suspicious=%v",
				tc.score, d, tc.wantBlock, tc.wantSuspicious)
		}
	}
}

func TestOPAEvaluatorDefaultPolicy(t *testing.T) {
	e := NewOPAEvaluator(nil)
	ctx := context.Background()

	tests := []struct {
		score          int
		wantBlock      bool
		wantSuspicious bool
	}{
		{0, false, false},
		{49, false, false},
		{50, false, true},
		{79, false, true},
		{80, true, false},
		{100, true, false},
	}
	for _, tc := range tests {
		d, err := e.EvaluateSession(ctx, assessment(tc.score), sessiondomain.TrustNew)
		if err != nil {
			t.Fatalf("EvaluateSession(score=%d): %v", tc.score, err)
		}
		if d.Block != tc.wantBlock || d.Suspicious != tc.wantSuspicious {
			t.Errorf("score %d: decision = %+v, want block=%v suspicious=%v",
				tc.score, d, tc.wantBlock, tc.wantSuspicious)
		}
	}
}

func TestOPAEvaluatorStoredPolicyOverridesDefault(t *testing.T) {
	// Stricter policy: block suspicious devices regardless of score.
	repo := &memoryPolicyRepo{policies: []*domain.DecisionPolicy{{
		ID:      "p-1",
		Name:    "block-suspicious-devices",
		Enabled: true,
		Rules: `package sessionguard.session

default block = false
default suspicious = false

block if {
	input.device.trust == "suspicious"
}
`,
		CreatedAt: time.Now(),
	}}}
	e := NewOPAEvaluator(repo)

	d, err := e.EvaluateSession(context.Background(), assessment(0), sessiondomain.TrustSuspicious)
	if err != nil {
		t.Fatalf("EvaluateSession: %v", err)
	}
	if !d.Block {
		t.Error("stored policy should block suspicious devices")
	}

	// A critical score does not block under the stored policy: it replaced the default.
	d, err = e.EvaluateSession(context.Background(), assessment(90), sessiondomain.TrustNew)
	if err != nil {
		t.Fatalf("EvaluateSession: %v", err)
	}
	if d.Block {
		t.Error("stored policy replaced the default thresholds")
	}
}

func TestOPAEvaluatorRepoFailureUsesDefault(t *testing.T) {
	e := NewOPAEvaluator(&memoryPolicyRepo{fail: true})
	d, err := e.EvaluateSession(context.Background(), assessment(90), sessiondomain.TrustNew)
	if err != nil {
		t.Fatalf("EvaluateSession: %v", err)
	}
	if !d.Block {
		t.Error("default policy should still block critical when the repo is down")
	}
}

func TestOPAEvaluatorBrokenStoredPolicy(t *testing.T) {
	repo := &memoryPolicyRepo{policies: []*domain.DecisionPolicy{{
		ID: "p-1", Name: "broken", Enabled: true, Rules: "this is not rego",
	}}}
	e := NewOPAEvaluator(repo)

	if _, err := e.EvaluateSession(context.Background(), assessment(0), sessiondomain.TrustNew); err == nil {
		t.Fatal("broken policy should surface an error so the caller falls back to fixed thresholds")
	}
}

func TestHealthCheck(t *testing.T) {
	if err := NewOPAEvaluator(nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestValidateRules(t *testing.T) {
	if err := ValidateRules(DefaultPolicySource()); err != nil {
		t.Errorf("default policy should compile: %v", err)
	}
	if err := ValidateRules(""); err == nil {
		t.Error("empty rules should be rejected")
	}
	if err := ValidateRules("nope nope nope"); err == nil {
		t.Error("invalid rego should be rejected")
	}
}
