package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"sessionguard/internal/policy/repository"
	"sessionguard/internal/risk"
	sessiondomain "sessionguard/internal/session/domain"
)

// Default Rego policy matching the stock thresholds: block at critical (>= 80),
// flag suspicious in the high band (50-79).
const defaultRegoPolicy = `package sessionguard.session

default block = false
default suspicious = false

block if {
	input.risk.score >= 80
}

suspicious if {
	input.risk.score >= 50
	input.risk.score < 80
}
`

// OPAEvaluator evaluates session decisions using OPA Rego. Enabled policies from the
// repository override the default module; repository failures fall back to it.
type OPAEvaluator struct {
	policyRepo repository.Repository
}

// NewOPAEvaluator returns an OPA-based session decision evaluator.
// policyRepo may be nil; then only the default policy is used.
func NewOPAEvaluator(policyRepo repository.Repository) *OPAEvaluator {
	return &OPAEvaluator{policyRepo: policyRepo}
}

// HealthCheck verifies that the in-process Rego engine can compile and evaluate the
// default policy. Does not touch the policy repo or database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	input := buildInput(risk.Assessment{Score: 0, Level: risk.LevelLow}, sessiondomain.TrustNew)
	_, err := evalModules(ctx, []string{defaultRegoPolicy}, input)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	return nil
}

// EvaluateSession compiles the enabled policies (default module when none) and
// evaluates block/suspicious for the assessment. Returns an error only when Rego
// evaluation itself fails; the caller applies FixedDecision then.
func (e *OPAEvaluator) EvaluateSession(ctx context.Context, a risk.Assessment, trust sessiondomain.DeviceTrust) (Decision, error) {
	var modules []string
	if e.policyRepo != nil {
		enabled, err := e.policyRepo.ListEnabled(ctx)
		if err != nil {
			log.Printf("policy: failed to load decision policies: %v", err)
		} else {
			for _, p := range enabled {
				if p.Enabled && p.Rules != "" {
					modules = append(modules, p.Rules)
				}
			}
		}
	}
	if len(modules) == 0 {
		modules = []string{defaultRegoPolicy}
	}

	result, err := evalModules(ctx, modules, buildInput(a, trust))
	if err != nil {
		return Decision{}, err
	}
	return result, nil
}

// DefaultPolicySource returns the stock Rego module, for seeding the policy store.
func DefaultPolicySource() string {
	return defaultRegoPolicy
}

// ValidateRules compiles the Rego source, rejecting policies that would fail at
// evaluation time. Used by the admin surface before storing a policy.
func ValidateRules(rules string) error {
	if rules == "" {
		return fmt.Errorf("rules are empty")
	}
	if _, err := ast.CompileModules(map[string]string{"candidate.rego": rules}); err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	return nil
}

func buildInput(a risk.Assessment, trust sessiondomain.DeviceTrust) map[string]any {
	reasons := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		reasons[i] = string(r)
	}
	return map[string]any{
		"risk": map[string]any{
			"score":   a.Score,
			"level":   string(a.Level),
			"reasons": reasons,
		},
		"device": map[string]any{
			"trust": string(trust),
		},
	}
}

func evalModules(ctx context.Context, modules []string, input map[string]any) (Decision, error) {
	files := make(map[string]string, len(modules))
	for i, m := range modules {
		files[fmt.Sprintf("policy_%d.rego", i)] = m
	}
	compiler, err := ast.CompileModules(files)
	if err != nil {
		return Decision{}, fmt.Errorf("compile policy: %w", err)
	}

	q := rego.New(
		rego.Query("data.sessionguard.session"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("policy document has unexpected shape %T", rs[0].Expressions[0].Value)
	}

	var d Decision
	if v, ok := doc["block"].(bool); ok {
		d.Block = v
	}
	if v, ok := doc["suspicious"].(bool); ok {
		d.Suspicious = v
	}
	return d, nil
}
