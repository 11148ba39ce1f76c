package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// CustomEngine compiles and holds organization-defined CEL rules. The
// builtin set is fixed in code; custom rules let an organization add
// indicators (e.g. claim-to-value ratios) without a redeploy.
type CustomEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
}

type compiledRule struct {
	config  *domain.CustomRule
	program cel.Program
}

// NewCustomEngine creates a CEL environment exposing the claim snapshot
// fields custom rules may reference.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("claim_amount_gbp", cel.DoubleType),
		cel.Variable("vehicle_value_gbp", cel.DoubleType),
		cel.Variable("total_previous_claims_gbp", cel.DoubleType),
		cel.Variable("num_previous_claims", cel.IntType),
		cel.Variable("vehicle_year", cel.IntType),
		cel.Variable("accident_type", cel.StringType),
		cel.Variable("accident_location", cel.StringType),
		cel.Variable("accident_description", cel.StringType),
		cel.Variable("signal_count", cel.IntType),
		cel.Variable("max_signal_confidence", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CustomEngine{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// Validate compiles a rule without loading it.
func (e *CustomEngine) Validate(cfg *domain.CustomRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, err := e.compile(cfg)
	return err
}

// Load compiles and loads a rule into the engine.
func (e *CustomEngine) Load(cfg *domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}
	e.compiled[cfg.ID] = compiled
	return nil
}

// Reload replaces all loaded rules with the given configs. Disabled
// rules are skipped.
func (e *CustomEngine) Reload(configs []*domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}
	e.compiled = next
	return nil
}

// ReloadOrg replaces one organization's loaded rules, leaving other
// organizations' rules untouched. Disabled rules are skipped.
func (e *CustomEngine) ReloadOrg(orgID string, configs []*domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		staged[cfg.ID] = compiled
	}

	for id, c := range e.compiled {
		if c.config.OrgID == orgID {
			delete(e.compiled, id)
		}
	}
	for id, c := range staged {
		e.compiled[id] = c
	}
	return nil
}

// Count returns the number of loaded custom rules.
func (e *CustomEngine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the configurations of the loaded rules.
func (e *CustomEngine) Loaded() []*domain.CustomRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.CustomRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.config)
	}
	return out
}

// Rules returns the loaded custom rules as scoring descriptors. Each
// predicate evaluates the compiled program against the claim snapshot;
// an evaluation error or non-boolean result counts as not triggered.
func (e *CustomEngine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.compiled))
	for _, c := range e.compiled {
		c := c
		out = append(out, Rule{
			ID:          c.config.ID,
			Name:        c.config.Name,
			Description: c.config.Description,
			Category:    "custom",
			Weight:      c.config.Weight,
			Predicate: func(claim *domain.Claim, signals []domain.Signal) bool {
				// A rule only fires for the organization that owns it.
				if c.config.OrgID != "" && c.config.OrgID != claim.OrgID {
					return false
				}
				return evalCustom(c.program, claim, signals)
			},
		})
	}
	return out
}

func (e *CustomEngine) compile(cfg *domain.CustomRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}
	return &compiledRule{config: cfg, program: program}, nil
}

func evalCustom(program cel.Program, claim *domain.Claim, signals []domain.Signal) bool {
	maxConfidence := 0.0
	for _, s := range signals {
		if s.Confidence > maxConfidence {
			maxConfidence = s.Confidence
		}
	}

	activation := map[string]any{
		"claim_amount_gbp":          claim.ClaimAmountGBP,
		"vehicle_value_gbp":         claim.VehicleValueGBP,
		"total_previous_claims_gbp": claim.TotalPreviousGBP,
		"num_previous_claims":       claim.NumPreviousClaims,
		"vehicle_year":              claim.VehicleYear,
		"accident_type":             claim.AccidentType,
		"accident_location":         claim.AccidentLocation,
		"accident_description":      claim.AccidentDesc,
		"signal_count":              len(signals),
		"max_signal_confidence":     maxConfidence,
	}

	out, _, err := program.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}
