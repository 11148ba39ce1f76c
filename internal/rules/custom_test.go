package rules

import (
	"strings"
	"testing"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

func newEngine(t *testing.T) *CustomEngine {
	t.Helper()
	e, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine() error: %v", err)
	}
	return e
}

func ruleConfig(id, orgID, expr string, weight int) *domain.CustomRule {
	return &domain.CustomRule{
		ID:         id,
		OrgID:      orgID,
		Name:       "Test " + id,
		Expression: expr,
		Weight:     weight,
		Enabled:    true,
	}
}

func TestCustomEngineValidate(t *testing.T) {
	e := newEngine(t)

	t.Run("ValidExpression", func(t *testing.T) {
		err := e.Validate(ruleConfig("r1", "org-a", "claim_amount_gbp > vehicle_value_gbp * 1.5", 25))
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("SyntaxError", func(t *testing.T) {
		err := e.Validate(ruleConfig("r2", "org-a", "claim_amount_gbp >>> 1000", 25))
		if err == nil {
			t.Error("expected compile error for invalid syntax")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		err := e.Validate(ruleConfig("r3", "org-a", "no_such_field > 5", 25))
		if err == nil {
			t.Error("expected compile error for unknown variable")
		}
	})

	t.Run("NonBoolOutput", func(t *testing.T) {
		err := e.Validate(ruleConfig("r4", "org-a", "claim_amount_gbp + 1.0", 25))
		if err == nil {
			t.Error("expected error for non-boolean expression")
		}
		if err != nil && !strings.Contains(err.Error(), "must return bool") {
			t.Errorf("error should mention bool requirement, got: %v", err)
		}
	})

	t.Run("NilConfig", func(t *testing.T) {
		if err := e.Validate(nil); err == nil {
			t.Error("expected error for nil config")
		}
	})

	// Validate never loads.
	if e.Count() != 0 {
		t.Errorf("Validate must not load rules, count = %d", e.Count())
	}
}

func TestCustomEngineLoadAndEvaluate(t *testing.T) {
	e := newEngine(t)

	cfg := ruleConfig("ratio", "org-a", "claim_amount_gbp > vehicle_value_gbp * 1.5", 25)
	if err := e.Load(cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if e.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", e.Count())
	}

	loaded := e.Rules()
	if len(loaded) != 1 {
		t.Fatalf("Rules() returned %d rules, want 1", len(loaded))
	}
	rule := loaded[0]
	if rule.Category != "custom" || rule.Weight != 25 {
		t.Errorf("unexpected descriptor: category=%q weight=%d", rule.Category, rule.Weight)
	}

	claim := &domain.Claim{OrgID: "org-a", ClaimAmountGBP: 9000, VehicleValueGBP: 2000}
	if !rule.Predicate(claim, nil) {
		t.Error("expected trigger: claim is 4.5x vehicle value")
	}

	claim = &domain.Claim{OrgID: "org-a", ClaimAmountGBP: 2000, VehicleValueGBP: 9000}
	if rule.Predicate(claim, nil) {
		t.Error("unexpected trigger: claim is below vehicle value")
	}
}

func TestCustomEngineOrgIsolation(t *testing.T) {
	e := newEngine(t)

	if err := e.Load(ruleConfig("a-rule", "org-a", "claim_amount_gbp > 100.0", 20)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	rule := e.Rules()[0]

	own := &domain.Claim{OrgID: "org-a", ClaimAmountGBP: 5000}
	if !rule.Predicate(own, nil) {
		t.Error("rule should fire for its own organization")
	}

	other := &domain.Claim{OrgID: "org-b", ClaimAmountGBP: 5000}
	if rule.Predicate(other, nil) {
		t.Error("rule must not fire for another organization's claim")
	}
}

func TestCustomEngineSignalVariables(t *testing.T) {
	e := newEngine(t)

	if err := e.Load(ruleConfig("sig", "org-a", "signal_count >= 2 && max_signal_confidence > 0.8", 30)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	rule := e.Rules()[0]
	claim := &domain.Claim{OrgID: "org-a"}

	signals := []domain.Signal{
		{SignalType: "a", Confidence: 0.5},
		{SignalType: "b", Confidence: 0.9},
	}
	if !rule.Predicate(claim, signals) {
		t.Error("expected trigger with 2 signals, max confidence 0.9")
	}
	if rule.Predicate(claim, signals[:1]) {
		t.Error("unexpected trigger with a single low-confidence signal")
	}
}

func TestCustomEngineReload(t *testing.T) {
	e := newEngine(t)

	if err := e.Load(ruleConfig("old", "org-a", "claim_amount_gbp > 1.0", 10)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	t.Run("ReplacesAll", func(t *testing.T) {
		next := []*domain.CustomRule{
			ruleConfig("new1", "org-a", "vehicle_year < 2000", 15),
			ruleConfig("new2", "org-a", "num_previous_claims > 5", 20),
		}
		if err := e.Reload(next); err != nil {
			t.Fatalf("Reload() error: %v", err)
		}
		if e.Count() != 2 {
			t.Errorf("Count() = %d, want 2", e.Count())
		}
		for _, cfg := range e.Loaded() {
			if cfg.ID == "old" {
				t.Error("old rule survived a full reload")
			}
		}
	})

	t.Run("SkipsDisabled", func(t *testing.T) {
		disabled := ruleConfig("off", "org-a", "claim_amount_gbp > 1.0", 10)
		disabled.Enabled = false
		if err := e.Reload([]*domain.CustomRule{disabled}); err != nil {
			t.Fatalf("Reload() error: %v", err)
		}
		if e.Count() != 0 {
			t.Errorf("Count() = %d, want 0 after reloading only a disabled rule", e.Count())
		}
	})

	t.Run("CompileFailureRejectsBatch", func(t *testing.T) {
		if err := e.Reload([]*domain.CustomRule{
			ruleConfig("good", "org-a", "claim_amount_gbp > 1.0", 10),
			ruleConfig("bad", "org-a", "not valid cel (", 10),
		}); err == nil {
			t.Error("expected error when a batch member fails to compile")
		}
	})
}

func TestCustomEngineReloadOrg(t *testing.T) {
	e := newEngine(t)

	if err := e.Load(ruleConfig("a1", "org-a", "claim_amount_gbp > 1.0", 10)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := e.Load(ruleConfig("b1", "org-b", "claim_amount_gbp > 2.0", 10)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Replacing org-a's rules must leave org-b's rule untouched.
	if err := e.ReloadOrg("org-a", []*domain.CustomRule{
		ruleConfig("a2", "org-a", "vehicle_year < 2005", 15),
	}); err != nil {
		t.Fatalf("ReloadOrg() error: %v", err)
	}

	ids := map[string]bool{}
	for _, cfg := range e.Loaded() {
		ids[cfg.ID] = true
	}
	if ids["a1"] {
		t.Error("a1 should have been replaced")
	}
	if !ids["a2"] {
		t.Error("a2 should be loaded")
	}
	if !ids["b1"] {
		t.Error("b1 belongs to another organization and must survive")
	}

	// Clearing an organization with an empty config list.
	if err := e.ReloadOrg("org-a", nil); err != nil {
		t.Fatalf("ReloadOrg(empty) error: %v", err)
	}
	if e.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (only org-b's rule)", e.Count())
	}
}

func TestCustomEngineEvalErrorIsNotTriggered(t *testing.T) {
	e := newEngine(t)

	// Integer division by a zero-valued field errors at evaluation time;
	// the predicate must report "not triggered" rather than propagate.
	if err := e.Load(ruleConfig("div", "org-a", "100 / num_previous_claims > 2", 10)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	rule := e.Rules()[0]

	claim := &domain.Claim{OrgID: "org-a", NumPreviousClaims: 0}
	if rule.Predicate(claim, nil) {
		t.Error("evaluation error must count as not triggered")
	}
}
