// Package scoring aggregates triggered rules into a bounded fraud score
// and derives the risk band and recommended action.
package scoring

import (
	"time"

	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/rules"
)

// Engine evaluates the fixed builtin rule set, plus any loaded custom
// rules, against a claim snapshot and its signals.
type Engine struct {
	builtin []rules.Rule
	custom  *rules.CustomEngine
}

// NewEngine builds the engine with the builtin rule set. custom may be
// nil when no organization-defined rules are in play.
func NewEngine(custom *rules.CustomEngine) *Engine {
	return &Engine{
		builtin: rules.Builtin(),
		custom:  custom,
	}
}

// Result is the outcome of one scoring pass.
type Result struct {
	FraudScore        int                      `json:"fraudScore"`
	RiskBand          domain.RiskBand          `json:"riskBand"`
	RecommendedAction domain.RecommendedAction `json:"recommendedAction"`
	Triggers          []domain.RuleTrigger     `json:"triggers"`
	TotalWeight       int                      `json:"totalWeight"`
}

// Score evaluates every rule against (claim, signals). A rule that
// panics or errors internally contributes zero weight; scoring itself
// never fails. Weights are additive and capped at 100, not normalized:
// the score reads as accumulated points of concern, not a percentage.
func (e *Engine) Score(claim *domain.Claim, signals []domain.Signal) *Result {
	now := time.Now().UTC()

	all := e.builtin
	if e.custom != nil {
		all = append(append([]rules.Rule{}, e.builtin...), e.custom.Rules()...)
	}

	result := &Result{Triggers: []domain.RuleTrigger{}}
	for _, rule := range all {
		if !evaluate(rule, claim, signals) {
			continue
		}
		result.Triggers = append(result.Triggers, domain.RuleTrigger{
			ID:          uuid.New().String(),
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Description: rule.Description,
			Weight:      rule.Weight,
			TriggeredAt: now,
		})
		result.TotalWeight += rule.Weight
	}

	result.FraudScore = result.TotalWeight
	if result.FraudScore > 100 {
		result.FraudScore = 100
	}
	result.RiskBand = BandFor(result.FraudScore)
	result.RecommendedAction = ActionFor(result.RiskBand)
	return result
}

// evaluate runs a single predicate, converting any panic into
// "not triggered".
func evaluate(rule rules.Rule, claim *domain.Claim, signals []domain.Signal) (triggered bool) {
	defer func() {
		if recover() != nil {
			triggered = false
		}
	}()
	if rule.Predicate == nil {
		return false
	}
	return rule.Predicate(claim, signals)
}

// BandFor maps a fraud score to its risk band. Boundaries: a score of
// 60 is medium, 61 is high.
func BandFor(score int) domain.RiskBand {
	switch {
	case score > 60:
		return domain.RiskHigh
	case score >= 30:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// ActionFor maps a risk band to the recommended handling. Pure lookup.
func ActionFor(band domain.RiskBand) domain.RecommendedAction {
	switch band {
	case domain.RiskHigh:
		return domain.ActionSIUReferral
	case domain.RiskMedium:
		return domain.ActionManualReview
	default:
		return domain.ActionAutoApprove
	}
}
