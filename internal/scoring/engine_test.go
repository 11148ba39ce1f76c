package scoring

import (
	"testing"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/rules"
)

func cleanClaim(now time.Time) *domain.Claim {
	return &domain.Claim{
		ClaimID:           "CLM-2026-SCORE001",
		OrgID:             "org-test",
		ClaimantName:      "Priya Nair",
		PolicyID:          "POL-9920",
		NumPreviousClaims: 1,
		VehicleYear:       2021,
		VehicleValueGBP:   12000,
		AccidentDate:      now.AddDate(0, 0, -5).Format("2006-01-02"),
		AccidentType:      "Collision",
		AccidentLocation:  "A40 westbound between Witney and Eynsham",
		ClaimAmountGBP:    3100,
		AccidentDesc:      "A lorry drifted into my lane and caught the wing mirror and front wing.",
		CreatedAt:         now,
	}
}

func TestScoreCleanClaim(t *testing.T) {
	engine := NewEngine(nil)
	now := time.Now().UTC()

	result := engine.Score(cleanClaim(now), nil)

	if result.FraudScore != 0 {
		t.Errorf("FraudScore = %d, want 0 (triggers: %+v)", result.FraudScore, result.Triggers)
	}
	if result.RiskBand != domain.RiskLow {
		t.Errorf("RiskBand = %s, want low", result.RiskBand)
	}
	if result.RecommendedAction != domain.ActionAutoApprove {
		t.Errorf("RecommendedAction = %s, want auto_approve", result.RecommendedAction)
	}
	if result.Triggers == nil {
		t.Error("Triggers must be non-nil even when empty")
	}
}

func TestScoreAdditiveWeights(t *testing.T) {
	engine := NewEngine(nil)
	now := time.Now().UTC()

	// late_notification (20) + frequent_claimant (25) + vague_location (15)
	claim := cleanClaim(now)
	claim.AccidentDate = now.AddDate(0, 0, -30).Format("2006-01-02")
	claim.NumPreviousClaims = 4
	claim.AccidentLocation = "near home"

	result := engine.Score(claim, nil)

	if result.FraudScore != 60 {
		t.Errorf("FraudScore = %d, want 60", result.FraudScore)
	}
	if len(result.Triggers) != 3 {
		t.Errorf("got %d triggers, want 3", len(result.Triggers))
	}
	if result.RiskBand != domain.RiskMedium {
		t.Errorf("RiskBand = %s, want medium (60 sits on the boundary)", result.RiskBand)
	}

	for _, trig := range result.Triggers {
		if trig.ID == "" || trig.RuleID == "" || trig.TriggeredAt.IsZero() {
			t.Errorf("incomplete trigger record: %+v", trig)
		}
	}
}

func TestScoreCapAt100(t *testing.T) {
	engine := NewEngine(nil)
	now := time.Now().UTC()

	// late (20) + frequent (25) + vague (15) + mismatch (30) +
	// repeat_third_party (40) = 130 raw, capped at 100.
	claim := cleanClaim(now)
	claim.AccidentDate = now.AddDate(0, 0, -30).Format("2006-01-02")
	claim.NumPreviousClaims = 5
	claim.AccidentLocation = "near home"
	claim.AccidentType = "Rear-End"
	claim.AccidentDesc = "We hit head-on at the crossroads."
	claim.ThirdPartyName = "Derek Moss"

	signals := []domain.Signal{
		{SignalType: domain.SignalRepeatThirdParty, Confidence: 0.8},
	}

	result := engine.Score(claim, signals)

	if result.TotalWeight != 130 {
		t.Errorf("TotalWeight = %d, want 130 (uncapped)", result.TotalWeight)
	}
	if result.FraudScore != 100 {
		t.Errorf("FraudScore = %d, want 100 (capped)", result.FraudScore)
	}
	if result.RiskBand != domain.RiskHigh {
		t.Errorf("RiskBand = %s, want high", result.RiskBand)
	}
	if result.RecommendedAction != domain.ActionSIUReferral {
		t.Errorf("RecommendedAction = %s, want siu_referral", result.RecommendedAction)
	}
}

func TestScoreWithCustomRules(t *testing.T) {
	custom, err := rules.NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine() error: %v", err)
	}
	if err := custom.Load(&domain.CustomRule{
		ID:         "excess-ratio",
		OrgID:      "org-test",
		Name:       "Excess Ratio",
		Expression: "claim_amount_gbp > vehicle_value_gbp * 1.5",
		Weight:     25,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	engine := NewEngine(custom)
	now := time.Now().UTC()

	claim := cleanClaim(now)
	claim.ClaimAmountGBP = 25000
	claim.VehicleValueGBP = 12000

	result := engine.Score(claim, nil)

	if result.FraudScore != 25 {
		t.Errorf("FraudScore = %d, want 25 from the custom rule alone", result.FraudScore)
	}
	if len(result.Triggers) != 1 || result.Triggers[0].RuleID != "excess-ratio" {
		t.Errorf("unexpected triggers: %+v", result.Triggers)
	}
}

func TestScoreIdempotent(t *testing.T) {
	engine := NewEngine(nil)
	now := time.Now().UTC()

	claim := cleanClaim(now)
	claim.NumPreviousClaims = 4
	claim.AccidentLocation = "near home"

	first := engine.Score(claim, nil)
	second := engine.Score(claim, nil)

	if first.FraudScore != second.FraudScore || first.RiskBand != second.RiskBand {
		t.Errorf("identical input scored differently: %d/%s vs %d/%s",
			first.FraudScore, first.RiskBand, second.FraudScore, second.RiskBand)
	}
	if len(first.Triggers) != len(second.Triggers) {
		t.Fatalf("trigger counts differ: %d vs %d", len(first.Triggers), len(second.Triggers))
	}
	for i := range first.Triggers {
		if first.Triggers[i].RuleID != second.Triggers[i].RuleID ||
			first.Triggers[i].Weight != second.Triggers[i].Weight {
			t.Errorf("trigger %d differs: %+v vs %+v", i, first.Triggers[i], second.Triggers[i])
		}
	}
}

func TestScoreMonotonicUnderAddedSignal(t *testing.T) {
	engine := NewEngine(nil)
	now := time.Now().UTC()

	claim := cleanClaim(now)
	claim.WitnessName = "Alan Price"

	before := engine.Score(claim, nil)
	after := engine.Score(claim, []domain.Signal{
		{SignalType: domain.SignalProfessionalWitness, Confidence: 0.7},
	})

	if after.FraudScore < before.FraudScore {
		t.Errorf("adding a signal lowered the score: %d -> %d", before.FraudScore, after.FraudScore)
	}
	if after.FraudScore != before.FraudScore+35 {
		t.Errorf("FraudScore = %d, want %d", after.FraudScore, before.FraudScore+35)
	}
}

func TestScoreSurvivesPanickingPredicate(t *testing.T) {
	engine := NewEngine(nil)
	engine.builtin = append(engine.builtin, rules.Rule{
		ID:     "explosive",
		Name:   "Explosive",
		Weight: 50,
		Predicate: func(*domain.Claim, []domain.Signal) bool {
			panic("boom")
		},
	})

	now := time.Now().UTC()
	result := engine.Score(cleanClaim(now), nil)

	if result.FraudScore != 0 {
		t.Errorf("FraudScore = %d, want 0 (panicking rule contributes nothing)", result.FraudScore)
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score int
		want  domain.RiskBand
	}{
		{0, domain.RiskLow},
		{29, domain.RiskLow},
		{30, domain.RiskMedium},
		{60, domain.RiskMedium},
		{61, domain.RiskHigh},
		{100, domain.RiskHigh},
	}
	for _, tt := range tests {
		if got := BandFor(tt.score); got != tt.want {
			t.Errorf("BandFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		band domain.RiskBand
		want domain.RecommendedAction
	}{
		{domain.RiskLow, domain.ActionAutoApprove},
		{domain.RiskMedium, domain.ActionManualReview},
		{domain.RiskHigh, domain.ActionSIUReferral},
	}
	for _, tt := range tests {
		if got := ActionFor(tt.band); got != tt.want {
			t.Errorf("ActionFor(%s) = %s, want %s", tt.band, got, tt.want)
		}
	}
}
