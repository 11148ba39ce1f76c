// Package rules holds the deterministic fraud indicators evaluated
// against every claim. The builtin set is a fixed, explicitly
// constructed list of immutable descriptors built once at process start;
// organizations may supplement it with CEL-based custom rules.
package rules

import (
	"strings"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// Predicate evaluates a claim snapshot plus its signal list. Predicates
// are pure and side-effect-free; a predicate that cannot decide (missing
// field, unparsable date) returns false.
type Predicate func(claim *domain.Claim, signals []domain.Signal) bool

// Rule is one immutable scoring rule descriptor.
type Rule struct {
	ID          string
	Name        string
	Description string
	Category    string
	Weight      int
	Predicate   Predicate
}

// lateNotificationDays is the reporting window beyond which a claim is
// considered late-notified.
const lateNotificationDays = 14

// earlyPolicyWindowDays bounds the "claim immediately after policy
// inception" pattern.
const earlyPolicyWindowDays = 7

// vagueLocations are phrases that convey no verifiable accident location.
var vagueLocations = []string{
	"near home", "local road", "somewhere local", "nearby", "close to home",
	"around the corner", "down the road", "not sure", "unknown",
}

// travelIndicators suggest the accident happened far from the
// policyholder's usual area.
var travelIndicators = []string{
	"abroad", "overseas", "on holiday", "holiday", "airport", "ferry",
	"motorway services", "foreign", "miles from home", "far from home",
	"another country", "europe", "remote",
}

// descriptionMismatch maps each declared accident type to phrases that
// contradict it when found in the free-text description.
var descriptionMismatch = map[string][]string{
	"Rear-End":       {"head-on", "head on", "side impact", "t-boned", "reversed into me", "parked"},
	"Theft":          {"collision", "crashed", "hit me", "rear-ended", "head-on"},
	"Fire":           {"collision", "rear-ended", "stolen", "flood"},
	"Parking Damage": {"motorway", "high speed", "head-on", "overtaking"},
	"Side Impact":    {"rear-ended", "head-on", "from behind"},
	"Flood Damage":   {"collision", "fire", "stolen"},
	"Vandalism":      {"collision", "crashed", "driving"},
}

// Builtin constructs the fixed rule set. The returned slice is a fresh
// copy each call; callers must not assume shared state.
func Builtin() []Rule {
	return []Rule{
		{
			ID:          "late_notification",
			Name:        "Late Notification",
			Description: "Claim submitted more than 14 days after the accident",
			Category:    "timing",
			Weight:      20,
			Predicate:   lateNotification,
		},
		{
			ID:          "early_policy_claim",
			Name:        "Early Policy Claim",
			Description: "First claim within days of policy inception",
			Category:    "timing",
			Weight:      30,
			Predicate:   earlyPolicyClaim,
		},
		{
			ID:          "frequent_claimant",
			Name:        "Frequent Claimant",
			Description: "Claimant has more than 2 previous claims",
			Category:    "history",
			Weight:      25,
			Predicate:   frequentClaimant,
		},
		{
			ID:          "vague_location",
			Name:        "Vague Location",
			Description: "Accident location is missing, generic, or too short to verify",
			Category:    "narrative",
			Weight:      15,
			Predicate:   vagueLocation,
		},
		{
			ID:          "unusual_location",
			Name:        "Unusual Location",
			Description: "Location or description indicates travel far from home",
			Category:    "narrative",
			Weight:      20,
			Predicate:   unusualLocation,
		},
		{
			ID:          "description_mismatch",
			Name:        "Description Mismatch",
			Description: "Free-text description contradicts the declared accident type",
			Category:    "narrative",
			Weight:      30,
			Predicate:   descriptionMismatchRule,
		},
		{
			ID:          "invalid_document_timeline",
			Name:        "Invalid Document Timeline",
			Description: "A supporting document is dated before the accident",
			Category:    "documents",
			Weight:      25,
			Predicate:   invalidDocumentTimeline,
		},
		{
			ID:          "repeat_third_party",
			Name:        "Repeat Third Party",
			Description: "The named third party appears across multiple claims",
			Category:    "network",
			Weight:      40,
			Predicate:   repeatThirdParty,
		},
		{
			ID:          "professional_witness",
			Name:        "Professional Witness",
			Description: "The named witness appears across multiple claims",
			Category:    "network",
			Weight:      35,
			Predicate:   professionalWitness,
		},
	}
}

func lateNotification(claim *domain.Claim, _ []domain.Signal) bool {
	accident, ok := ParseClaimDate(claim.AccidentDate)
	if !ok {
		return false
	}
	if claim.CreatedAt.Before(accident) {
		return false
	}
	return claim.CreatedAt.Sub(accident).Hours() > lateNotificationDays*24
}

func earlyPolicyClaim(claim *domain.Claim, _ []domain.Signal) bool {
	if claim.NumPreviousClaims != 0 {
		return false
	}
	accident, ok := ParseClaimDate(claim.AccidentDate)
	if !ok {
		return false
	}

	if start, ok := ParseClaimDate(claim.PolicyStartDate); ok {
		if accident.Before(start) {
			return false
		}
		return accident.Sub(start).Hours() <= earlyPolicyWindowDays*24
	}

	// Policy start unknown: fall back to "claim created within days of
	// the accident" as the inception heuristic.
	if claim.CreatedAt.Before(accident) {
		return false
	}
	return claim.CreatedAt.Sub(accident).Hours() <= earlyPolicyWindowDays*24
}

func frequentClaimant(claim *domain.Claim, _ []domain.Signal) bool {
	return claim.NumPreviousClaims > 2
}

func vagueLocation(claim *domain.Claim, _ []domain.Signal) bool {
	loc := strings.ToLower(strings.TrimSpace(claim.AccidentLocation))
	if loc == "" {
		return true
	}
	for _, phrase := range vagueLocations {
		if loc == phrase {
			return true
		}
	}
	return len(loc) < 10
}

func unusualLocation(claim *domain.Claim, _ []domain.Signal) bool {
	text := strings.ToLower(claim.AccidentLocation + " " + claim.AccidentDesc)
	for _, kw := range travelIndicators {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func descriptionMismatchRule(claim *domain.Claim, _ []domain.Signal) bool {
	forbidden, ok := descriptionMismatch[claim.AccidentType]
	if !ok {
		return false
	}
	desc := strings.ToLower(claim.AccidentDesc)
	for _, phrase := range forbidden {
		if strings.Contains(desc, phrase) {
			return true
		}
	}
	return false
}

func invalidDocumentTimeline(_ *domain.Claim, signals []domain.Signal) bool {
	return hasSignal(signals, domain.SignalTimelineInconsistency)
}

func repeatThirdParty(claim *domain.Claim, signals []domain.Signal) bool {
	return strings.TrimSpace(claim.ThirdPartyName) != "" &&
		hasSignal(signals, domain.SignalRepeatThirdParty)
}

func professionalWitness(claim *domain.Claim, signals []domain.Signal) bool {
	return strings.TrimSpace(claim.WitnessName) != "" &&
		hasSignal(signals, domain.SignalProfessionalWitness)
}

func hasSignal(signals []domain.Signal, signalType string) bool {
	for _, s := range signals {
		if s.SignalType == signalType {
			return true
		}
	}
	return false
}
