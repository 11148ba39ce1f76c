package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	StatusNeedsReview ClaimStatus = "needs_review"
	StatusInReview    ClaimStatus = "in_review"
	StatusRescored    ClaimStatus = "rescored"
	StatusApproved    ClaimStatus = "approved"
	StatusRejected    ClaimStatus = "rejected"
)

// Terminal reports whether the status is a final decision.
func (s ClaimStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// RiskBand is the coarse risk bucket derived from the fraud score.
type RiskBand string

const (
	RiskLow    RiskBand = "low"
	RiskMedium RiskBand = "medium"
	RiskHigh   RiskBand = "high"
)

// RecommendedAction is the handling suggestion derived from the risk band.
type RecommendedAction string

const (
	ActionAutoApprove  RecommendedAction = "auto_approve"
	ActionManualReview RecommendedAction = "manual_review"
	ActionSIUReferral  RecommendedAction = "siu_referral"
)

// AccidentTypes is the fixed enumeration of accepted accident types.
var AccidentTypes = []string{
	"Collision", "Rear-End", "Side Impact", "Rollover", "Hit and Run",
	"Parking Damage", "Theft", "Vandalism", "Fire", "Flood Damage",
}

// ValidAccidentType reports whether t is one of the accepted accident types.
func ValidAccidentType(t string) bool {
	for _, v := range AccidentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ReasonCategories is the fixed enumeration of decision/override reasons.
var ReasonCategories = []string{
	"false_positive", "additional_evidence", "disagree_with_signal",
	"manual_review_complete", "low_risk_confirmed", "evidence_supports",
	"high_risk_siu_referral", "insufficient_evidence", "other",
}

// ValidReasonCategory reports whether r is one of the accepted reasons.
func ValidReasonCategory(r string) bool {
	for _, v := range ReasonCategories {
		if v == r {
			return true
		}
	}
	return false
}

// Signal is one AI-sourced observation about a claim. The engine treats
// signals as opaque facts: predicates may read them but never mutate them.
type Signal struct {
	ID          string    `json:"id"`
	SignalType  string    `json:"signalType"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// Stable signal types consumed by the deterministic rule set.
const (
	SignalTimelineInconsistency = "timeline_inconsistency"
	SignalRepeatThirdParty      = "repeat_third_party"
	SignalProfessionalWitness   = "professional_witness"
)

// RuleTrigger records one rule firing during one scoring pass. Immutable.
type RuleTrigger struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"ruleId"`
	RuleName    string    `json:"ruleName"`
	Description string    `json:"description"`
	Weight      int       `json:"weight"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

// FieldEdit records a change to a profile field, with attribution.
type FieldEdit struct {
	FieldName     string    `json:"fieldName"`
	OriginalValue string    `json:"originalValue,omitempty"`
	EditedValue   string    `json:"editedValue"`
	EditedBy      string    `json:"editedBy"`
	EditedAt      time.Time `json:"editedAt"`
	Reason        string    `json:"reason,omitempty"`
}

// DocumentInfo references an uploaded file attached to a claim.
type DocumentInfo struct {
	StoragePath string    `json:"storagePath"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedAt  time.Time `json:"uploadedAt"`
	UploadedBy  string    `json:"uploadedBy"`
}

// Claim is the central entity: claimant/policy/vehicle/accident profile,
// derived scoring fields, and lifecycle metadata.
type Claim struct {
	ID      string `json:"id"`
	ClaimID string `json:"claimId"`
	OrgID   string `json:"orgId"`

	ClaimantName      string  `json:"claimantName"`
	PolicyID          string  `json:"policyId"`
	PolicyStartDate   string  `json:"policyStartDate,omitempty"`
	PolicyholderAddr  string  `json:"policyholderAddress,omitempty"`
	NumPreviousClaims int     `json:"numPreviousClaims"`
	TotalPreviousGBP  float64 `json:"totalPreviousClaimsGbp"`
	VehicleMake       string  `json:"vehicleMake"`
	VehicleModel      string  `json:"vehicleModel"`
	VehicleYear       int     `json:"vehicleYear"`
	VehicleReg        string  `json:"vehicleRegistration"`
	VehicleValueGBP   float64 `json:"vehicleEstimatedValueGbp"`
	AccidentDate      string  `json:"accidentDate"`
	AccidentType      string  `json:"accidentType"`
	AccidentLocation  string  `json:"accidentLocation"`
	ClaimAmountGBP    float64 `json:"claimAmountGbp"`
	AccidentDesc      string  `json:"accidentDescription"`
	WitnessName       string  `json:"witnessName,omitempty"`
	WitnessContact    string  `json:"witnessContact,omitempty"`
	ThirdPartyName    string  `json:"thirdPartyName,omitempty"`
	ThirdPartyContact string  `json:"thirdPartyContact,omitempty"`
	ThirdPartyVehicle string  `json:"thirdPartyVehicleReg,omitempty"`
	ThirdPartyInsurer string  `json:"thirdPartyInsurance,omitempty"`

	Documents    []DocumentInfo `json:"documents"`
	Signals      []Signal       `json:"signals"`
	RuleTriggers []RuleTrigger  `json:"ruleTriggers"`
	FieldEdits   []FieldEdit    `json:"fieldEdits"`

	FraudScore *int        `json:"fraudScore,omitempty"`
	RiskBand   *RiskBand   `json:"riskBand,omitempty"`
	Status     ClaimStatus `json:"status"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ScoredAt   *time.Time `json:"scoredAt,omitempty"`
	CreatedBy  string     `json:"createdBy"`
	InReviewBy string     `json:"inReviewBy,omitempty"`
	InReviewAt *time.Time `json:"inReviewAt,omitempty"`

	DecisionReason string     `json:"decisionReason,omitempty"`
	DecisionNotes  string     `json:"decisionNotes,omitempty"`
	DecidedBy      string     `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
}

// NewClaimID generates the external, human-readable claim reference:
// CLM-<year>-<8 uppercase hex>.
func NewClaimID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("CLM-%d-%s", now.Year(), suffix)
}
