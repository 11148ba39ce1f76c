// Package claims implements the claim lifecycle state machine. Every
// mutating transition is a read-modify-write against a single claim
// record, paired with exactly one audit entry, and stamps updated_at.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/audit"
	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/history"
	"github.com/fraudguard-ai/fraudguard/internal/normalize"
	"github.com/fraudguard-ai/fraudguard/internal/rules"
	"github.com/fraudguard-ai/fraudguard/internal/scoring"
)

const claimCacheTTL = 5 * time.Minute

// Service is the claim lifecycle state machine and its side effects:
// scoring, audit emission, caching, and event publication.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	recorder  *audit.Recorder
	engine    *scoring.Engine
	analyzer  domain.SignalAnalyzer
	extractor domain.DocumentExtractor
	history   *history.Service
	caps      domain.Capabilities
}

// NewService wires the lifecycle service. cache, bus, analyzer,
// extractor, and hist may be nil; the corresponding side effects are
// then skipped or degraded.
func NewService(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	recorder *audit.Recorder,
	engine *scoring.Engine,
	analyzer domain.SignalAnalyzer,
	extractor domain.DocumentExtractor,
	hist *history.Service,
	caps domain.Capabilities,
) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		recorder:  recorder,
		engine:    engine,
		analyzer:  analyzer,
		extractor: extractor,
		history:   hist,
		caps:      caps,
	}
}

// CreateInput carries the claim-submission payload.
type CreateInput struct {
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

	// AIExtractedFields holds values a document extraction pre-filled in
	// the submission form; differences against the submitted values are
	// recorded as field edits at creation time.
	AIExtractedFields map[string]any `json:"aiExtractedFields,omitempty"`
}

// Create persists a new claim in needs_review, reconciles AI-extracted
// values, then runs the initial scoring pass.
func (s *Service) Create(ctx context.Context, orgID, actor string, in *CreateInput) (*domain.Claim, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, fmt.Errorf("organization %s: %w", orgID, err)
	}

	now := time.Now().UTC()
	claim := &domain.Claim{
		ID:                uuid.New().String(),
		ClaimID:           domain.NewClaimID(now),
		OrgID:             orgID,
		ClaimantName:      in.ClaimantName,
		PolicyID:          in.PolicyID,
		PolicyStartDate:   in.PolicyStartDate,
		PolicyholderAddr:  in.PolicyholderAddr,
		NumPreviousClaims: in.NumPreviousClaims,
		TotalPreviousGBP:  in.TotalPreviousGBP,
		VehicleMake:       in.VehicleMake,
		VehicleModel:      in.VehicleModel,
		VehicleYear:       in.VehicleYear,
		VehicleReg:        in.VehicleReg,
		VehicleValueGBP:   in.VehicleValueGBP,
		AccidentDate:      in.AccidentDate,
		AccidentType:      in.AccidentType,
		AccidentLocation:  in.AccidentLocation,
		ClaimAmountGBP:    in.ClaimAmountGBP,
		AccidentDesc:      in.AccidentDesc,
		WitnessName:       in.WitnessName,
		WitnessContact:    in.WitnessContact,
		ThirdPartyName:    in.ThirdPartyName,
		ThirdPartyContact: in.ThirdPartyContact,
		ThirdPartyVehicle: in.ThirdPartyVehicle,
		ThirdPartyInsurer: in.ThirdPartyInsurer,
		Documents:         []domain.DocumentInfo{},
		Signals:           []domain.Signal{},
		RuleTriggers:      []domain.RuleTrigger{},
		FieldEdits:        []domain.FieldEdit{},
		Status:            domain.StatusNeedsReview,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         actor,
	}

	pendingEdits := s.reconcileExtractedFields(claim, in, actor, now)

	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return nil, fmt.Errorf("failed to persist claim: %w", err)
	}

	if err := s.recorder.Record(ctx, orgID, &domain.AuditLogEntry{
		ClaimID:    claim.ClaimID,
		UserName:   actor,
		ActionType: domain.ActionClaimCreated,
		NewValue:   claim.ClaimID,
		Notes:      fmt.Sprintf("Claim created by %s", actor),
	}); err != nil {
		return nil, err
	}
	for _, entry := range pendingEdits {
		if err := s.recorder.Record(ctx, orgID, entry); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, orgID, domain.TopicClaimCreated, claim)

	// Initial scoring. Analyzer failures degrade to an empty signal
	// list; only a persistence failure surfaces to the caller.
	if err := s.score(ctx, orgID, claim, false, "system", ""); err != nil {
		slog.Warn("initial scoring failed", "claim_id", claim.ClaimID, "error", err)
	}

	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// Get returns a claim by its external reference, via the cache when
// possible.
func (s *Service) Get(ctx context.Context, orgID, claimID string) (*domain.Claim, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetClaim(ctx, orgID, claimID); err == nil && cached != nil {
			return cached, nil
		}
	}
	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// List returns the organization's claims sorted by fraud score
// descending. When last24h is set, only claims created in the past day.
func (s *Service) List(ctx context.Context, orgID string, limit int, last24h bool) ([]*domain.Claim, error) {
	if last24h {
		return s.repo.ListClaimsSince(ctx, orgID, time.Now().UTC().Add(-24*time.Hour))
	}
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListClaims(ctx, orgID, limit)
}

// AuditLogs returns the claim's audit trail, newest first.
func (s *Service) AuditLogs(ctx context.Context, orgID, claimID string) ([]*domain.AuditLogEntry, error) {
	if _, err := s.repo.GetClaim(ctx, orgID, claimID); err != nil {
		return nil, err
	}
	return s.repo.GetAuditLogs(ctx, orgID, claimID)
}

// Stats returns portfolio statistics for the organization.
func (s *Service) Stats(ctx context.Context, orgID string) (*domain.StatsResponse, error) {
	return s.repo.GetStats(ctx, orgID)
}

// MarkInReview moves a claim from needs_review to in_review, stamping
// the reviewer.
func (s *Service) MarkInReview(ctx context.Context, orgID, claimID, actor string) (*domain.Claim, error) {
	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.StatusNeedsReview {
		return nil, &IllegalTransitionError{
			Action:    "mark in review",
			Attempted: domain.StatusInReview,
			Current:   claim.Status,
		}
	}

	now := time.Now().UTC()
	oldStatus := claim.Status
	claim.Status = domain.StatusInReview
	claim.InReviewBy = actor
	claim.InReviewAt = &now
	claim.UpdatedAt = now

	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return nil, err
	}
	if err := s.recorder.Record(ctx, orgID, &domain.AuditLogEntry{
		ClaimID:      claim.ClaimID,
		UserName:     actor,
		ActionType:   domain.ActionStatusChange,
		FieldChanged: "status",
		OldValue:     string(oldStatus),
		NewValue:     string(claim.Status),
	}); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// Rescore re-runs signal generation and scoring on the current claim
// data. Legal only on non-terminal claims and only when the deployment
// enables rescoring.
func (s *Service) Rescore(ctx context.Context, orgID, claimID, actor, notes string) (*domain.Claim, error) {
	if !s.caps.AllowRescore {
		return nil, fmt.Errorf("rescore: %w", ErrDisabled)
	}
	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.Terminal() {
		return nil, &IllegalTransitionError{
			Action:    "rescore",
			Attempted: domain.StatusRescored,
			Current:   claim.Status,
		}
	}

	if err := s.score(ctx, orgID, claim, true, actor, notes); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// Approve records an approval decision. Single-shot: deciding an
// already-decided claim fails with an illegal-transition error.
func (s *Service) Approve(ctx context.Context, orgID, claimID, actor, reason, notes string) (*domain.Claim, error) {
	return s.decide(ctx, orgID, claimID, actor, reason, notes, domain.StatusApproved)
}

// Reject records a rejection decision. Single-shot like Approve.
func (s *Service) Reject(ctx context.Context, orgID, claimID, actor, reason, notes string) (*domain.Claim, error) {
	return s.decide(ctx, orgID, claimID, actor, reason, notes, domain.StatusRejected)
}

func (s *Service) decide(ctx context.Context, orgID, claimID, actor, reason, notes string, target domain.ClaimStatus) (*domain.Claim, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "a decision reason is required"}
	}
	if !domain.ValidReasonCategory(reason) {
		return nil, &ValidationError{Field: "reason", Reason: fmt.Sprintf("unknown reason category %q", reason)}
	}
	if strings.TrimSpace(notes) == "" {
		return nil, &ValidationError{Field: "notes", Reason: "decision notes are required"}
	}

	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.Terminal() {
		return nil, &IllegalTransitionError{
			Action:    "decide",
			Attempted: target,
			Current:   claim.Status,
		}
	}

	now := time.Now().UTC()
	oldStatus := claim.Status
	claim.Status = target
	claim.DecisionReason = reason
	claim.DecisionNotes = notes
	claim.DecidedBy = actor
	claim.DecidedAt = &now
	claim.UpdatedAt = now

	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return nil, err
	}

	action := domain.ActionApprove
	if target == domain.StatusRejected {
		action = domain.ActionReject
	}
	if err := s.recorder.Record(ctx, orgID, &domain.AuditLogEntry{
		ClaimID:        claim.ClaimID,
		UserName:       actor,
		ActionType:     action,
		FieldChanged:   "status",
		OldValue:       string(oldStatus),
		NewValue:       string(target),
		ReasonCategory: reason,
		Notes:          notes,
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, orgID, domain.TopicClaimDecided, claim)
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// Override manually replaces the fraud score and risk band, bypassing
// rule evaluation. Rejected in read-only deployments and on decided
// claims.
func (s *Service) Override(ctx context.Context, orgID, claimID, actor string, newScore int, reasonCategory, notes string) (*domain.Claim, error) {
	if !s.caps.AllowOverride {
		return nil, fmt.Errorf("override: %w", ErrDisabled)
	}
	if newScore < 0 || newScore > 100 {
		return nil, &ValidationError{Field: "newScore", Reason: "score must be between 0 and 100"}
	}
	if !domain.ValidReasonCategory(reasonCategory) {
		return nil, &ValidationError{Field: "reasonCategory", Reason: fmt.Sprintf("unknown reason category %q", reasonCategory)}
	}
	if strings.TrimSpace(notes) == "" {
		return nil, &ValidationError{Field: "notes", Reason: "override notes are required"}
	}

	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.Terminal() {
		return nil, &IllegalTransitionError{Action: "override score", Current: claim.Status}
	}

	oldScore := 0
	if claim.FraudScore != nil {
		oldScore = *claim.FraudScore
	}
	band := scoring.BandFor(newScore)
	claim.FraudScore = &newScore
	claim.RiskBand = &band
	claim.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return nil, err
	}
	if err := s.recorder.Record(ctx, orgID, &domain.AuditLogEntry{
		ClaimID:        claim.ClaimID,
		UserName:       actor,
		ActionType:     domain.ActionOverride,
		FieldChanged:   "fraud_score",
		OldValue:       strconv.Itoa(oldScore),
		NewValue:       strconv.Itoa(newScore),
		ReasonCategory: reasonCategory,
		Notes:          notes,
	}); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// FieldUpdates carries optional replacement values for profile fields.
// Nil pointers mean "leave unchanged".
type FieldUpdates struct {
	ClaimantName      *string  `json:"claimantName,omitempty"`
	PolicyID          *string  `json:"policyId,omitempty"`
	PolicyStartDate   *string  `json:"policyStartDate,omitempty"`
	PolicyholderAddr  *string  `json:"policyholderAddress,omitempty"`
	NumPreviousClaims *int     `json:"numPreviousClaims,omitempty"`
	TotalPreviousGBP  *float64 `json:"totalPreviousClaimsGbp,omitempty"`
	VehicleMake       *string  `json:"vehicleMake,omitempty"`
	VehicleModel      *string  `json:"vehicleModel,omitempty"`
	VehicleYear       *int     `json:"vehicleYear,omitempty"`
	VehicleReg        *string  `json:"vehicleRegistration,omitempty"`
	VehicleValueGBP   *float64 `json:"vehicleEstimatedValueGbp,omitempty"`
	AccidentDate      *string  `json:"accidentDate,omitempty"`
	AccidentType      *string  `json:"accidentType,omitempty"`
	AccidentLocation  *string  `json:"accidentLocation,omitempty"`
	ClaimAmountGBP    *float64 `json:"claimAmountGbp,omitempty"`
	AccidentDesc      *string  `json:"accidentDescription,omitempty"`
	WitnessName       *string  `json:"witnessName,omitempty"`
	WitnessContact    *string  `json:"witnessContact,omitempty"`
	ThirdPartyName    *string  `json:"thirdPartyName,omitempty"`
	ThirdPartyContact *string  `json:"thirdPartyContact,omitempty"`
	ThirdPartyVehicle *string  `json:"thirdPartyVehicleReg,omitempty"`
	ThirdPartyInsurer *string  `json:"thirdPartyInsurance,omitempty"`
}

// UpdateFields edits profile fields on a non-terminal claim. Values are
// compared after normalization so formatting-only differences ("3" vs
// 3.0) do not manufacture edits; each real change appends a field_edits
// record and one audit entry.
func (s *Service) UpdateFields(ctx context.Context, orgID, claimID, actor string, updates *FieldUpdates) (*domain.Claim, error) {
	if !s.caps.AllowFieldEdits {
		return nil, fmt.Errorf("field edit: %w", ErrDisabled)
	}
	if updates.AccidentType != nil && !domain.ValidAccidentType(*updates.AccidentType) {
		return nil, &ValidationError{Field: "accidentType", Reason: fmt.Sprintf("unknown accident type %q", *updates.AccidentType)}
	}

	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.Terminal() {
		return nil, &IllegalTransitionError{Action: "edit fields", Current: claim.Status}
	}

	now := time.Now().UTC()
	var entries []*domain.AuditLogEntry

	apply := func(field string, oldVal any, newVal any, set func()) {
		if normalize.Equal(oldVal, newVal) {
			return
		}
		set()
		oldStr := stringify(oldVal)
		newStr := stringify(newVal)
		claim.FieldEdits = append(claim.FieldEdits, domain.FieldEdit{
			FieldName:     field,
			OriginalValue: oldStr,
			EditedValue:   newStr,
			EditedBy:      actor,
			EditedAt:      now,
			Reason:        "Manual edit during review",
		})
		entries = append(entries, &domain.AuditLogEntry{
			ClaimID:      claim.ClaimID,
			UserName:     actor,
			ActionType:   domain.ActionFieldEdit,
			FieldChanged: field,
			OldValue:     oldStr,
			NewValue:     newStr,
			Notes:        "Field edited during review",
		})
	}

	if v := updates.ClaimantName; v != nil {
		apply("claimant_name", claim.ClaimantName, *v, func() { claim.ClaimantName = *v })
	}
	if v := updates.PolicyID; v != nil {
		apply("policy_id", claim.PolicyID, *v, func() { claim.PolicyID = *v })
	}
	if v := updates.PolicyStartDate; v != nil {
		apply("policy_start_date", claim.PolicyStartDate, *v, func() { claim.PolicyStartDate = *v })
	}
	if v := updates.PolicyholderAddr; v != nil {
		apply("policyholder_address", claim.PolicyholderAddr, *v, func() { claim.PolicyholderAddr = *v })
	}
	if v := updates.NumPreviousClaims; v != nil {
		apply("num_previous_claims", claim.NumPreviousClaims, *v, func() { claim.NumPreviousClaims = *v })
	}
	if v := updates.TotalPreviousGBP; v != nil {
		apply("total_previous_claims_gbp", claim.TotalPreviousGBP, *v, func() { claim.TotalPreviousGBP = *v })
	}
	if v := updates.VehicleMake; v != nil {
		apply("vehicle_make", claim.VehicleMake, *v, func() { claim.VehicleMake = *v })
	}
	if v := updates.VehicleModel; v != nil {
		apply("vehicle_model", claim.VehicleModel, *v, func() { claim.VehicleModel = *v })
	}
	if v := updates.VehicleYear; v != nil {
		apply("vehicle_year", claim.VehicleYear, *v, func() { claim.VehicleYear = *v })
	}
	if v := updates.VehicleReg; v != nil {
		apply("vehicle_registration", claim.VehicleReg, *v, func() { claim.VehicleReg = *v })
	}
	if v := updates.VehicleValueGBP; v != nil {
		apply("vehicle_estimated_value_gbp", claim.VehicleValueGBP, *v, func() { claim.VehicleValueGBP = *v })
	}
	if v := updates.AccidentDate; v != nil {
		apply("accident_date", claim.AccidentDate, *v, func() { claim.AccidentDate = *v })
	}
	if v := updates.AccidentType; v != nil {
		apply("accident_type", claim.AccidentType, *v, func() { claim.AccidentType = *v })
	}
	if v := updates.AccidentLocation; v != nil {
		apply("accident_location", claim.AccidentLocation, *v, func() { claim.AccidentLocation = *v })
	}
	if v := updates.ClaimAmountGBP; v != nil {
		apply("claim_amount_gbp", claim.ClaimAmountGBP, *v, func() { claim.ClaimAmountGBP = *v })
	}
	if v := updates.AccidentDesc; v != nil {
		apply("accident_description", claim.AccidentDesc, *v, func() { claim.AccidentDesc = *v })
	}
	if v := updates.WitnessName; v != nil {
		apply("witness_name", claim.WitnessName, *v, func() { claim.WitnessName = *v })
	}
	if v := updates.WitnessContact; v != nil {
		apply("witness_contact", claim.WitnessContact, *v, func() { claim.WitnessContact = *v })
	}
	if v := updates.ThirdPartyName; v != nil {
		apply("third_party_name", claim.ThirdPartyName, *v, func() { claim.ThirdPartyName = *v })
	}
	if v := updates.ThirdPartyContact; v != nil {
		apply("third_party_contact", claim.ThirdPartyContact, *v, func() { claim.ThirdPartyContact = *v })
	}
	if v := updates.ThirdPartyVehicle; v != nil {
		apply("third_party_vehicle_reg", claim.ThirdPartyVehicle, *v, func() { claim.ThirdPartyVehicle = *v })
	}
	if v := updates.ThirdPartyInsurer; v != nil {
		apply("third_party_insurance", claim.ThirdPartyInsurer, *v, func() { claim.ThirdPartyInsurer = *v })
	}

	if len(entries) == 0 {
		return claim, nil
	}

	claim.UpdatedAt = now
	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := s.recorder.Record(ctx, orgID, entry); err != nil {
			return nil, err
		}
	}
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// UploadDocument attaches a file reference to the claim (legal in any
// status) and runs best-effort field extraction. Extracted document
// dates preceding the accident date append timeline_inconsistency
// signals; these feed later rescoring, not the already-computed score.
func (s *Service) UploadDocument(ctx context.Context, orgID, claimID, actor string, content []byte, contentType, filename string) (*domain.Claim, error) {
	claim, err := s.repo.GetClaim(ctx, orgID, claimID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := domain.DocumentInfo{
		StoragePath: fmt.Sprintf("claims/%s/%s-%s", claimID, uuid.New().String()[:8], filename),
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		UploadedAt:  now,
		UploadedBy:  actor,
	}
	claim.Documents = append(claim.Documents, doc)

	if s.extractor != nil {
		fields, err := s.extractor.Extract(ctx, content, contentType, filename)
		if err != nil {
			slog.Warn("document extraction unavailable", "claim_id", claimID, "filename", filename, "error", err)
		} else {
			claim.Signals = append(claim.Signals, timelineSignals(claim, fields, now)...)
		}
	}

	claim.UpdatedAt = now
	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return nil, err
	}
	if err := s.recorder.Record(ctx, orgID, &domain.AuditLogEntry{
		ClaimID:    claim.ClaimID,
		UserName:   actor,
		ActionType: domain.ActionDocumentUploaded,
		NewValue:   filename,
		Notes:      fmt.Sprintf("Document uploaded by %s", actor),
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, orgID, domain.TopicDocumentUploaded, claim)
	s.cacheSet(ctx, orgID, claim)
	return claim, nil
}

// ExtractPreview runs field extraction on a document without attaching
// it to any claim. Extraction failure degrades to an error field map.
func (s *Service) ExtractPreview(ctx context.Context, content []byte, contentType, filename string) domain.FieldMap {
	if s.extractor == nil {
		return domain.FieldMap{"error": "extraction not configured"}
	}
	fields, err := s.extractor.Extract(ctx, content, contentType, filename)
	if err != nil {
		return domain.FieldMap{"error": err.Error()}
	}
	return fields
}

// score runs one scoring pass: gather signals, evaluate rules, persist,
// audit. Shared by creation (rescore=false) and rescoring.
func (s *Service) score(ctx context.Context, orgID string, claim *domain.Claim, rescore bool, actor, notes string) error {
	var signals []domain.Signal
	if s.analyzer != nil {
		signals = s.analyzer.Analyze(ctx, claim)
	}
	signals = append(signals, s.history.RecurrenceSignals(ctx, orgID, claim)...)
	// Keep document-derived timeline signals gathered before this pass.
	for _, sig := range claim.Signals {
		if sig.SignalType == domain.SignalTimelineInconsistency {
			signals = append(signals, sig)
		}
	}

	oldScore := 0
	oldBand := domain.RiskLow
	if claim.FraudScore != nil {
		oldScore = *claim.FraudScore
	}
	if claim.RiskBand != nil {
		oldBand = *claim.RiskBand
	}

	result := s.engine.Score(claim, signals)

	now := time.Now().UTC()
	claim.Signals = signals
	claim.FraudScore = &result.FraudScore
	claim.RiskBand = &result.RiskBand
	claim.RuleTriggers = result.Triggers
	claim.ScoredAt = &now
	claim.UpdatedAt = now
	if rescore {
		claim.Status = domain.StatusRescored
	}

	if err := s.repo.SaveClaim(ctx, orgID, claim); err != nil {
		return fmt.Errorf("failed to persist score: %w", err)
	}

	var entry *domain.AuditLogEntry
	if rescore {
		if notes == "" {
			notes = fmt.Sprintf("Re-scored by %s", actor)
		}
		entry = &domain.AuditLogEntry{
			ClaimID:      claim.ClaimID,
			UserName:     actor,
			ActionType:   domain.ActionRescore,
			FieldChanged: "fraud_score",
			OldValue:     fmt.Sprintf("%d (%s)", oldScore, oldBand),
			NewValue:     fmt.Sprintf("%d (%s)", result.FraudScore, result.RiskBand),
			Notes:        notes,
		}
	} else {
		entry = &domain.AuditLogEntry{
			ClaimID:    claim.ClaimID,
			UserName:   actor,
			ActionType: domain.ActionScoreGenerated,
			NewValue:   strconv.Itoa(result.FraudScore),
			Notes: fmt.Sprintf("Scored as %s risk (%d/100), recommended action: %s",
				result.RiskBand, result.FraudScore, result.RecommendedAction),
		}
	}
	if err := s.recorder.Record(ctx, orgID, entry); err != nil {
		return err
	}

	if payload, err := json.Marshal(domain.ScoredEvent{
		ClaimID:    claim.ClaimID,
		OrgID:      orgID,
		FraudScore: result.FraudScore,
		RiskBand:   result.RiskBand,
		Rescore:    rescore,
	}); err == nil && s.bus != nil {
		if err := s.bus.Publish(ctx, orgID, domain.TopicClaimScored, payload); err != nil {
			slog.Warn("scored event publish failed", "claim_id", claim.ClaimID, "error", err)
		}
	}

	return nil
}

// reconcileExtractedFields compares AI-prefilled values against the
// submitted ones and records the user's corrections. Returns the audit
// entries to emit once the claim is persisted.
func (s *Service) reconcileExtractedFields(claim *domain.Claim, in *CreateInput, actor string, now time.Time) []*domain.AuditLogEntry {
	if len(in.AIExtractedFields) == 0 {
		return nil
	}

	submitted := map[string]any{
		"claimant_name":               in.ClaimantName,
		"policy_id":                   in.PolicyID,
		"num_previous_claims":         in.NumPreviousClaims,
		"total_previous_claims_gbp":   in.TotalPreviousGBP,
		"vehicle_make":                in.VehicleMake,
		"vehicle_model":               in.VehicleModel,
		"vehicle_year":                in.VehicleYear,
		"vehicle_registration":        in.VehicleReg,
		"vehicle_estimated_value_gbp": in.VehicleValueGBP,
		"accident_date":               in.AccidentDate,
		"accident_type":               in.AccidentType,
		"accident_location":           in.AccidentLocation,
		"claim_amount_gbp":            in.ClaimAmountGBP,
		"accident_description":        in.AccidentDesc,
	}

	var entries []*domain.AuditLogEntry
	for field, aiValue := range in.AIExtractedFields {
		switch field {
		case "extraction_confidence", "extraction_notes", "error":
			continue
		}
		current, known := submitted[field]
		if !known || aiValue == nil {
			continue
		}
		if normalize.Equal(current, aiValue) {
			continue
		}
		claim.FieldEdits = append(claim.FieldEdits, domain.FieldEdit{
			FieldName:     field,
			OriginalValue: stringify(aiValue),
			EditedValue:   stringify(current),
			EditedBy:      actor,
			EditedAt:      now,
			Reason:        "User edited AI-extracted value",
		})
		entries = append(entries, &domain.AuditLogEntry{
			ClaimID:      claim.ClaimID,
			UserName:     actor,
			ActionType:   domain.ActionFieldEdit,
			FieldChanged: field,
			OldValue:     stringify(aiValue),
			NewValue:     stringify(current),
		})
	}
	return entries
}

// timelineSignals emits a timeline_inconsistency signal for every
// extracted date field that precedes the accident date.
func timelineSignals(claim *domain.Claim, fields domain.FieldMap, now time.Time) []domain.Signal {
	if _, failed := fields["error"]; failed {
		return nil
	}
	accident, ok := rules.ParseClaimDate(claim.AccidentDate)
	if !ok {
		return nil
	}

	var out []domain.Signal
	for key, val := range fields {
		if !strings.HasSuffix(key, "_date") && key != "document_date" {
			continue
		}
		str, isStr := val.(string)
		if !isStr {
			continue
		}
		docDate, ok := rules.ParseClaimDate(str)
		if !ok {
			continue
		}
		if docDate.Before(accident) {
			out = append(out, domain.Signal{
				ID:          uuid.New().String(),
				SignalType:  domain.SignalTimelineInconsistency,
				Description: fmt.Sprintf("Document field %s (%s) predates the accident date %s", key, str, claim.AccidentDate),
				Confidence:  0.9,
				DetectedAt:  now,
			})
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, orgID, topic string, claim *domain.Claim) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"claimId": claim.ClaimID,
		"status":  string(claim.Status),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, orgID, topic, payload); err != nil {
		slog.Warn("event publish failed", "topic", topic, "claim_id", claim.ClaimID, "error", err)
	}
}

func (s *Service) cacheSet(ctx context.Context, orgID string, claim *domain.Claim) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetClaim(ctx, orgID, claim.ClaimID, claim, claimCacheTTL); err != nil {
		slog.Warn("claim cache update failed", "claim_id", claim.ClaimID, "error", err)
	}
}

func validateCreate(in *CreateInput) error {
	if strings.TrimSpace(in.ClaimantName) == "" {
		return &ValidationError{Field: "claimantName", Reason: "claimant name is required"}
	}
	if strings.TrimSpace(in.PolicyID) == "" {
		return &ValidationError{Field: "policyId", Reason: "policy id is required"}
	}
	if !domain.ValidAccidentType(in.AccidentType) {
		return &ValidationError{Field: "accidentType", Reason: fmt.Sprintf("unknown accident type %q", in.AccidentType)}
	}
	if strings.TrimSpace(in.AccidentDate) == "" {
		return &ValidationError{Field: "accidentDate", Reason: "accident date is required"}
	}
	if in.ClaimAmountGBP <= 0 {
		return &ValidationError{Field: "claimAmountGbp", Reason: "claim amount must be positive"}
	}
	return nil
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
