package claims

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/audit"
	"github.com/fraudguard-ai/fraudguard/internal/bus"
	"github.com/fraudguard-ai/fraudguard/internal/cache"
	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/history"
	"github.com/fraudguard-ai/fraudguard/internal/repository"
	"github.com/fraudguard-ai/fraudguard/internal/scoring"
)

const testOrgID = "org-test"

// stubExtractor returns canned extraction output.
type stubExtractor struct {
	fields domain.FieldMap
	err    error
}

func (s *stubExtractor) Extract(context.Context, []byte, string, string) (domain.FieldMap, error) {
	return s.fields, s.err
}

func newTestService(t *testing.T, caps domain.Capabilities, extractor domain.DocumentExtractor) (*Service, domain.Repository) {
	t.Helper()

	f, err := os.CreateTemp("", "fraudguard-claims-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	eventBus := bus.NewChannelBus(100)

	t.Cleanup(func() {
		repo.Close()
		eventBus.Close()
		os.Remove(f.Name())
	})

	recorder := audit.NewRecorder(repo, eventBus)
	engine := scoring.NewEngine(nil)
	hist := history.NewService(repo)
	svc := NewService(repo, cache.NewLRUCache(100), eventBus, recorder, engine, nil, extractor, hist, caps)

	now := time.Now().UTC()
	if err := repo.SaveOrganization(context.Background(), &domain.Organization{
		OrgID:     testOrgID,
		OrgName:   "Test Insurance Ltd",
		Tier:      domain.TierCommunity,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("failed to provision org: %v", err)
	}

	return svc, repo
}

func allCaps() domain.Capabilities {
	return domain.Capabilities{
		AllowRescore:    true,
		AllowOverride:   true,
		AllowFieldEdits: true,
	}
}

func cleanInput() *CreateInput {
	now := time.Now().UTC()
	return &CreateInput{
		ClaimantName:      "Gemma Whitfield",
		PolicyID:          "POL-3301",
		NumPreviousClaims: 1,
		VehicleMake:       "Skoda",
		VehicleModel:      "Octavia",
		VehicleYear:       2020,
		VehicleReg:        "KX20 VTR",
		VehicleValueGBP:   11000,
		AccidentDate:      now.AddDate(0, 0, -4).Format("2006-01-02"),
		AccidentType:      "Collision",
		AccidentLocation:  "B4044 between Botley and Cumnor, Oxfordshire",
		ClaimAmountGBP:    2800,
		AccidentDesc:      "A car pulled out of a farm entrance and clipped the front bumper.",
	}
}

func TestCreateScoresOnArrival(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if claim.Status != domain.StatusNeedsReview {
		t.Errorf("Status = %s, want needs_review", claim.Status)
	}
	if claim.FraudScore == nil || *claim.FraudScore != 0 {
		t.Errorf("FraudScore = %v, want 0", claim.FraudScore)
	}
	if claim.RiskBand == nil || *claim.RiskBand != domain.RiskLow {
		t.Errorf("RiskBand = %v, want low", claim.RiskBand)
	}
	if claim.ScoredAt == nil {
		t.Error("ScoredAt must be stamped on creation")
	}
	if claim.CreatedBy != "adjuster@test" {
		t.Errorf("CreatedBy = %q", claim.CreatedBy)
	}

	// Creation emits CLAIM_CREATED plus SCORE_GENERATED.
	logs, err := svc.AuditLogs(ctx, testOrgID, claim.ClaimID)
	if err != nil {
		t.Fatalf("AuditLogs() error: %v", err)
	}
	seen := map[domain.ActionType]bool{}
	for _, entry := range logs {
		seen[entry.ActionType] = true
	}
	if !seen[domain.ActionClaimCreated] || !seen[domain.ActionScoreGenerated] {
		t.Errorf("audit trail missing creation or scoring entries: %v", seen)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"MissingClaimantName", func(in *CreateInput) { in.ClaimantName = " " }},
		{"MissingPolicyID", func(in *CreateInput) { in.PolicyID = "" }},
		{"UnknownAccidentType", func(in *CreateInput) { in.AccidentType = "Asteroid Strike" }},
		{"MissingAccidentDate", func(in *CreateInput) { in.AccidentDate = "" }},
		{"ZeroAmount", func(in *CreateInput) { in.ClaimAmountGBP = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := cleanInput()
			tt.mutate(in)
			_, err := svc.Create(ctx, testOrgID, "adjuster@test", in)
			if !IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	t.Run("UnknownOrg", func(t *testing.T) {
		_, err := svc.Create(ctx, "org-nope", "adjuster@test", cleanInput())
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown org, got %v", err)
		}
	})
}

func TestCreateReconcilesExtractedFields(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	in := cleanInput()
	in.AIExtractedFields = map[string]any{
		"claimant_name":         "Gemma Whitfeld", // user corrected the OCR misread
		"claim_amount_gbp":      2800.0,           // formatting-equal, no edit
		"extraction_confidence": 0.91,             // metadata, ignored
	}

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", in)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if len(claim.FieldEdits) != 1 {
		t.Fatalf("got %d field edits, want 1: %+v", len(claim.FieldEdits), claim.FieldEdits)
	}
	edit := claim.FieldEdits[0]
	if edit.FieldName != "claimant_name" {
		t.Errorf("FieldName = %q", edit.FieldName)
	}
	if edit.OriginalValue != "Gemma Whitfeld" || edit.EditedValue != "Gemma Whitfield" {
		t.Errorf("edit records wrong direction: %+v", edit)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	t.Run("MarkInReview", func(t *testing.T) {
		updated, err := svc.MarkInReview(ctx, testOrgID, claim.ClaimID, "reviewer@test")
		if err != nil {
			t.Fatalf("MarkInReview() error: %v", err)
		}
		if updated.Status != domain.StatusInReview {
			t.Errorf("Status = %s, want in_review", updated.Status)
		}
		if updated.InReviewBy != "reviewer@test" || updated.InReviewAt == nil {
			t.Error("reviewer attribution missing")
		}
	})

	t.Run("MarkInReviewTwice", func(t *testing.T) {
		_, err := svc.MarkInReview(ctx, testOrgID, claim.ClaimID, "reviewer@test")
		if !IsIllegalTransition(err) {
			t.Errorf("expected illegal transition, got %v", err)
		}
	})

	t.Run("ApproveWithoutReason", func(t *testing.T) {
		_, err := svc.Approve(ctx, testOrgID, claim.ClaimID, "reviewer@test", "", "looks fine")
		if !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("ApproveWithUnknownReason", func(t *testing.T) {
		_, err := svc.Approve(ctx, testOrgID, claim.ClaimID, "reviewer@test", "because", "notes")
		if !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("Approve", func(t *testing.T) {
		updated, err := svc.Approve(ctx, testOrgID, claim.ClaimID, "reviewer@test",
			"manual_review_complete", "Consistent account, genuine damage photos.")
		if err != nil {
			t.Fatalf("Approve() error: %v", err)
		}
		if updated.Status != domain.StatusApproved {
			t.Errorf("Status = %s, want approved", updated.Status)
		}
		if updated.DecidedBy != "reviewer@test" || updated.DecidedAt == nil {
			t.Error("decision attribution missing")
		}
	})

	t.Run("TerminalIsFinal", func(t *testing.T) {
		if _, err := svc.Reject(ctx, testOrgID, claim.ClaimID, "reviewer@test", "other", "n"); !IsIllegalTransition(err) {
			t.Errorf("reject after approve: expected illegal transition, got %v", err)
		}
		if _, err := svc.Rescore(ctx, testOrgID, claim.ClaimID, "reviewer@test", ""); !IsIllegalTransition(err) {
			t.Errorf("rescore after approve: expected illegal transition, got %v", err)
		}
		if _, err := svc.MarkInReview(ctx, testOrgID, claim.ClaimID, "reviewer@test"); !IsIllegalTransition(err) {
			t.Errorf("review after approve: expected illegal transition, got %v", err)
		}
	})
}

func TestRescore(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Worsen the profile, then rescore: frequent_claimant (25) +
	// vague_location (15) now fire.
	many := 4
	vague := "near home"
	if _, err := svc.UpdateFields(ctx, testOrgID, claim.ClaimID, "adjuster@test", &FieldUpdates{
		NumPreviousClaims: &many,
		AccidentLocation:  &vague,
	}); err != nil {
		t.Fatalf("UpdateFields() error: %v", err)
	}

	rescored, err := svc.Rescore(ctx, testOrgID, claim.ClaimID, "adjuster@test", "post-edit rescore")
	if err != nil {
		t.Fatalf("Rescore() error: %v", err)
	}
	if rescored.Status != domain.StatusRescored {
		t.Errorf("Status = %s, want rescored", rescored.Status)
	}
	if rescored.FraudScore == nil || *rescored.FraudScore != 40 {
		t.Errorf("FraudScore = %v, want 40", rescored.FraudScore)
	}
	if rescored.RiskBand == nil || *rescored.RiskBand != domain.RiskMedium {
		t.Errorf("RiskBand = %v, want medium", rescored.RiskBand)
	}

	logs, _ := svc.AuditLogs(ctx, testOrgID, claim.ClaimID)
	found := false
	for _, entry := range logs {
		if entry.ActionType == domain.ActionRescore && entry.Notes == "post-edit rescore" {
			found = true
		}
	}
	if !found {
		t.Error("rescore audit entry missing")
	}
}

func TestOverride(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	t.Run("ReplacesScoreAndBand", func(t *testing.T) {
		updated, err := svc.Override(ctx, testOrgID, claim.ClaimID, "siu@test", 85,
			"disagree_with_signal", "Matches a known ring pattern.")
		if err != nil {
			t.Fatalf("Override() error: %v", err)
		}
		if *updated.FraudScore != 85 || *updated.RiskBand != domain.RiskHigh {
			t.Errorf("score/band = %d/%s, want 85/high", *updated.FraudScore, *updated.RiskBand)
		}
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		for _, score := range []int{-1, 101} {
			_, err := svc.Override(ctx, testOrgID, claim.ClaimID, "siu@test", score, "other", "n")
			if !IsValidation(err) {
				t.Errorf("Override(%d): expected validation error, got %v", score, err)
			}
		}
	})

	t.Run("RequiresNotes", func(t *testing.T) {
		_, err := svc.Override(ctx, testOrgID, claim.ClaimID, "siu@test", 50, "other", "  ")
		if !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestCapabilityGates(t *testing.T) {
	svc, _ := newTestService(t, domain.Capabilities{}, nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	name := "Someone Else"
	if _, err := svc.Rescore(ctx, testOrgID, claim.ClaimID, "a", ""); !errors.Is(err, ErrDisabled) {
		t.Errorf("Rescore: expected ErrDisabled, got %v", err)
	}
	if _, err := svc.Override(ctx, testOrgID, claim.ClaimID, "a", 50, "other", "n"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Override: expected ErrDisabled, got %v", err)
	}
	if _, err := svc.UpdateFields(ctx, testOrgID, claim.ClaimID, "a", &FieldUpdates{ClaimantName: &name}); !errors.Is(err, ErrDisabled) {
		t.Errorf("UpdateFields: expected ErrDisabled, got %v", err)
	}

	// Decisions stay available in read-only deployments.
	if _, err := svc.Approve(ctx, testOrgID, claim.ClaimID, "a", "low_risk_confirmed", "fine"); err != nil {
		t.Errorf("Approve should not be capability-gated: %v", err)
	}
}

func TestUpdateFieldsNormalizedComparison(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Identical values after normalization must not manufacture edits.
	sameName := " Gemma Whitfield "
	updated, err := svc.UpdateFields(ctx, testOrgID, claim.ClaimID, "adjuster@test", &FieldUpdates{
		ClaimantName: &sameName,
	})
	if err != nil {
		t.Fatalf("UpdateFields() error: %v", err)
	}
	if len(updated.FieldEdits) != 0 {
		t.Errorf("formatting-only change produced %d edits", len(updated.FieldEdits))
	}

	newLoc := "Recovered at Thornhill Park and Ride, Oxford"
	updated, err = svc.UpdateFields(ctx, testOrgID, claim.ClaimID, "adjuster@test", &FieldUpdates{
		AccidentLocation: &newLoc,
	})
	if err != nil {
		t.Fatalf("UpdateFields() error: %v", err)
	}
	if len(updated.FieldEdits) != 1 {
		t.Fatalf("got %d edits, want 1", len(updated.FieldEdits))
	}
	if updated.FieldEdits[0].FieldName != "accident_location" {
		t.Errorf("FieldName = %q", updated.FieldEdits[0].FieldName)
	}
	if updated.AccidentLocation != newLoc {
		t.Errorf("AccidentLocation = %q, want %q", updated.AccidentLocation, newLoc)
	}
}

func TestUploadDocumentTimelineSignals(t *testing.T) {
	now := time.Now().UTC()
	extractor := &stubExtractor{fields: domain.FieldMap{
		"document_date": now.AddDate(0, 0, -30).Format("2006-01-02"),
		"invoice_date":  now.AddDate(0, 0, -2).Format("2006-01-02"),
		"garage_name":   "Halfway Motors",
	}}
	svc, _ := newTestService(t, allCaps(), extractor)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	scoreBefore := *claim.FraudScore

	updated, err := svc.UploadDocument(ctx, testOrgID, claim.ClaimID, "adjuster@test",
		[]byte("%PDF-1.4 fake"), "application/pdf", "repair-estimate.pdf")
	if err != nil {
		t.Fatalf("UploadDocument() error: %v", err)
	}

	if len(updated.Documents) != 1 || updated.Documents[0].Filename != "repair-estimate.pdf" {
		t.Fatalf("document not attached: %+v", updated.Documents)
	}

	// document_date is 30 days old, well before the 4-day-old accident;
	// invoice_date is after it. Exactly one timeline signal.
	count := 0
	for _, sig := range updated.Signals {
		if sig.SignalType == domain.SignalTimelineInconsistency {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d timeline signals, want 1: %+v", count, updated.Signals)
	}

	// The upload itself never re-scores.
	if *updated.FraudScore != scoreBefore {
		t.Errorf("upload changed the score from %d to %d", scoreBefore, *updated.FraudScore)
	}

	// A subsequent rescore picks the signal up: invalid_document_timeline (25).
	rescored, err := svc.Rescore(ctx, testOrgID, claim.ClaimID, "adjuster@test", "")
	if err != nil {
		t.Fatalf("Rescore() error: %v", err)
	}
	if *rescored.FraudScore != 25 {
		t.Errorf("FraudScore after rescore = %d, want 25", *rescored.FraudScore)
	}
}

func TestUploadDocumentExtractorFailure(t *testing.T) {
	extractor := &stubExtractor{err: errors.New("model unavailable")}
	svc, _ := newTestService(t, allCaps(), extractor)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	updated, err := svc.UploadDocument(ctx, testOrgID, claim.ClaimID, "adjuster@test",
		[]byte("bytes"), "image/jpeg", "photo.jpg")
	if err != nil {
		t.Fatalf("UploadDocument() must not fail on extractor error: %v", err)
	}
	if len(updated.Documents) != 1 {
		t.Error("document must attach despite extraction failure")
	}
	if len(updated.Signals) != 0 {
		t.Errorf("failed extraction must emit no signals, got %+v", updated.Signals)
	}
}

func TestExtractPreview(t *testing.T) {
	ctx := context.Background()

	t.Run("NotConfigured", func(t *testing.T) {
		svc, _ := newTestService(t, allCaps(), nil)
		fields := svc.ExtractPreview(ctx, []byte("x"), "application/pdf", "doc.pdf")
		if fields["error"] != "extraction not configured" {
			t.Errorf("fields = %v", fields)
		}
	})

	t.Run("PassesThrough", func(t *testing.T) {
		svc, _ := newTestService(t, allCaps(), &stubExtractor{fields: domain.FieldMap{"claimant_name": "A"}})
		fields := svc.ExtractPreview(ctx, []byte("x"), "application/pdf", "doc.pdf")
		if fields["claimant_name"] != "A" {
			t.Errorf("fields = %v", fields)
		}
	})
}

func TestRecurrenceAcrossClaims(t *testing.T) {
	svc, _ := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	first := cleanInput()
	first.ThirdPartyName = "Derek Moss"
	c1, err := svc.Create(ctx, testOrgID, "adjuster@test", first)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if *c1.FraudScore != 0 {
		t.Errorf("first claim score = %d, want 0", *c1.FraudScore)
	}

	second := cleanInput()
	second.ClaimantName = "Unrelated Claimant"
	second.PolicyID = "POL-8812"
	second.ThirdPartyName = "Derek Moss"
	c2, err := svc.Create(ctx, testOrgID, "adjuster@test", second)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if *c2.FraudScore != 40 {
		t.Errorf("second claim score = %d, want 40 (repeat_third_party)", *c2.FraudScore)
	}
	found := false
	for _, sig := range c2.Signals {
		if sig.SignalType == domain.SignalRepeatThirdParty {
			found = true
		}
	}
	if !found {
		t.Errorf("repeat_third_party signal missing: %+v", c2.Signals)
	}
}

func TestGetUsesCache(t *testing.T) {
	svc, repo := newTestService(t, allCaps(), nil)
	ctx := context.Background()

	claim, err := svc.Create(ctx, testOrgID, "adjuster@test", cleanInput())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := svc.Get(ctx, testOrgID, claim.ClaimID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ClaimID != claim.ClaimID {
		t.Errorf("ClaimID = %q", got.ClaimID)
	}

	if _, err := repo.GetClaim(ctx, testOrgID, "CLM-2026-MISSING1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, testOrgID, "CLM-2026-MISSING1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get(unknown): expected ErrNotFound, got %v", err)
	}
}
