package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/repository"
)

const testOrgID = "org-history"

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	f, err := os.CreateTemp("", "fraudguard-history-*.db")
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

	t.Cleanup(func() {
		repo.Close()
		os.Remove(f.Name())
	})

	return NewService(repo), repo
}

func saveClaim(t *testing.T, repo domain.Repository, orgID, thirdParty, witness string) *domain.Claim {
	t.Helper()
	now := time.Now().UTC()
	claim := &domain.Claim{
		ID:             uuid.New().String(),
		ClaimID:        domain.NewClaimID(now),
		OrgID:          orgID,
		ClaimantName:   "History Claimant",
		PolicyID:       "POL-H-" + uuid.New().String()[:8],
		AccidentDate:   now.AddDate(0, 0, -3).Format("2006-01-02"),
		AccidentType:   "Collision",
		ClaimAmountGBP: 1500,
		ThirdPartyName: thirdParty,
		WitnessName:    witness,
		Status:         domain.StatusNeedsReview,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.SaveClaim(context.Background(), orgID, claim); err != nil {
		t.Fatalf("SaveClaim() error: %v", err)
	}
	return claim
}

func TestRecurrenceSignals(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	t.Run("NoHistory", func(t *testing.T) {
		claim := saveClaim(t, repo, testOrgID, "First Timer", "")
		if got := svc.RecurrenceSignals(ctx, testOrgID, claim); len(got) != 0 {
			t.Errorf("expected no signals, got %+v", got)
		}
	})

	t.Run("RepeatThirdParty", func(t *testing.T) {
		saveClaim(t, repo, testOrgID, "Derek Moss", "")
		claim := saveClaim(t, repo, testOrgID, "Derek Moss", "")

		got := svc.RecurrenceSignals(ctx, testOrgID, claim)
		if len(got) != 1 {
			t.Fatalf("got %d signals, want 1: %+v", len(got), got)
		}
		sig := got[0]
		if sig.SignalType != domain.SignalRepeatThirdParty {
			t.Errorf("SignalType = %s", sig.SignalType)
		}
		if !closeTo(sig.Confidence, 0.7) {
			t.Errorf("Confidence = %v, want 0.7 for one other claim", sig.Confidence)
		}
		if sig.ID == "" || sig.DetectedAt.IsZero() {
			t.Errorf("incomplete signal: %+v", sig)
		}
	})

	t.Run("ProfessionalWitness", func(t *testing.T) {
		saveClaim(t, repo, testOrgID, "", "Alan Price")
		saveClaim(t, repo, testOrgID, "", "Alan Price")
		claim := saveClaim(t, repo, testOrgID, "", "Alan Price")

		got := svc.RecurrenceSignals(ctx, testOrgID, claim)
		if len(got) != 1 {
			t.Fatalf("got %d signals, want 1: %+v", len(got), got)
		}
		if got[0].SignalType != domain.SignalProfessionalWitness {
			t.Errorf("SignalType = %s", got[0].SignalType)
		}
		if !closeTo(got[0].Confidence, 0.8) {
			t.Errorf("Confidence = %v, want 0.8 for two other claims", got[0].Confidence)
		}
	})

	t.Run("BothRecur", func(t *testing.T) {
		saveClaim(t, repo, testOrgID, "Pair TP", "Pair WN")
		claim := saveClaim(t, repo, testOrgID, "Pair TP", "Pair WN")

		got := svc.RecurrenceSignals(ctx, testOrgID, claim)
		if len(got) != 2 {
			t.Errorf("got %d signals, want 2: %+v", len(got), got)
		}
	})

	t.Run("OwnClaimExcluded", func(t *testing.T) {
		claim := saveClaim(t, repo, testOrgID, "Solo Party", "")
		if got := svc.RecurrenceSignals(ctx, testOrgID, claim); len(got) != 0 {
			t.Errorf("a claim must not match itself: %+v", got)
		}
	})

	t.Run("OrgScoped", func(t *testing.T) {
		saveClaim(t, repo, "org-other", "Cross Org", "")
		claim := saveClaim(t, repo, testOrgID, "Cross Org", "")
		if got := svc.RecurrenceSignals(ctx, testOrgID, claim); len(got) != 0 {
			t.Errorf("recurrence must not cross organizations: %+v", got)
		}
	})

	t.Run("BlankNamesSkipped", func(t *testing.T) {
		claim := saveClaim(t, repo, testOrgID, "  ", "")
		if got := svc.RecurrenceSignals(ctx, testOrgID, claim); len(got) != 0 {
			t.Errorf("blank names must not be looked up: %+v", got)
		}
	})
}

func TestRecurrenceConfidenceCap(t *testing.T) {
	if got := recurrenceConfidence(1); !closeTo(got, 0.7) {
		t.Errorf("recurrenceConfidence(1) = %v, want 0.7", got)
	}
	if got := recurrenceConfidence(10); got != 0.95 {
		t.Errorf("recurrenceConfidence(10) = %v, want capped 0.95", got)
	}
}

func closeTo(got, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}

func TestNilServiceDegrades(t *testing.T) {
	var svc *Service
	if got := svc.RecurrenceSignals(context.Background(), testOrgID, &domain.Claim{}); got != nil {
		t.Errorf("nil service must return nil, got %+v", got)
	}
}
