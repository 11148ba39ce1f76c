// Package history provides cross-claim recurrence checks. A third party
// or witness appearing on multiple unrelated claims is a strong fraud
// indicator; the checks here turn those lookups into deterministic
// signals the rule set can key off.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// Service answers recurrence questions against the claim store.
type Service struct {
	repo domain.Repository
}

// NewService creates a new history service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// RecurrenceSignals inspects the store for other claims naming the same
// third party or witness and emits the corresponding signals. Best
// effort: a store failure yields no signal, never an error. Recurrence
// is a scoring input, not a scoring precondition.
func (s *Service) RecurrenceSignals(ctx context.Context, orgID string, claim *domain.Claim) []domain.Signal {
	if s == nil || s.repo == nil {
		return nil
	}

	now := time.Now().UTC()
	var signals []domain.Signal

	if name := strings.TrimSpace(claim.ThirdPartyName); name != "" {
		count, err := s.repo.CountClaimsByThirdParty(ctx, orgID, name, claim.ClaimID)
		if err != nil {
			slog.Warn("third-party recurrence check failed", "claim_id", claim.ClaimID, "error", err)
		} else if count > 0 {
			signals = append(signals, domain.Signal{
				ID:          uuid.New().String(),
				SignalType:  domain.SignalRepeatThirdParty,
				Description: fmt.Sprintf("Third party %q is named on %d other claim(s)", name, count),
				Confidence:  recurrenceConfidence(count),
				DetectedAt:  now,
			})
		}
	}

	if name := strings.TrimSpace(claim.WitnessName); name != "" {
		count, err := s.repo.CountClaimsByWitness(ctx, orgID, name, claim.ClaimID)
		if err != nil {
			slog.Warn("witness recurrence check failed", "claim_id", claim.ClaimID, "error", err)
		} else if count > 0 {
			signals = append(signals, domain.Signal{
				ID:          uuid.New().String(),
				SignalType:  domain.SignalProfessionalWitness,
				Description: fmt.Sprintf("Witness %q is named on %d other claim(s)", name, count),
				Confidence:  recurrenceConfidence(count),
				DetectedAt:  now,
			})
		}
	}

	return signals
}

// recurrenceConfidence scales with how often the name recurs, capped
// below certainty: a match is always subject to review.
func recurrenceConfidence(count int) float64 {
	c := 0.6 + 0.1*float64(count)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
