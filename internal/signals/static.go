package signals

import (
	"context"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// Static is a SignalAnalyzer that returns a fixed list. Used in tests
// and in deployments that run without a model endpoint.
type Static struct {
	Signals []domain.Signal
}

// Analyze returns the configured signals regardless of the claim.
func (s *Static) Analyze(_ context.Context, _ *domain.Claim) []domain.Signal {
	return s.Signals
}
