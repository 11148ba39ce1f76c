// Package signals generates AI observations about a claim via a chat
// completions endpoint. The analyzer is a best-effort collaborator: any
// failure, from transport to malformed model output, degrades to an
// empty signal list so scoring proceeds on deterministic rules alone.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/llm"
)

// The prompt keeps the model's language neutral. Signal descriptions
// end up in the audit trail and may be disclosed to claimants, so
// accusatory wording is banned at the prompt level.
const analysisPrompt = `You are a neutral claims analysis assistant for UK motor insurance.
Analyze the following claim details and identify any factual observations that may be relevant for review.

IMPORTANT GUIDELINES:
- Use ONLY neutral, non-judgmental language
- Do NOT use words like: suspicious, fraudulent, deceptive, dishonest, false, fake, or scam
- Focus on factual observations and data patterns only
- Each observation should describe what you notice, not what you suspect

Claim Details:
- Claimant: %s
- Policy ID: %s
- Previous Claims: %d (Total: £%.2f)
- Vehicle: %d %s %s (%s)
- Vehicle Value: £%.2f
- Accident Date: %s
- Accident Type: %s
- Location: %s
- Claim Amount: £%.2f
- Description: %s

Provide 0-5 observations in this exact JSON format:
{
  "signals": [
    {
      "signal_type": "Category (e.g., Cost Analysis, Timeline Observation, Documentation Gap, Pattern Note)",
      "description": "Neutral factual observation",
      "confidence": 0.0
    }
  ],
  "summary": "Brief neutral summary of observations"
}

Return ONLY valid JSON, no other text.`

// Analyzer produces claim signals from a completions endpoint.
type Analyzer struct {
	client *llm.Client
	model  string
}

// NewAnalyzer builds an analyzer from config. An unconfigured endpoint
// yields an analyzer whose Analyze always returns nil, so callers need
// no enabled/disabled branching.
func NewAnalyzer(cfg domain.AnalyzerConfig) *Analyzer {
	return &Analyzer{
		client: llm.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout),
		model:  cfg.Model,
	}
}

type signalPayload struct {
	Signals []struct {
		SignalType  string  `json:"signal_type"`
		Description string  `json:"description"`
		Confidence  float64 `json:"confidence"`
	} `json:"signals"`
	Summary string `json:"summary"`
}

// Analyze returns the model's observations about the claim. Never
// returns an error: failures are logged and produce an empty list.
func (a *Analyzer) Analyze(ctx context.Context, claim *domain.Claim) []domain.Signal {
	if a == nil || !a.client.Enabled() {
		return nil
	}

	prompt := fmt.Sprintf(analysisPrompt,
		orUnknown(claim.ClaimantName), orUnknown(claim.PolicyID),
		claim.NumPreviousClaims, claim.TotalPreviousGBP,
		claim.VehicleYear, orUnknown(claim.VehicleMake), orUnknown(claim.VehicleModel),
		orUnknown(claim.VehicleReg), claim.VehicleValueGBP,
		orUnknown(claim.AccidentDate), orUnknown(claim.AccidentType),
		orUnknown(claim.AccidentLocation), claim.ClaimAmountGBP,
		orUnknown(claim.AccidentDesc),
	)

	content, err := a.client.Complete(ctx, &llm.Request{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a neutral claims analysis assistant. Respond only with valid JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		slog.Warn("signal analysis failed", "claim_id", claim.ClaimID, "error", err)
		return nil
	}

	var payload signalPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		slog.Warn("signal analysis returned malformed JSON", "claim_id", claim.ClaimID, "error", err)
		return nil
	}

	now := time.Now().UTC()
	out := make([]domain.Signal, 0, len(payload.Signals))
	for _, sig := range payload.Signals {
		desc := strings.TrimSpace(sig.Description)
		if desc == "" {
			continue
		}
		sigType := sig.SignalType
		if sigType == "" {
			sigType = "General Observation"
		}
		conf := sig.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		out = append(out, domain.Signal{
			ID:          uuid.New().String(),
			SignalType:  sigType,
			Description: desc,
			Confidence:  conf,
			DetectedAt:  now,
		})
	}
	return out
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
