// Package extract pulls structured claim fields out of uploaded
// documents (PDF or image) using a multimodal completions endpoint.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/llm"
)

const extractionPrompt = `Extract all the following fields from this UK motor insurance claim document accurately. Return only JSON with these exact keys:
- claimant_name: Full name of the claimant/policyholder (string or null)
- policy_id: Policy number/ID (string or null)
- num_previous_claims: Number of previous claims (integer, default 0)
- total_previous_claims_gbp: Total amount of previous claims in GBP (float, default 0.0)
- vehicle_make: Vehicle manufacturer e.g. BMW, Ford, Toyota (string or null)
- vehicle_model: Vehicle model e.g. 3 Series, Focus, Corolla (string or null)
- vehicle_year: Year of manufacture (integer)
- vehicle_registration: UK vehicle registration number (string or null)
- vehicle_estimated_value_gbp: Estimated vehicle value in GBP (float)
- accident_date: Date of accident in YYYY-MM-DD format (string or null)
- accident_type: One of: Collision, Rear-End, Side Impact, Rollover, Hit and Run, Parking Damage, Theft, Vandalism, Fire, Flood Damage (string or null)
- accident_location: Location where accident occurred (string or null)
- claim_amount_gbp: Claimed amount in GBP (float)
- accident_description: Description of the accident/incident (string or null)
- extraction_confidence: Your confidence in the extraction from 0.0 to 1.0 (float)
- extraction_notes: Any notes about what could or couldn't be extracted (string)

Return ONLY valid JSON, no other text or markdown.`

const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second
)

// Extractor extracts claim fields from document bytes.
type Extractor struct {
	client *llm.Client
	model  string
}

// NewExtractor builds an extractor from config. With no endpoint
// configured, Extract fails fast.
func NewExtractor(cfg domain.AnalyzerConfig) *Extractor {
	return &Extractor{
		client: llm.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout),
		model:  cfg.Model,
	}
}

// Extract sends the document as a data URL and parses the model's field
// map. Transient endpoint failures are retried with backoff; a
// malformed model response is an error, not a partial result.
func (e *Extractor) Extract(ctx context.Context, content []byte, contentType, filename string) (domain.FieldMap, error) {
	if !e.client.Enabled() {
		return nil, fmt.Errorf("extraction endpoint not configured")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType(contentType, filename), base64.StdEncoding.EncodeToString(content))
	req := &llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{
				Role: "user",
				Content: []map[string]any{
					{"type": "text", "text": extractionPrompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				},
			},
		},
		Temperature: 0.0,
		MaxTokens:   1500,
	}

	var (
		raw     string
		lastErr error
	)
	delay := retryDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		raw, lastErr = e.client.Complete(ctx, req)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("document extraction failed: %w", lastErr)
	}

	var extracted map[string]any
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		return nil, fmt.Errorf("failed to parse extraction results: %w", err)
	}

	return domain.FieldMap{
		"claimant_name":               extracted["claimant_name"],
		"policy_id":                   extracted["policy_id"],
		"num_previous_claims":         asInt(extracted["num_previous_claims"], 0),
		"total_previous_claims_gbp":   asFloat(extracted["total_previous_claims_gbp"], 0),
		"vehicle_make":                extracted["vehicle_make"],
		"vehicle_model":               extracted["vehicle_model"],
		"vehicle_year":                asInt(extracted["vehicle_year"], time.Now().Year()),
		"vehicle_registration":        extracted["vehicle_registration"],
		"vehicle_estimated_value_gbp": asFloat(extracted["vehicle_estimated_value_gbp"], 0),
		"accident_date":               extracted["accident_date"],
		"accident_type":               extracted["accident_type"],
		"accident_location":           extracted["accident_location"],
		"claim_amount_gbp":            asFloat(extracted["claim_amount_gbp"], 0),
		"accident_description":        extracted["accident_description"],
		"extraction_confidence":       asFloat(extracted["extraction_confidence"], 0.5),
		"extraction_notes":            asString(extracted["extraction_notes"]),
	}, nil
}

// mimeType normalizes the document media type; unrecognized types are
// sent as PDF, matching what the endpoint handles most reliably.
func mimeType(contentType, filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case contentType == "application/pdf" || strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasPrefix(contentType, "image/jpeg") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasPrefix(contentType, "image/png") || strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasPrefix(contentType, "image/"):
		return contentType
	default:
		return "application/pdf"
	}
}

func asInt(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func asFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
