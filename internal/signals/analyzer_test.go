package signals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

func testClaim() *domain.Claim {
	return &domain.Claim{
		ClaimID:        "CLM-2026-SIG00001",
		ClaimantName:   "Test Claimant",
		PolicyID:       "POL-1",
		AccidentDate:   "2026-02-10",
		AccidentType:   "Collision",
		ClaimAmountGBP: 4000,
	}
}

func modelResponse(t *testing.T, payload any) string {
	t.Helper()
	content, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": string(content)}},
		},
	})
	return string(b)
}

func newAnalyzer(endpoint string) *Analyzer {
	return NewAnalyzer(domain.AnalyzerConfig{
		Endpoint: endpoint,
		Model:    "test-model",
		Timeout:  5 * time.Second,
	})
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelResponse(t, map[string]any{
			"signals": []map[string]any{
				{
					"signal_type": "Cost Analysis",
					"description": "Claim amount is close to the stated vehicle value.",
					"confidence":  0.8,
				},
				{
					"signal_type": "",
					"description": "Second observation without a category.",
					"confidence":  1.7,
				},
				{
					"signal_type": "Empty",
					"description": "   ",
					"confidence":  0.5,
				},
			},
			"summary": "Two observations.",
		})))
	}))
	defer srv.Close()

	got := newAnalyzer(srv.URL).Analyze(context.Background(), testClaim())

	if len(got) != 2 {
		t.Fatalf("got %d signals, want 2 (blank description dropped): %+v", len(got), got)
	}
	if got[0].SignalType != "Cost Analysis" || got[0].Confidence != 0.8 {
		t.Errorf("first signal mismatch: %+v", got[0])
	}
	if got[1].SignalType != "General Observation" {
		t.Errorf("missing category must default, got %q", got[1].SignalType)
	}
	if got[1].Confidence != 0.5 {
		t.Errorf("out-of-range confidence must clamp to 0.5, got %v", got[1].Confidence)
	}
	for _, sig := range got {
		if sig.ID == "" || sig.DetectedAt.IsZero() {
			t.Errorf("incomplete signal: %+v", sig)
		}
	}
}

func TestAnalyzeDegradesToEmpty(t *testing.T) {
	t.Run("MalformedJSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": "I think this claim looks odd."}},
				},
			})
			w.Write(b)
		}))
		defer srv.Close()

		if got := newAnalyzer(srv.URL).Analyze(context.Background(), testClaim()); got != nil {
			t.Errorf("malformed model output must yield nil, got %+v", got)
		}
	})

	t.Run("EndpointFailure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		if got := newAnalyzer(srv.URL).Analyze(context.Background(), testClaim()); got != nil {
			t.Errorf("endpoint failure must yield nil, got %+v", got)
		}
	})

	t.Run("Unconfigured", func(t *testing.T) {
		if got := newAnalyzer("").Analyze(context.Background(), testClaim()); got != nil {
			t.Errorf("unconfigured analyzer must yield nil, got %+v", got)
		}
	})

	t.Run("NilAnalyzer", func(t *testing.T) {
		var a *Analyzer
		if got := a.Analyze(context.Background(), testClaim()); got != nil {
			t.Errorf("nil analyzer must yield nil, got %+v", got)
		}
	})
}

func TestStaticAnalyzer(t *testing.T) {
	fixed := []domain.Signal{{SignalType: "Pattern Note", Description: "x", Confidence: 0.6}}
	s := &Static{Signals: fixed}
	got := s.Analyze(context.Background(), testClaim())
	if len(got) != 1 || got[0].SignalType != "Pattern Note" {
		t.Errorf("Static must return its configured signals, got %+v", got)
	}
}
