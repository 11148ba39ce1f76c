// Package worker provides async SIU alerting for the Pro tier. It
// listens for scoring results and raises alerts for claims that land in
// the high risk band.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// Worker consumes scored-claim events from the EventBus and publishes
// SIU referral alerts for high-band results.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// OrgIDs is the list of organizations to watch (empty = global
	// subscription, used in dev and tests).
	OrgIDs []string
}

// NewWorker creates a new alert worker. repo may be nil; alerts are
// then raised from the event payload alone.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins watching scored-claim events for the given organizations.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.OrgIDs) == 0 {
		sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicClaimScored, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)

		slog.Info("global alert worker started")
		return nil
	}

	for _, orgID := range cfg.OrgIDs {
		if err := w.startOrgWorker(orgID); err != nil {
			slog.Error("failed to start worker for org",
				"org_id", orgID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("alert workers started",
		"org_count", len(cfg.OrgIDs),
	)

	return nil
}

func (w *Worker) startOrgWorker(orgID string) error {
	sub, err := w.bus.Subscribe(w.ctx, orgID, domain.TopicClaimScored, func(ctx context.Context, msg *domain.Message) error {
		return w.processScoredEvent(ctx, orgID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("org alert worker started",
		"org_id", orgID,
		"topic", domain.TopicClaimScored,
	)

	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processScoredEvent(ctx, msg.OrgID, msg)
}

// Alert is the payload published on the alert topic for SIU intake.
type Alert struct {
	ClaimID        string          `json:"claimId"`
	OrgID          string          `json:"orgId"`
	FraudScore     int             `json:"fraudScore"`
	RiskBand       domain.RiskBand `json:"riskBand"`
	ClaimantName   string          `json:"claimantName,omitempty"`
	ClaimAmountGBP float64         `json:"claimAmountGbp,omitempty"`
	Rescore        bool            `json:"rescore"`
	RaisedAt       int64           `json:"raisedAt"`
}

// processScoredEvent raises an SIU alert when the scored claim landed
// in the high band. Low and medium results are ignored.
func (w *Worker) processScoredEvent(ctx context.Context, orgID string, msg *domain.Message) error {
	start := time.Now()

	var event domain.ScoredEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse scored event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.OrgID != "" {
		orgID = event.OrgID
	}

	if event.RiskBand != domain.RiskHigh {
		return nil
	}

	alert := Alert{
		ClaimID:    event.ClaimID,
		OrgID:      orgID,
		FraudScore: event.FraudScore,
		RiskBand:   event.RiskBand,
		Rescore:    event.Rescore,
		RaisedAt:   time.Now().UnixNano(),
	}

	// Enrich from the store when available; a lookup failure still
	// produces an alert from the event payload.
	if w.repo != nil {
		claim, err := w.repo.GetClaim(ctx, orgID, event.ClaimID)
		if err != nil {
			slog.Warn("failed to load claim for alert",
				"claim_id", event.ClaimID,
				"error", err,
			)
		} else {
			alert.ClaimantName = claim.ClaimantName
			alert.ClaimAmountGBP = claim.ClaimAmountGBP
		}
	}

	payload, _ := json.Marshal(alert)
	if err := w.bus.Publish(ctx, orgID, domain.TopicAlert, payload); err != nil {
		slog.Error("failed to publish alert",
			"claim_id", event.ClaimID,
			"error", err,
		)
		return err
	}

	slog.Info("siu alert raised",
		"claim_id", event.ClaimID,
		"org_id", orgID,
		"fraud_score", event.FraudScore,
		"rescore", event.Rescore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("alert workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
