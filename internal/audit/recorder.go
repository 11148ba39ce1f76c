// Package audit provides the append-only audit trail recorder. Every
// mutating claim transition is paired with exactly one audit entry (one
// per changed field for field edits).
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// Recorder persists audit entries and mirrors them onto the event bus.
type Recorder struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewRecorder creates a recorder. bus may be nil; entries are then only
// persisted.
func NewRecorder(repo domain.Repository, bus domain.EventBus) *Recorder {
	return &Recorder{repo: repo, bus: bus}
}

// Record assigns the entry an ID and timestamp (when unset), persists
// it, and best-effort publishes it on the audit topic. A bus publish
// failure is logged and never fails the transition; a persistence
// failure is returned to the caller.
func (r *Recorder) Record(ctx context.Context, orgID string, entry *domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.OrgID = orgID

	if err := r.repo.SaveAuditLog(ctx, orgID, entry); err != nil {
		return err
	}

	if r.bus != nil {
		payload, err := json.Marshal(entry)
		if err == nil {
			if err := r.bus.Publish(ctx, orgID, domain.TopicAudit, payload); err != nil {
				slog.Warn("audit event publish failed",
					"claim_id", entry.ClaimID,
					"action", entry.ActionType,
					"error", err,
				)
			}
		}
	}

	return nil
}
