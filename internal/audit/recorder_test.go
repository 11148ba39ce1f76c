package audit

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/bus"
	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/repository"
)

const testOrgID = "org-audit"

func newTestRecorder(t *testing.T) (*Recorder, domain.Repository, *bus.ChannelBus) {
	t.Helper()

	f, err := os.CreateTemp("", "fraudguard-audit-*.db")
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

	eventBus := bus.NewChannelBus(10)

	t.Cleanup(func() {
		repo.Close()
		eventBus.Close()
		os.Remove(f.Name())
	})

	return NewRecorder(repo, eventBus), repo, eventBus
}

func TestRecordAssignsIdentityAndPersists(t *testing.T) {
	recorder, repo, _ := newTestRecorder(t)
	ctx := context.Background()

	entry := &domain.AuditLogEntry{
		ClaimID:    "CLM-2026-AUDIT001",
		UserName:   "adjuster@test",
		ActionType: domain.ActionStatusChange,
		OldValue:   "needs_review",
		NewValue:   "in_review",
	}
	if err := recorder.Record(ctx, testOrgID, entry); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	if entry.ID == "" {
		t.Error("ID must be assigned")
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp must be assigned")
	}
	if entry.OrgID != testOrgID {
		t.Errorf("OrgID = %q, want %q", entry.OrgID, testOrgID)
	}

	logs, err := repo.GetAuditLogs(ctx, testOrgID, "CLM-2026-AUDIT001")
	if err != nil {
		t.Fatalf("GetAuditLogs() error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d entries, want 1", len(logs))
	}
	if logs[0].ActionType != domain.ActionStatusChange || logs[0].UserName != "adjuster@test" {
		t.Errorf("persisted entry mismatch: %+v", logs[0])
	}
}

func TestRecordKeepsCallerIdentity(t *testing.T) {
	recorder, _, _ := newTestRecorder(t)
	ctx := context.Background()

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &domain.AuditLogEntry{
		ID:         "fixed-id",
		Timestamp:  stamp,
		ClaimID:    "CLM-2026-AUDIT002",
		UserName:   "system",
		ActionType: domain.ActionScoreGenerated,
		NewValue:   "40",
	}
	if err := recorder.Record(ctx, testOrgID, entry); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if entry.ID != "fixed-id" || !entry.Timestamp.Equal(stamp) {
		t.Errorf("pre-set identity must be preserved: %+v", entry)
	}
}

func TestRecordMirrorsToBus(t *testing.T) {
	recorder, _, eventBus := newTestRecorder(t)
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	if _, err := eventBus.Subscribe(ctx, testOrgID, domain.TopicAudit, func(_ context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	if err := recorder.Record(ctx, testOrgID, &domain.AuditLogEntry{
		ClaimID:    "CLM-2026-AUDIT003",
		UserName:   "siu@test",
		ActionType: domain.ActionOverride,
		NewValue:   "85",
	}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	select {
	case msg := <-received:
		var got domain.AuditLogEntry
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("failed to decode audit event: %v", err)
		}
		if got.ClaimID != "CLM-2026-AUDIT003" || got.ActionType != domain.ActionOverride {
			t.Errorf("unexpected audit event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event received on the bus")
	}
}

func TestRecordWithoutBus(t *testing.T) {
	_, repo, _ := newTestRecorder(t)
	recorder := NewRecorder(repo, nil)
	ctx := context.Background()

	if err := recorder.Record(ctx, testOrgID, &domain.AuditLogEntry{
		ClaimID:    "CLM-2026-AUDIT004",
		UserName:   "system",
		ActionType: domain.ActionClaimCreated,
	}); err != nil {
		t.Fatalf("Record() without bus error: %v", err)
	}
}
