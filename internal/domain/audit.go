package domain

import "time"

// ActionType tags a state-changing action in the audit trail.
// Values are stable wire constants.
type ActionType string

const (
	ActionScoreGenerated   ActionType = "SCORE_GENERATED"
	ActionOverride         ActionType = "OVERRIDE"
	ActionFieldEdit        ActionType = "FIELD_EDIT"
	ActionStatusChange     ActionType = "STATUS_CHANGE"
	ActionClaimCreated     ActionType = "CLAIM_CREATED"
	ActionDocumentUploaded ActionType = "DOCUMENT_UPLOADED"
	ActionRescore          ActionType = "RESCORE"
	ActionApprove          ActionType = "APPROVE"
	ActionReject           ActionType = "REJECT"
)

// AuditLogEntry is one immutable record of a state-changing action on a
// claim. Entries are append-only: never updated or deleted by the core.
type AuditLogEntry struct {
	ID             string     `json:"id"`
	ClaimID        string     `json:"claimId"`
	OrgID          string     `json:"orgId"`
	UserName       string     `json:"userName"`
	ActionType     ActionType `json:"actionType"`
	FieldChanged   string     `json:"fieldChanged,omitempty"`
	OldValue       string     `json:"oldValue,omitempty"`
	NewValue       string     `json:"newValue,omitempty"`
	ReasonCategory string     `json:"reasonCategory,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
