package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fraudguard-ai/fraudguard/internal/claims"
	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/repository"
	"github.com/fraudguard-ai/fraudguard/internal/rules"
)

// maxUploadBytes bounds document uploads.
const maxUploadBytes = 10 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *claims.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	custom  *rules.CustomEngine
	caps    domain.Capabilities
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *claims.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, custom *rules.CustomEngine, caps domain.Capabilities, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		custom:  custom,
		caps:    caps,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateOrganizationRequest is the request body for POST /organizations.
type CreateOrganizationRequest struct {
	OrgName string `json:"orgName"`
	Tier    string `json:"tier,omitempty"`
}

// CreateOrganization provisions a new tenant.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if strings.TrimSpace(req.OrgName) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "orgName is required",
		})
		return
	}

	tier := domain.Tier(req.Tier)
	if tier == "" {
		tier = domain.TierCommunity
	}

	now := time.Now().UTC()
	org := &domain.Organization{
		OrgID:     "org-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		OrgName:   strings.TrimSpace(req.OrgName),
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.SaveOrganization(ctx, org); err != nil {
		h.writeError(w, r, err)
		return
	}

	slog.Info("organization created", "org_id", org.OrgID, "org_name", org.OrgName)
	writeJSON(w, http.StatusCreated, org)
}

// ListOrganizations returns all provisioned organizations.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.repo.ListOrganizations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"organizations": orgs,
		"count":         len(orgs),
	})
}

// GetOrganization retrieves one organization by ID.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	org, err := h.repo.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

// CreateClaim handles POST /claims: validate, persist, score, respond
// with the scored claim.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	user := GetUser(ctx)

	var in claims.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.Create(ctx, orgID, user, &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, claim)
}

// ListClaims handles GET /claims. Supports ?limit=N and ?last24h=true.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}
	last24h := r.URL.Query().Get("last24h") == "true"

	list, err := h.svc.List(ctx, orgID, limit, last24h)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claims": list,
		"count":  len(list),
	})
}

// GetClaim retrieves a claim by its external claim reference.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	claim, err := h.svc.Get(ctx, orgID, claimID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// GetAuditLogs returns the audit trail for a claim, newest first.
func (h *Handler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	logs, err := h.svc.AuditLogs(ctx, orgID, claimID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"auditLogs": logs,
		"count":     len(logs),
	})
}

// MarkInReview moves a claim from needs_review to in_review.
func (h *Handler) MarkInReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	claim, err := h.svc.MarkInReview(ctx, orgID, claimID, GetUser(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// RescoreRequest is the request body for POST /claims/{claimID}/rescore.
type RescoreRequest struct {
	Notes string `json:"notes,omitempty"`
}

// RescoreClaim re-runs the scoring pipeline against the current claim
// state.
func (h *Handler) RescoreClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	var req RescoreRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	claim, err := h.svc.Rescore(ctx, orgID, claimID, GetUser(ctx), req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// DecisionRequest is the request body for approve and reject.
type DecisionRequest struct {
	ReasonCategory string `json:"reasonCategory"`
	Notes          string `json:"notes"`
}

// ApproveClaim finalizes a claim as approved.
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, (*claims.Service).Approve)
}

// RejectClaim finalizes a claim as rejected.
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, (*claims.Service).Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(*claims.Service, context.Context, string, string, string, string, string) (*domain.Claim, error)) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := fn(h.svc, ctx, orgID, claimID, GetUser(ctx), req.ReasonCategory, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// OverrideRequest is the request body for POST /claims/{claimID}/override.
type OverrideRequest struct {
	NewScore       int    `json:"newScore"`
	ReasonCategory string `json:"reasonCategory"`
	Notes          string `json:"notes"`
}

// OverrideScore manually replaces the fraud score with an attributed,
// audited value.
func (h *Handler) OverrideScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.Override(ctx, orgID, claimID, GetUser(ctx), req.NewScore, req.ReasonCategory, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// UpdateClaimFields handles PATCH /claims/{claimID}: partial profile
// edits, each recorded in the audit trail.
func (h *Handler) UpdateClaimFields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	var updates claims.FieldUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.svc.UpdateFields(ctx, orgID, claimID, GetUser(ctx), &updates)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// UploadDocument handles multipart document upload for a claim. The
// file is stored, extraction signals are derived, and the claim record
// is updated.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	claimID := chi.URLParam(r, "claimID")

	content, contentType, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	claim, err := h.svc.UploadDocument(ctx, orgID, claimID, GetUser(ctx), content, contentType, filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, claim)
}

// ExtractPreview runs document field extraction without attaching the
// file to a claim, so a form client can pre-fill submission fields.
func (h *Handler) ExtractPreview(w http.ResponseWriter, r *http.Request) {
	content, contentType, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	fields := h.svc.ExtractPreview(r.Context(), content, contentType, filename)
	writeJSON(w, http.StatusOK, fields)
}

// readUpload reads the "file" part of a multipart request. On failure
// it writes the error response and returns ok=false.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (content []byte, contentType, filename string, ok bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid multipart request",
		})
		return nil, "", "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "file part is required",
		})
		return nil, "", "", false
	}
	defer file.Close()

	content, err = io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read file",
		})
		return nil, "", "", false
	}

	return content, header.Header.Get("Content-Type"), header.Filename, true
}

// GetStats returns the organization's portfolio statistics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	stats, err := h.svc.Stats(ctx, orgID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ruleDescriptor is the wire form of a builtin rule.
type ruleDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Weight      int    `json:"weight"`
}

// ListRules returns the builtin rule set plus this organization's
// loaded custom rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	orgID := GetOrgID(r.Context())

	builtin := make([]ruleDescriptor, 0)
	for _, rule := range rules.Builtin() {
		builtin = append(builtin, ruleDescriptor{
			ID:          rule.ID,
			Name:        rule.Name,
			Description: rule.Description,
			Category:    rule.Category,
			Weight:      rule.Weight,
		})
	}

	custom := make([]*domain.CustomRule, 0)
	if h.custom != nil {
		for _, cfg := range h.custom.Loaded() {
			if cfg.OrgID == orgID {
				custom = append(custom, cfg)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"builtin": builtin,
		"custom":  custom,
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Weight      int    `json:"weight"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates and persists an organization-defined CEL rule.
// The rule takes effect after POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}
	if req.Weight < 1 || req.Weight > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 1 and 100",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.CustomRule{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Compile before persisting so a bad expression never lands in the
	// store.
	if h.custom != nil {
		if err := h.custom.Validate(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveCustomRule(ctx, orgID, rule); err != nil {
		h.writeError(w, r, err)
		return
	}

	slog.Info("custom rule created", "org_id", orgID, "rule_id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads this organization's custom rules from the store
// into the engine, enabling hot-reload without a restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	if h.custom == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rule engine not available",
		})
		return
	}

	configs, err := h.repo.ListCustomRules(ctx, orgID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.custom.ReloadOrg(orgID, configs); err != nil {
		slog.Error("failed to reload custom rules", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded", "org_id", orgID, "count", len(configs))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(configs),
	})
}

// GetMetadata returns the enumerations and capability flags a form
// client needs to render the submission and review screens.
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"accidentTypes":    domain.AccidentTypes,
		"reasonCategories": domain.ReasonCategories,
		"capabilities":     h.caps,
		"version":          h.version,
	})
}

// writeError maps service and repository errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case claims.IsValidation(err), errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, claims.ErrDisabled):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": err.Error(),
		})
	case claims.IsIllegalTransition(err):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
