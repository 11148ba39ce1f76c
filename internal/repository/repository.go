// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveOrganization upserts an organization record.
func (r *SQLRepository) SaveOrganization(ctx context.Context, org *domain.Organization) error {
	if org.OrgID == "" {
		return fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO organizations (org_id, org_name, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			org_name = excluded.org_name,
			tier = excluded.tier,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		org.OrgID, org.OrgName, org.Tier, org.CreatedAt, org.UpdatedAt,
	)
	return err
}

// GetOrganization retrieves an organization, with its live claim count.
func (r *SQLRepository) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		SELECT o.org_id, o.org_name, o.tier, o.created_at, o.updated_at,
			   (SELECT COUNT(*) FROM claims c WHERE c.org_id = o.org_id)
		FROM organizations o
		WHERE o.org_id = ?
	`

	var org domain.Organization
	err := r.db.QueryRowContext(ctx, r.rebind(query), orgID).Scan(
		&org.OrgID, &org.OrgName, &org.Tier,
		&org.CreatedAt, &org.UpdatedAt, &org.ClaimsCount,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &org, nil
}

// ListOrganizations retrieves all provisioned organizations.
func (r *SQLRepository) ListOrganizations(ctx context.Context) ([]*domain.Organization, error) {
	query := `
		SELECT o.org_id, o.org_name, o.tier, o.created_at, o.updated_at,
			   (SELECT COUNT(*) FROM claims c WHERE c.org_id = o.org_id)
		FROM organizations o
		ORDER BY o.org_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(
			&org.OrgID, &org.OrgName, &org.Tier,
			&org.CreatedAt, &org.UpdatedAt, &org.ClaimsCount,
		); err != nil {
			return nil, err
		}
		orgs = append(orgs, &org)
	}

	return orgs, rows.Err()
}

// SaveClaim upserts the full claim document with org isolation.
func (r *SQLRepository) SaveClaim(ctx context.Context, orgID string, claim *domain.Claim) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}
	if claim.ClaimID == "" {
		return fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	var score any
	if claim.FraudScore != nil {
		score = *claim.FraudScore
	}
	var band any
	if claim.RiskBand != nil {
		band = string(*claim.RiskBand)
	}

	query := `
		INSERT INTO claims (
			org_id, claim_id, status, fraud_score, risk_band,
			claim_amount_gbp, third_party_name, witness_name,
			created_at, updated_at, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, claim_id) DO UPDATE SET
			status = excluded.status,
			fraud_score = excluded.fraud_score,
			risk_band = excluded.risk_band,
			claim_amount_gbp = excluded.claim_amount_gbp,
			third_party_name = excluded.third_party_name,
			witness_name = excluded.witness_name,
			updated_at = excluded.updated_at,
			data = excluded.data
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		orgID, claim.ClaimID, claim.Status, score, band,
		claim.ClaimAmountGBP, claim.ThirdPartyName, claim.WitnessName,
		claim.CreatedAt, claim.UpdatedAt, string(data),
	)
	return err
}

// GetClaim retrieves a claim by its external reference with org isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, orgID string, claimID string) (*domain.Claim, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `SELECT data FROM claims WHERE org_id = ? AND claim_id = ?`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), orgID, claimID).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decodeClaim(data)
}

// ListClaims retrieves the organization's claims sorted by fraud score
// descending, unscored claims last.
func (r *SQLRepository) ListClaims(ctx context.Context, orgID string, limit int) ([]*domain.Claim, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT data FROM claims
		WHERE org_id = ?
		ORDER BY fraud_score IS NULL, fraud_score DESC, created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanClaims(rows)
}

// ListClaimsSince retrieves claims created at or after the given time,
// newest first.
func (r *SQLRepository) ListClaimsSince(ctx context.Context, orgID string, since time.Time) ([]*domain.Claim, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		SELECT data FROM claims
		WHERE org_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), orgID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanClaims(rows)
}

// CountClaimsByThirdParty counts other claims naming the same third
// party within the organization.
func (r *SQLRepository) CountClaimsByThirdParty(ctx context.Context, orgID, thirdPartyName, excludeClaimID string) (int, error) {
	return r.countByName(ctx, orgID, "third_party_name", thirdPartyName, excludeClaimID)
}

// CountClaimsByWitness counts other claims naming the same witness
// within the organization.
func (r *SQLRepository) CountClaimsByWitness(ctx context.Context, orgID, witnessName, excludeClaimID string) (int, error) {
	return r.countByName(ctx, orgID, "witness_name", witnessName, excludeClaimID)
}

func (r *SQLRepository) countByName(ctx context.Context, orgID, column, name, excludeClaimID string) (int, error) {
	if orgID == "" {
		return 0, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}
	if name == "" {
		return 0, nil
	}

	// column is one of two fixed identifiers, never caller input.
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM claims
		WHERE org_id = ? AND %s = ? AND claim_id != ?
	`, column)

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), orgID, name, excludeClaimID).Scan(&count)
	return count, err
}

// SaveAuditLog appends an audit entry. Entries are never updated or
// deleted.
func (r *SQLRepository) SaveAuditLog(ctx context.Context, orgID string, entry *domain.AuditLogEntry) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO audit_logs (
			id, org_id, claim_id, user_name, action_type,
			field_changed, old_value, new_value, reason_category, notes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, orgID, entry.ClaimID, entry.UserName, entry.ActionType,
		entry.FieldChanged, entry.OldValue, entry.NewValue,
		entry.ReasonCategory, entry.Notes, entry.Timestamp,
	)
	return err
}

// GetAuditLogs retrieves a claim's audit trail, newest first.
func (r *SQLRepository) GetAuditLogs(ctx context.Context, orgID string, claimID string) ([]*domain.AuditLogEntry, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, claim_id, user_name, action_type,
			   field_changed, old_value, new_value, reason_category, notes, timestamp
		FROM audit_logs
		WHERE org_id = ? AND claim_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), orgID, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		entry := domain.AuditLogEntry{OrgID: orgID}
		if err := rows.Scan(
			&entry.ID, &entry.ClaimID, &entry.UserName, &entry.ActionType,
			&entry.FieldChanged, &entry.OldValue, &entry.NewValue,
			&entry.ReasonCategory, &entry.Notes, &entry.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// SaveCustomRule upserts an organization-defined rule.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, orgID string, rule *domain.CustomRule) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO custom_rules (
			id, org_id, name, description, expression, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, org_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, orgID, rule.Name, rule.Description,
		rule.Expression, rule.Weight, enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListCustomRules retrieves the organization's enabled custom rules.
func (r *SQLRepository) ListCustomRules(ctx context.Context, orgID string) ([]*domain.CustomRule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, weight, enabled, created_at, updated_at
		FROM custom_rules
		WHERE org_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CustomRule
	for rows.Next() {
		rule := domain.CustomRule{OrgID: orgID}
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Weight, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		out = append(out, &rule)
	}

	return out, rows.Err()
}

// GetStats aggregates portfolio statistics for the organization.
func (r *SQLRepository) GetStats(ctx context.Context, orgID string) (*domain.StatsResponse, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", ErrInvalidInput)
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN risk_band = 'high' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN risk_band = 'medium' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN risk_band = 'low' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('needs_review', 'in_review', 'rescored') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(fraud_score), 0),
			COALESCE(SUM(claim_amount_gbp), 0)
		FROM claims
		WHERE org_id = ?
	`

	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	var stats domain.StatsResponse
	err := r.db.QueryRowContext(ctx, r.rebind(query), cutoff, orgID).Scan(
		&stats.TotalClaims,
		&stats.HighRiskClaims, &stats.MediumRiskClaims, &stats.LowRiskClaims,
		&stats.PendingReview, &stats.ApprovedCount, &stats.RejectedCount,
		&stats.ClaimsLast24h, &stats.AverageScore, &stats.TotalValueGBP,
	)
	if err != nil {
		return nil, err
	}

	stats.DecisionsMade = stats.ApprovedCount + stats.RejectedCount
	return &stats, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func decodeClaim(data string) (*domain.Claim, error) {
	var claim domain.Claim
	if err := json.Unmarshal([]byte(data), &claim); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}
	return &claim, nil
}

func scanClaims(rows *sql.Rows) ([]*domain.Claim, error) {
	var claims []*domain.Claim
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		claim, err := decodeClaim(data)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
