// Package domain defines the core entities and collaborator interfaces
// for FraudGuard.
package domain

import (
	"context"
	"time"
)

// Repository defines the persistence boundary. All claim and audit
// operations are scoped by orgID for strict multi-tenancy isolation.
// The core's contract is read-modify-write: read the latest record,
// apply the transition, write back the full record.
type Repository interface {
	// Organization operations
	SaveOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, orgID string) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]*Organization, error)

	// Claim operations
	SaveClaim(ctx context.Context, orgID string, claim *Claim) error
	GetClaim(ctx context.Context, orgID string, claimID string) (*Claim, error)
	ListClaims(ctx context.Context, orgID string, limit int) ([]*Claim, error)
	ListClaimsSince(ctx context.Context, orgID string, since time.Time) ([]*Claim, error)

	// Recurrence counts used for cross-claim signals. The claim identified
	// by excludeClaimID is not counted.
	CountClaimsByThirdParty(ctx context.Context, orgID, thirdPartyName, excludeClaimID string) (int, error)
	CountClaimsByWitness(ctx context.Context, orgID, witnessName, excludeClaimID string) (int, error)

	// Audit log operations (append-only)
	SaveAuditLog(ctx context.Context, orgID string, entry *AuditLogEntry) error
	GetAuditLogs(ctx context.Context, orgID string, claimID string) ([]*AuditLogEntry, error)

	// Custom rule operations
	SaveCustomRule(ctx context.Context, orgID string, rule *CustomRule) error
	ListCustomRules(ctx context.Context, orgID string) ([]*CustomRule, error)

	// Portfolio statistics
	GetStats(ctx context.Context, orgID string) (*StatsResponse, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
