package repository

// Schema definitions for the FraudGuard database.
// Compatible with both SQLite and PostgreSQL.

const schemaOrganizations = `
CREATE TABLE IF NOT EXISTS organizations (
    org_id TEXT PRIMARY KEY,
    org_name TEXT NOT NULL,
    tier TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// Claims are stored as a full JSON document plus mirrored scalar
// columns for the fields queries filter and sort on. The document is
// the source of truth; the columns exist for the indexes.
const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    org_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    status TEXT NOT NULL,
    fraud_score INTEGER,
    risk_band TEXT,
    claim_amount_gbp REAL NOT NULL,
    third_party_name TEXT,
    witness_name TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (org_id, claim_id)
);

CREATE INDEX IF NOT EXISTS idx_claims_org ON claims(org_id);
CREATE INDEX IF NOT EXISTS idx_claims_score ON claims(org_id, fraud_score);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(org_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(org_id, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_third_party ON claims(org_id, third_party_name);
CREATE INDEX IF NOT EXISTS idx_claims_witness ON claims(org_id, witness_name);
`

const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    user_name TEXT NOT NULL,
    action_type TEXT NOT NULL,
    field_changed TEXT,
    old_value TEXT,
    new_value TEXT,
    reason_category TEXT,
    notes TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_claim ON audit_logs(org_id, claim_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(org_id, timestamp);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    org_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight INTEGER NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, org_id)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_org ON custom_rules(org_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaOrganizations,
		schemaClaims,
		schemaAuditLogs,
		schemaCustomRules,
	}
}
