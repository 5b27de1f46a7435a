package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    amount REAL NOT NULL,
    distance_from_home REAL NOT NULL,
    time_of_day REAL NOT NULL,
    frequency_24h REAL NOT NULL,
    merchant_category TEXT NOT NULL,
    card_id TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(card_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tx_id TEXT NOT NULL,
    final_score REAL NOT NULL,
    probability REAL NOT NULL,
    rule_points REAL NOT NULL,
    tier TEXT NOT NULL,
    risk_factors TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tx ON assessments(tx_id);
CREATE INDEX IF NOT EXISTS idx_assessments_tier ON assessments(tier);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(timestamp);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    points REAL NOT NULL DEFAULT 0.0,
    reason TEXT NOT NULL,
    rule_order INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
CREATE INDEX IF NOT EXISTS idx_rule_configs_order ON rule_configs(rule_order);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAssessments,
		schemaRuleConfigs,
	}
}
