package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// sqliteSchema creates the SQLite tables. Timestamps are stored as Unix
// nanoseconds so range queries compare integers.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tiers (
    id INTEGER PRIMARY KEY,
    rank INTEGER NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS regular_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_tier_id INTEGER NOT NULL REFERENCES tiers(id),
    target_tier_id INTEGER NOT NULL REFERENCES tiers(id),
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 0,
    description TEXT NOT NULL DEFAULT ''
);

-- One enabled regular rule per source tier
CREATE UNIQUE INDEX IF NOT EXISTS idx_regular_rules_enabled_source
    ON regular_rules(source_tier_id) WHERE enabled = 1;

CREATE TABLE IF NOT EXISTS direct_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target_tier_id INTEGER NOT NULL REFERENCES tiers(id),
    expression TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0 CHECK (priority BETWEEN 0 AND 999),
    enabled INTEGER NOT NULL DEFAULT 0,
    min_tier_requirement INTEGER,
    description TEXT NOT NULL DEFAULT ''
);

-- One enabled direct rule per target tier
CREATE UNIQUE INDEX IF NOT EXISTS idx_direct_rules_enabled_target
    ON direct_rules(target_tier_id) WHERE enabled = 1;

CREATE TABLE IF NOT EXISTS distributors (
    id INTEGER PRIMARY KEY,
    tier_id INTEGER NOT NULL REFERENCES tiers(id),
    version INTEGER NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_distributors_tier ON distributors(tier_id);

CREATE TABLE IF NOT EXISTS distributor_metrics (
    distributor_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (distributor_id, name)
);

CREATE TABLE IF NOT EXISTS upgrade_history (
    id TEXT PRIMARY KEY,
    distributor_id INTEGER NOT NULL,
    previous_tier_id INTEGER NOT NULL,
    previous_tier_rank INTEGER NOT NULL,
    previous_tier_name TEXT NOT NULL,
    new_tier_id INTEGER NOT NULL,
    new_tier_rank INTEGER NOT NULL,
    new_tier_name TEXT NOT NULL,
    rule_kind TEXT NOT NULL,
    rule_id INTEGER NOT NULL,
    satisfied_expression TEXT NOT NULL,
    context_snapshot TEXT NOT NULL,
    occurred_at INTEGER NOT NULL,
    trigger_kind TEXT NOT NULL,
    triggering_reference TEXT,
    operator TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_distributor ON upgrade_history(distributor_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_history_occurred_at ON upgrade_history(occurred_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

const sqliteInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, ?)
ON CONFLICT(version) DO NOTHING;
`

const sqliteGetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const historyColumns = `
    h.id, h.distributor_id,
    h.previous_tier_id, h.previous_tier_rank, h.previous_tier_name,
    h.new_tier_id, h.new_tier_rank, h.new_tier_name,
    h.rule_kind, h.rule_id, h.satisfied_expression, h.context_snapshot,
    h.occurred_at, h.trigger_kind, h.triggering_reference, h.operator`
