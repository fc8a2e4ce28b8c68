package store

// postgresSchema mirrors sqliteSchema using native Postgres types.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS tiers (
    id BIGINT PRIMARY KEY,
    rank INTEGER NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS regular_rules (
    id BIGSERIAL PRIMARY KEY,
    source_tier_id BIGINT NOT NULL REFERENCES tiers(id),
    target_tier_id BIGINT NOT NULL REFERENCES tiers(id),
    expression TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT FALSE,
    description TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_regular_rules_enabled_source
    ON regular_rules(source_tier_id) WHERE enabled;

CREATE TABLE IF NOT EXISTS direct_rules (
    id BIGSERIAL PRIMARY KEY,
    target_tier_id BIGINT NOT NULL REFERENCES tiers(id),
    expression TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0 CHECK (priority BETWEEN 0 AND 999),
    enabled BOOLEAN NOT NULL DEFAULT FALSE,
    min_tier_requirement INTEGER,
    description TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_direct_rules_enabled_target
    ON direct_rules(target_tier_id) WHERE enabled;

CREATE TABLE IF NOT EXISTS distributors (
    id BIGINT PRIMARY KEY,
    tier_id BIGINT NOT NULL REFERENCES tiers(id),
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_distributors_tier ON distributors(tier_id);

CREATE TABLE IF NOT EXISTS distributor_metrics (
    distributor_id BIGINT NOT NULL,
    name TEXT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (distributor_id, name)
);

CREATE TABLE IF NOT EXISTS upgrade_history (
    seq BIGSERIAL UNIQUE,
    id TEXT PRIMARY KEY,
    distributor_id BIGINT NOT NULL,
    previous_tier_id BIGINT NOT NULL,
    previous_tier_rank INTEGER NOT NULL,
    previous_tier_name TEXT NOT NULL,
    new_tier_id BIGINT NOT NULL,
    new_tier_rank INTEGER NOT NULL,
    new_tier_name TEXT NOT NULL,
    rule_kind TEXT NOT NULL,
    rule_id BIGINT NOT NULL,
    satisfied_expression TEXT NOT NULL,
    context_snapshot JSONB NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    trigger_kind TEXT NOT NULL,
    triggering_reference TEXT,
    operator TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_distributor ON upgrade_history(distributor_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_history_occurred_at ON upgrade_history(occurred_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
);
`

const postgresInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES ($1, $2)
ON CONFLICT (version) DO NOTHING
`

const postgresGetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1
`
