package ledger

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the ledger database schema.
// The ledger is append-only: the schema carries no UPDATE or DELETE paths
// and the store exposes none.
const Schema = `
-- Batch snapshots: host baseline observed at the end of each batch
CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,

    -- Host baseline
    os_build INTEGER NOT NULL,
    os_edition TEXT NOT NULL,
    domain_joined BOOLEAN NOT NULL,
    management_enrolled BOOLEAN NOT NULL,

    -- OS restore point created before the batch, if any
    restore_checkpoint_id TEXT
);

-- Per-policy observed state within a snapshot
CREATE TABLE IF NOT EXISTS snapshot_policies (
    snapshot_id TEXT NOT NULL REFERENCES snapshots(snapshot_id),
    policy_id TEXT NOT NULL,
    is_applied BOOLEAN NOT NULL,
    current_value TEXT,

    PRIMARY KEY (snapshot_id, policy_id)
);

-- Change records: one row per attempted policy change
CREATE TABLE IF NOT EXISTS changes (
    change_id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL,
    mechanism TEXT NOT NULL,
    description TEXT,

    -- State transition in the mechanism's canonical encoding
    previous_state TEXT,
    new_state TEXT,

    -- Outcome
    success BOOLEAN NOT NULL,
    error_message TEXT,
    error_category TEXT,

    snapshot_id TEXT NOT NULL REFERENCES snapshots(snapshot_id)
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_changes_policy_id ON changes(policy_id);
CREATE INDEX IF NOT EXISTS idx_changes_applied_at ON changes(applied_at);
CREATE INDEX IF NOT EXISTS idx_changes_snapshot_id ON changes(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_changes_operation ON changes(operation);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
