package store

import "database/sql"

// Schema is the complete scout control-plane schema.
const Schema = `
-- Monitoring tasks
CREATE TABLE IF NOT EXISTS scouts (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    title                TEXT NOT NULL DEFAULT '',
    goal                 TEXT NOT NULL DEFAULT '',
    description          TEXT NOT NULL DEFAULT '',
    search_queries       TEXT NOT NULL DEFAULT '[]',
    location_json        TEXT NOT NULL DEFAULT '',
    frequency            TEXT NOT NULL DEFAULT '',
    is_active            INTEGER NOT NULL DEFAULT 1,
    last_run_at          INTEGER,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scouts_user ON scouts(user_id);
CREATE INDEX IF NOT EXISTS idx_scouts_due ON scouts(is_active, last_run_at);

-- Run attempts
CREATE TABLE IF NOT EXISTS scout_executions (
    id            TEXT PRIMARY KEY,
    scout_id      TEXT NOT NULL REFERENCES scouts(id) ON DELETE CASCADE,
    status        TEXT NOT NULL DEFAULT 'running',
    started_at    INTEGER NOT NULL,
    completed_at  INTEGER,
    error_message TEXT NOT NULL DEFAULT '',
    results_json  TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_executions_scout ON scout_executions(scout_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_started ON scout_executions(started_at);

-- At most one running execution per scout. The opening insert of a run is
-- the conditional write that closes the concurrent-trigger race.
CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_one_running
    ON scout_executions(scout_id) WHERE status = 'running';

-- Units of agent work within an execution
CREATE TABLE IF NOT EXISTS scout_execution_steps (
    id            TEXT PRIMARY KEY,
    execution_id  TEXT NOT NULL REFERENCES scout_executions(id) ON DELETE CASCADE,
    step_number   INTEGER NOT NULL,
    step_type     TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    input_json    TEXT NOT NULL DEFAULT '',
    output_json   TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'running',
    started_at    INTEGER NOT NULL,
    completed_at  INTEGER,
    error_message TEXT NOT NULL DEFAULT '',
    UNIQUE(execution_id, step_number)
);
CREATE INDEX IF NOT EXISTS idx_steps_execution ON scout_execution_steps(execution_id, step_number);

-- Per-user credential record
CREATE TABLE IF NOT EXISTS user_preferences (
    user_id                  TEXT PRIMARY KEY,
    firecrawl_api_key        TEXT NOT NULL DEFAULT '',
    firecrawl_custom_api_key TEXT NOT NULL DEFAULT '',
    firecrawl_key_status     TEXT NOT NULL DEFAULT '',
    firecrawl_key_error      TEXT NOT NULL DEFAULT '',
    created_at               INTEGER NOT NULL,
    updated_at               INTEGER NOT NULL
);

-- Credential usage telemetry (append-only)
CREATE TABLE IF NOT EXISTS firecrawl_usage_logs (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    scout_id        TEXT NOT NULL,
    execution_id    TEXT NOT NULL,
    used_fallback   INTEGER NOT NULL DEFAULT 0,
    fallback_reason TEXT NOT NULL DEFAULT '',
    api_calls_count INTEGER NOT NULL DEFAULT 1,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_user ON firecrawl_usage_logs(user_id, created_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
