package storage

// SchemaVersion is the current attempt log schema version.
const SchemaVersion = 1

// Schema creates the attempt log tables. Timestamps are Unix nanoseconds
// and latency is milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    model TEXT NOT NULL,
    mapped_model TEXT,
    attempt INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    status_code INTEGER,
    error TEXT,
    latency_ms INTEGER NOT NULL,
    prompt_tokens INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    cost REAL NOT NULL,
    streamed BOOLEAN NOT NULL,
    ts INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_request_id ON attempts(request_id);
CREATE INDEX IF NOT EXISTS idx_attempts_channel_ts ON attempts(channel_id, ts);
CREATE INDEX IF NOT EXISTS idx_attempts_ts ON attempts(ts);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`

const insertAttempt = `
INSERT INTO attempts (
    id, request_id, channel_id, model, mapped_model, attempt,
    outcome, status_code, error,
    latency_ms, prompt_tokens, completion_tokens, cost, streamed,
    ts, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `id, request_id, channel_id, model, mapped_model, attempt,
    outcome, status_code, error,
    latency_ms, prompt_tokens, completion_tokens, cost, streamed,
    ts, recorded_at`
