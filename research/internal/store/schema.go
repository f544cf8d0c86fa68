package store

import "database/sql"

// Schema holds the research tables. Timestamps are Unix milliseconds.
//
// Each source writes its own row in research_sources, keyed by
// (client_id, user_id, source), so one source can never clobber
// another's payload. research_records carries the per-client identity
// and the generated summary.
const Schema = `
CREATE TABLE IF NOT EXISTS research_records (
    client_id            TEXT NOT NULL,
    user_id              TEXT NOT NULL,
    company_name         TEXT NOT NULL,
    summary              TEXT NOT NULL DEFAULT '',
    summary_generated_at INTEGER NOT NULL DEFAULT 0,
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL,
    PRIMARY KEY (client_id, user_id)
);

CREATE TABLE IF NOT EXISTS research_sources (
    client_id    TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    source       TEXT NOT NULL,
    payload_json TEXT NOT NULL DEFAULT '',
    has_data     INTEGER NOT NULL DEFAULT 0,
    fetched_at   INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (client_id, user_id, source)
);

CREATE TABLE IF NOT EXISTS research_fetch_log (
    id            TEXT PRIMARY KEY,
    client_id     TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    source        TEXT NOT NULL,
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_client ON research_fetch_log(client_id, user_id, fetched_at);
`

// ApplySchema creates the research tables and indexes.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
