// Package observability records domain-level events: who changed which
// CRM entity, and whether it worked. Event writes never propagate
// errors; a failing event store must not block the app.
package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/avelio/prospect/idgen"
)

// Schema holds the event log table. Timestamps are Unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS business_events (
    event_id    TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    user_id     TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    success     INTEGER NOT NULL DEFAULT 1,
    details     TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_entity ON business_events(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_events_created ON business_events(created_at);
`

// Init creates the event tables.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Event is one domain-level event to record.
type Event struct {
	EntityType string // "client" | "deal" | "task" | "user"
	EntityID   string
	UserID     string
	Action     string // "create" | "update" | "delete" | ...
	Success    bool
	Details    string // optional JSON
}

// EventLogger writes business events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// Option configures an EventLogger.
type Option func(*EventLogger)

// WithIDGenerator sets a custom ID generator for event IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger writing to db.
func NewEventLogger(db *sql.DB, opts ...Option) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records an event. Errors are logged via slog and swallowed.
func (l *EventLogger) Log(ctx context.Context, e Event) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_events (event_id, entity_type, entity_id, user_id, action, success, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.newID(), e.EntityType, e.EntityID, e.UserID, e.Action, e.Success, e.Details,
		time.Now().UnixMilli(),
	)
	if err != nil {
		slog.Error("record business event",
			"entity_type", e.EntityType, "action", e.Action, "error", err)
	}
}

// Recent returns the newest events, most recent first.
func (l *EventLogger) Recent(ctx context.Context, limit int) ([]*StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, entity_type, entity_id, user_id, action, success, details, created_at
		FROM business_events ORDER BY created_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.EventID, &e.EntityType, &e.EntityID, &e.UserID,
			&e.Action, &e.Success, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Cleanup deletes events older than retentionDays. Returns the number
// of rows removed.
func (l *EventLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM business_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StoredEvent is one persisted event.
type StoredEvent struct {
	EventID    string `json:"event_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	UserID     string `json:"user_id,omitempty"`
	Action     string `json:"action"`
	Success    bool   `json:"success"`
	Details    string `json:"details,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}
