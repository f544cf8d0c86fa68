// Package store persists research results. One row per (client, user,
// source) holds a source's latest payload; writes are scoped to that
// row so concurrent sources never interfere.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avelio/prospect/idgen"
)

// Fetch outcome statuses recorded per source attempt.
const (
	StatusOK    = "ok"    // new data obtained and stored
	StatusEmpty = "empty" // provider answered with nothing usable
	StatusError = "error" // provider, network, or auth failure
)

// Store wraps a database handle with research queries.
type Store struct {
	DB *sql.DB
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// SourceResult is one source's latest state for a client.
type SourceResult struct {
	ClientID  string          `json:"client_id"`
	UserID    string          `json:"user_id"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	HasData   bool            `json:"has_data"`
	FetchedAt int64           `json:"fetched_at"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// Record is the per-client research identity plus the generated summary.
type Record struct {
	ClientID           string `json:"client_id"`
	UserID             string `json:"user_id"`
	CompanyName        string `json:"company_name"`
	Summary            string `json:"summary,omitempty"`
	SummaryGeneratedAt int64  `json:"summary_generated_at,omitempty"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// FetchLogEntry is one attempt in the observability trail.
type FetchLogEntry struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	UserID       string `json:"user_id"`
	Source       string `json:"source"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}

// TouchRecord ensures the identity row exists for a client. Identity
// fields are written on first creation only; later calls bump
// updated_at and nothing else.
func (s *Store) TouchRecord(ctx context.Context, clientID, userID, companyName string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO research_records (client_id, user_id, company_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id, user_id) DO UPDATE SET updated_at = excluded.updated_at`,
		clientID, userID, companyName, now, now,
	)
	return err
}

// GetRecord retrieves a client's research record, or nil if absent.
func (s *Store) GetRecord(ctx context.Context, clientID, userID string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT client_id, user_id, company_name, summary, summary_generated_at, created_at, updated_at
		FROM research_records WHERE client_id = ? AND user_id = ?`, clientID, userID)

	var r Record
	err := row.Scan(&r.ClientID, &r.UserID, &r.CompanyName, &r.Summary,
		&r.SummaryGeneratedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return &r, nil
}

// SetSummary stores a generated summary on the record.
func (s *Store) SetSummary(ctx context.Context, clientID, userID, summary string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE research_records SET summary = ?, summary_generated_at = ?, updated_at = ?
		WHERE client_id = ? AND user_id = ?`,
		summary, now, now, clientID, userID,
	)
	return err
}

// UpsertSourceResult records one source attempt. The attempt timestamp
// and status always overwrite the row; the payload is replaced only
// when the attempt produced data, so a failed refetch keeps the last
// good payload.
func (s *Store) UpsertSourceResult(ctx context.Context, r *SourceResult) error {
	if r.FetchedAt == 0 {
		r.FetchedAt = time.Now().UnixMilli()
	}
	payload := ""
	if r.HasData {
		payload = string(r.Payload)
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO research_sources (client_id, user_id, source, payload_json, has_data, fetched_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, user_id, source) DO UPDATE SET
			payload_json = CASE WHEN excluded.has_data = 1 THEN excluded.payload_json ELSE research_sources.payload_json END,
			has_data     = CASE WHEN excluded.has_data = 1 THEN 1 ELSE research_sources.has_data END,
			fetched_at   = excluded.fetched_at,
			status       = excluded.status,
			error        = excluded.error`,
		r.ClientID, r.UserID, r.Source, payload, r.HasData, r.FetchedAt, r.Status, r.Error,
	)
	return err
}

// GetSourceResult retrieves one source row, or nil if absent.
func (s *Store) GetSourceResult(ctx context.Context, clientID, userID, source string) (*SourceResult, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT client_id, user_id, source, payload_json, has_data, fetched_at, status, error
		FROM research_sources WHERE client_id = ? AND user_id = ? AND source = ?`,
		clientID, userID, source)
	return scanSourceResult(row)
}

// ListSourceResults returns all source rows for a client.
func (s *Store) ListSourceResults(ctx context.Context, clientID, userID string) ([]*SourceResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT client_id, user_id, source, payload_json, has_data, fetched_at, status, error
		FROM research_sources WHERE client_id = ? AND user_id = ? ORDER BY source`,
		clientID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*SourceResult
	for rows.Next() {
		var r SourceResult
		var payload string
		if err := rows.Scan(&r.ClientID, &r.UserID, &r.Source, &payload,
			&r.HasData, &r.FetchedAt, &r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("scan source result: %w", err)
		}
		if payload != "" {
			r.Payload = json.RawMessage(payload)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// SourceTimes returns source → last fetched_at for a client. Sources
// with no row are absent from the map.
func (s *Store) SourceTimes(ctx context.Context, clientID, userID string) (map[string]int64, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source, fetched_at FROM research_sources WHERE client_id = ? AND user_id = ?`,
		clientID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	times := make(map[string]int64)
	for rows.Next() {
		var source string
		var at int64
		if err := rows.Scan(&source, &at); err != nil {
			return nil, fmt.Errorf("scan source time: %w", err)
		}
		times[source] = at
	}
	return times, rows.Err()
}

// InsertFetchLog appends one attempt to the trail.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	if e.ID == "" {
		e.ID = "flog_" + idgen.New()
	}
	if e.FetchedAt == 0 {
		e.FetchedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO research_fetch_log (id, client_id, user_id, source, status, error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClientID, e.UserID, e.Source, e.Status, e.ErrorMessage, e.DurationMs, e.FetchedAt,
	)
	return err
}

// ListFetchLog returns the most recent attempts for a client, newest first.
func (s *Store) ListFetchLog(ctx context.Context, clientID, userID string, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, client_id, user_id, source, status, error_message, duration_ms, fetched_at
		FROM research_fetch_log WHERE client_id = ? AND user_id = ?
		ORDER BY fetched_at DESC LIMIT ?`,
		clientID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.UserID, &e.Source, &e.Status,
			&e.ErrorMessage, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func scanSourceResult(row *sql.Row) (*SourceResult, error) {
	var r SourceResult
	var payload string
	err := row.Scan(&r.ClientID, &r.UserID, &r.Source, &payload,
		&r.HasData, &r.FetchedAt, &r.Status, &r.Error)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan source result: %w", err)
	}
	if payload != "" {
		r.Payload = json.RawMessage(payload)
	}
	return &r, nil
}
