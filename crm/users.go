package crm

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertUser adds a new user.
func (s *Store) InsertUser(ctx context.Context, u *User) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, name, email, flight_tracking_enabled, flight_tracking_quota, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.FlightTrackingEnabled, u.FlightTrackingQuota, u.CreatedAt,
	)
	return err
}

// GetUser retrieves a user by ID, or nil if absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, email, flight_tracking_enabled, flight_tracking_quota,
		flight_lookups_used, created_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ConsumeFlightLookup counts one flight lookup against the user's
// quota. Reports false without advancing the counter when the quota is
// exhausted.
func (s *Store) ConsumeFlightLookup(ctx context.Context, userID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET flight_lookups_used = flight_lookups_used + 1
		WHERE id = ? AND flight_lookups_used < flight_tracking_quota`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetFlightTracking toggles a user's flight tracking flag and quota.
func (s *Store) SetFlightTracking(ctx context.Context, userID string, enabled bool, quota int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET flight_tracking_enabled=?, flight_tracking_quota=? WHERE id=?`,
		enabled, quota, userID)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.FlightTrackingEnabled,
		&u.FlightTrackingQuota, &u.FlightLookupsUsed, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
