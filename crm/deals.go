package crm

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertDeal adds a new deal.
func (s *Store) InsertDeal(ctx context.Context, d *Deal) error {
	now := time.Now().UnixMilli()
	if d.CreatedAt == 0 {
		d.CreatedAt = now
	}
	if d.UpdatedAt == 0 {
		d.UpdatedAt = now
	}
	if d.Stage == "" {
		d.Stage = "prospecting"
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO deals (id, client_id, user_id, title, stage, amount, close_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ClientID, d.UserID, d.Title, d.Stage, d.Amount, d.CloseDate,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// GetDeal retrieves a deal by ID, or nil if absent.
func (s *Store) GetDeal(ctx context.Context, id string) (*Deal, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, client_id, user_id, title, stage, amount, close_date, created_at, updated_at
		FROM deals WHERE id = ?`, id)
	return scanDeal(row)
}

// ListDealsByClient returns a client's deals, most recent first.
func (s *Store) ListDealsByClient(ctx context.Context, clientID string) ([]*Deal, error) {
	return s.listDeals(ctx,
		`SELECT id, client_id, user_id, title, stage, amount, close_date, created_at, updated_at
		FROM deals WHERE client_id = ? ORDER BY created_at DESC`, clientID)
}

// ListDealsByUser returns all of a user's deals across clients.
func (s *Store) ListDealsByUser(ctx context.Context, userID string) ([]*Deal, error) {
	return s.listDeals(ctx,
		`SELECT id, client_id, user_id, title, stage, amount, close_date, created_at, updated_at
		FROM deals WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *Store) listDeals(ctx context.Context, query string, arg any) ([]*Deal, error) {
	rows, err := s.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []*Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.ClientID, &d.UserID, &d.Title, &d.Stage,
			&d.Amount, &d.CloseDate, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, &d)
	}
	return deals, rows.Err()
}

// UpdateDeal updates a deal's mutable fields.
func (s *Store) UpdateDeal(ctx context.Context, d *Deal) error {
	d.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE deals SET title=?, stage=?, amount=?, close_date=?, updated_at=? WHERE id=?`,
		d.Title, d.Stage, d.Amount, d.CloseDate, d.UpdatedAt, d.ID,
	)
	return err
}

// DeleteDeal removes a deal.
func (s *Store) DeleteDeal(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM deals WHERE id = ?`, id)
	return err
}

func scanDeal(row *sql.Row) (*Deal, error) {
	var d Deal
	err := row.Scan(&d.ID, &d.ClientID, &d.UserID, &d.Title, &d.Stage,
		&d.Amount, &d.CloseDate, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan deal: %w", err)
	}
	return &d, nil
}
