package crm

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertClient adds a new client.
func (s *Store) InsertClient(ctx context.Context, c *Client) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = "lead"
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO clients (id, user_id, name, company_name, email, phone, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.CompanyName, c.Email, c.Phone, c.Status, c.Notes,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetClient retrieves a client by ID, or nil if absent.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, name, company_name, email, phone, status, notes, created_at, updated_at
		FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

// ListClients returns all clients for a user, most recent first.
func (s *Store) ListClients(ctx context.Context, userID string) ([]*Client, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, name, company_name, email, phone, status, notes, created_at, updated_at
		FROM clients WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CompanyName, &c.Email, &c.Phone,
			&c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// ListAllClients returns every client across all users. Used by the
// research scheduler to build the subject list.
func (s *Store) ListAllClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, name, company_name, email, phone, status, notes, created_at, updated_at
		FROM clients WHERE status != 'closed' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CompanyName, &c.Email, &c.Phone,
			&c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// UpdateClient updates a client's mutable fields.
func (s *Store) UpdateClient(ctx context.Context, c *Client) error {
	c.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE clients SET name=?, company_name=?, email=?, phone=?, status=?, notes=?, updated_at=?
		WHERE id=?`,
		c.Name, c.CompanyName, c.Email, c.Phone, c.Status, c.Notes, c.UpdatedAt, c.ID,
	)
	return err
}

// DeleteClient removes a client (cascades to deals and tasks).
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	return err
}

func scanClient(row *sql.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.CompanyName, &c.Email, &c.Phone,
		&c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}
