package crm

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertTask adds a new task.
func (s *Store) InsertTask(ctx context.Context, t *Task) error {
	now := time.Now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = now
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tasks (id, client_id, user_id, title, due_at, done, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClientID, t.UserID, t.Title, t.DueAt, t.Done, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetTask retrieves a task by ID, or nil if absent.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, client_id, user_id, title, due_at, done, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasksByClient returns a client's tasks, soonest due first.
func (s *Store) ListTasksByClient(ctx context.Context, clientID string) ([]*Task, error) {
	return s.listTasks(ctx,
		`SELECT id, client_id, user_id, title, due_at, done, created_at, updated_at
		FROM tasks WHERE client_id = ? ORDER BY due_at`, clientID)
}

// ListOpenTasks returns a user's open tasks, soonest due first.
func (s *Store) ListOpenTasks(ctx context.Context, userID string) ([]*Task, error) {
	return s.listTasks(ctx,
		`SELECT id, client_id, user_id, title, due_at, done, created_at, updated_at
		FROM tasks WHERE user_id = ? AND done = 0 ORDER BY due_at`, userID)
}

func (s *Store) listTasks(ctx context.Context, query string, arg any) ([]*Task, error) {
	rows, err := s.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ClientID, &t.UserID, &t.Title, &t.DueAt,
			&t.Done, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// UpdateTask updates a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE tasks SET title=?, due_at=?, done=?, updated_at=? WHERE id=?`,
		t.Title, t.DueAt, t.Done, t.UpdatedAt, t.ID,
	)
	return err
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ClientID, &t.UserID, &t.Title, &t.DueAt,
		&t.Done, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}
