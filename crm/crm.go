// Package crm persists the sales entities: clients, deals, tasks, and the
// account users that own them. One SQLite database holds everything; the
// research pipeline reads clients from here to know which companies to
// investigate.
package crm

import "database/sql"

// Store wraps a database handle with CRM queries.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
