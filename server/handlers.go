package server

import (
	"database/sql"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db *sql.DB
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{db: db}
}
