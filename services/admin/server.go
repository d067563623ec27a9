// server.go — Admin service wiring.
package admin

import "database/sql"

// Server exposes the admin panels' API. Every route goes through the
// requireAdmin gate.
type Server struct {
	db *sql.DB
}

// NewServer builds an admin server.
func NewServer(db *sql.DB) *Server {
	return &Server{db: db}
}
