// server.go — Billing service wiring.
package billing

import (
	"database/sql"
	"net/http"

	"github.com/docverify/docverify/internal/auth"
	stripeclient "github.com/docverify/docverify/internal/stripe"
)

// Server sells verification credits through Stripe Checkout. When billing is
// disabled (BILLING_ENABLED=false) every endpoint answers 503 and
// verifications are free.
type Server struct {
	db      *sql.DB
	stripe  *stripeclient.Client
	enabled bool
}

// NewServer builds a billing server. stripe may be nil when unconfigured.
func NewServer(db *sql.DB, stripe *stripeclient.Client, enabled bool) *Server {
	return &Server{db: db, stripe: stripe, enabled: enabled}
}

// billingUnavailable writes the 503 for disabled or unconfigured billing.
// Returns true when the caller should stop.
func (s *Server) billingUnavailable(w http.ResponseWriter) bool {
	if !s.enabled {
		auth.WriteError(w, http.StatusServiceUnavailable, "billing_disabled", "billing is not enabled on this deployment")
		return true
	}
	return false
}

// stripeRequired extends billingUnavailable with the Stripe configuration
// check for endpoints that reach the Stripe API.
func (s *Server) stripeRequired(w http.ResponseWriter) bool {
	if s.billingUnavailable(w) {
		return true
	}
	if s.stripe == nil {
		auth.WriteError(w, http.StatusServiceUnavailable, "stripe_not_configured", "payment processing is not configured")
		return true
	}
	return false
}
