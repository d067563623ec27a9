// routes.go — Route registration for the billing service.
package billing

import "net/http"

// RegisterRoutes registers all billing routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/billing/packs", s.handlePacks)
	mux.HandleFunc("/billing/checkout", s.handleCheckout)
	mux.HandleFunc("/billing/webhook", s.handleWebhook)
	mux.HandleFunc("/billing/history", s.handleHistory)
}
