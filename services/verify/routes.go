// routes.go — Route registration for the verification service.
// The /documents/{id}/verify and /documents/{id}/verifications subresources
// are mounted through the document service's dispatcher.
package verify

import "net/http"

// RegisterRoutes registers verification routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/verifications/", s.handleVerificationByID)
}
