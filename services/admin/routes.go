package admin

import "net/http"

// RegisterRoutes mounts the admin panel. Every route passes through
// requireAdmin, which rejects non-admin callers with a uniform 403.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/users", s.requireAdmin(s.handleUsers))
	mux.HandleFunc("/admin/users/", s.requireAdmin(s.handleUserByID))
	mux.HandleFunc("/admin/verifications", s.requireAdmin(s.handleVerifications))
	mux.HandleFunc("/admin/verifications/", s.requireAdmin(s.handleVerificationReview))
	mux.HandleFunc("/admin/stats", s.requireAdmin(s.handleStats))
	mux.HandleFunc("/admin/audit", s.requireAdmin(s.handleAudit))
	mux.HandleFunc("/admin/abuse", s.requireAdmin(s.handleAbuse))
	mux.HandleFunc("/admin/abuse/", s.requireAdmin(s.handleAbuseByID))
}
