// routes.go — Route registration for the document service.
package documents

import "net/http"

// RegisterRoutes registers all document routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentByID)
}
