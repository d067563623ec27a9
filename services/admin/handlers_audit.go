// handlers_audit.go — Audit trail browsing.
package admin

import (
	"net/http"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/pkg/audit"
)

// handleAudit returns filterable audit log entries.
// GET /admin/audit?actor_id=&action=&resource_type=&resource_id=&since=&limit=&offset=
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	limit, offset := pagination(r, 50, 200)
	q := r.URL.Query()
	filters := map[string]string{
		"actor_id":      q.Get("actor_id"),
		"action":        q.Get("action"),
		"resource_type": q.Get("resource_type"),
		"resource_id":   q.Get("resource_id"),
		"date_from":     q.Get("since"),
		"date_to":       q.Get("until"),
	}

	entries, total, err := audit.QueryAuditLog(r.Context(), s.db, filters, limit, offset)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to query audit log")
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
