// handlers_abuse.go — Abuse flag review.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/pkg/audit"
)

type abuseFlag struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	UserEmail  string          `json:"user_email"`
	Reason     string          `json:"reason"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  string          `json:"created_at"`
	ResolvedAt *string         `json:"resolved_at,omitempty"`
	ResolvedBy *string         `json:"resolved_by,omitempty"`
}

// handleAbuse lists abuse flags, unresolved first.
// GET /admin/abuse?all=true includes resolved flags.
func (s *Server) handleAbuse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	limit, offset := pagination(r, 50, 200)
	where := "WHERE a.resolved_at IS NULL"
	if r.URL.Query().Get("all") == "true" {
		where = ""
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT a.id, a.user_id, u.email, a.reason, a.detail,
		       a.created_at, a.resolved_at, a.resolved_by
		FROM abuse_events a
		JOIN users u ON u.id = a.user_id
		`+where+`
		ORDER BY a.resolved_at IS NULL DESC, a.created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to query abuse flags")
		return
	}
	defer rows.Close()

	flags := []abuseFlag{}
	for rows.Next() {
		var f abuseFlag
		var detail []byte
		if err := rows.Scan(&f.ID, &f.UserID, &f.UserEmail, &f.Reason, &detail,
			&f.CreatedAt, &f.ResolvedAt, &f.ResolvedBy); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to scan abuse flag")
			return
		}
		if len(detail) > 0 {
			f.Detail = json.RawMessage(detail)
		}
		flags = append(flags, f)
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"flags":  flags,
		"limit":  limit,
		"offset": offset,
	})
}

// handleAbuseByID resolves a flag: POST /admin/abuse/{id}/resolve.
func (s *Server) handleAbuseByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/abuse/")
	id, sub, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(id); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_id", "malformed flag id")
		return
	}
	if sub != "resolve" || r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusNotFound, "not_found", "unknown endpoint")
		return
	}

	actor := adminFromCtx(r.Context())

	res, err := s.db.ExecContext(r.Context(), `
		UPDATE abuse_events
		SET resolved_at = NOW(), resolved_by = $1
		WHERE id = $2 AND resolved_at IS NULL`,
		actor.UserID, id,
	)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to resolve flag")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		auth.WriteError(w, http.StatusNotFound, "not_found", "flag not found or already resolved")
		return
	}

	_ = audit.LogActionWithRequest(r, s.db, "admin", actor.UserID, "admin.abuse_resolve", "abuse_event", id, nil)

	auth.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}
