// handlers_users.go — Admin user management.
package admin

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/metrics"
	"github.com/docverify/docverify/internal/validate"
	"github.com/docverify/docverify/pkg/audit"
)

// creditDeltaCap bounds a single admin credit grant or deduction.
const creditDeltaCap = 1000

type adminUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	EmailVerified bool      `json:"email_verified"`
	Credits       int       `json:"credits"`
	Documents     int       `json:"documents"`
	Verifications int       `json:"verifications"`
	CreatedAt     time.Time `json:"created_at"`
}

// handleUsers lists users with balances and verification counts.
// GET /admin/users?status=&search=&limit=&offset=
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	limit, offset := pagination(r, 50, 200)

	query := `
		SELECT u.id, u.email, u.display_name, u.role, u.status, u.email_verified,
		       u.credits, u.created_at,
		       (SELECT COUNT(*) FROM documents d WHERE d.user_id = u.id),
		       (SELECT COUNT(*) FROM verifications v WHERE v.user_id = u.id)
		FROM users u
		WHERE u.status <> 'deleted'`
	args := []interface{}{}

	if status := r.URL.Query().Get("status"); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND u.status = $%d", len(args))
	}
	if search := r.URL.Query().Get("search"); search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND u.email ILIKE $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to list users")
		return
	}
	defer rows.Close()

	users := []adminUser{}
	for rows.Next() {
		var u adminUser
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Status, &u.EmailVerified,
			&u.Credits, &u.CreatedAt, &u.Documents, &u.Verifications); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to read users")
			return
		}
		users = append(users, u)
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

type patchUserRequest struct {
	Status      *string `json:"status"`
	CreditDelta *int    `json:"credit_delta"`
}

// handleUserByID applies admin changes to one user.
// PATCH /admin/users/{id} — {"status": "suspended"} and/or {"credit_delta": 25}
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "PATCH required")
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	if err := validate.IsUUID("id", userID); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_id", "user id must be a UUID")
		return
	}

	actor := adminFromCtx(r.Context())
	if actor.UserID == userID {
		auth.WriteError(w, http.StatusBadRequest, "self_modification", "admins cannot suspend or adjust themselves")
		return
	}

	var req patchUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if req.Status == nil && req.CreditDelta == nil {
		auth.WriteError(w, http.StatusBadRequest, "empty_patch", "provide status and/or credit_delta")
		return
	}
	if req.Status != nil && *req.Status != "active" && *req.Status != "suspended" {
		auth.WriteError(w, http.StatusBadRequest, "invalid_status", "status must be active or suspended")
		return
	}
	if req.CreditDelta != nil && (*req.CreditDelta > creditDeltaCap || *req.CreditDelta < -creditDeltaCap) {
		auth.WriteError(w, http.StatusBadRequest, "delta_too_large",
			fmt.Sprintf("credit_delta must be within ±%d", creditDeltaCap))
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to update user")
		return
	}
	defer tx.Rollback()

	var current adminUser
	err = tx.QueryRowContext(r.Context(), `
		SELECT id, email, status, credits FROM users WHERE id = $1 AND status <> 'deleted'
		FOR UPDATE
	`, userID).Scan(&current.ID, &current.Email, &current.Status, &current.Credits)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load user")
		return
	}

	details := map[string]interface{}{}
	if req.Status != nil && *req.Status != current.Status {
		if _, err := tx.ExecContext(r.Context(), `
			UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2
		`, *req.Status, userID); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to update status")
			return
		}
		details["status"] = map[string]string{"from": current.Status, "to": *req.Status}
	}
	if req.CreditDelta != nil && *req.CreditDelta != 0 {
		res, err := tx.ExecContext(r.Context(), `
			UPDATE users SET credits = credits + $1, updated_at = NOW()
			WHERE id = $2 AND credits + $1 >= 0
		`, *req.CreditDelta, userID)
		if err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to adjust credits")
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			auth.WriteError(w, http.StatusBadRequest, "insufficient_credits", "deduction would take the balance below zero")
			return
		}
		details["credit_delta"] = *req.CreditDelta
	}

	if err := tx.Commit(); err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to update user")
		return
	}

	if req.CreditDelta != nil && *req.CreditDelta > 0 {
		metrics.CreditsGranted.WithLabelValues("admin_grant").Add(float64(*req.CreditDelta))
	}
	_ = audit.LogActionWithRequest(r, s.db, "admin", actor.UserID, "admin.user_update", "user", userID, details)

	var updated adminUser
	s.db.QueryRowContext(r.Context(), `
		SELECT id, email, display_name, role, status, email_verified, credits, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&updated.ID, &updated.Email, &updated.DisplayName, &updated.Role,
		&updated.Status, &updated.EmailVerified, &updated.Credits, &updated.CreatedAt)
	auth.WriteJSON(w, http.StatusOK, updated)
}

// pagination reads limit/offset query params with bounds.
func pagination(r *http.Request, def, max int) (limit, offset int) {
	limit = def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
