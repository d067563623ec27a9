// handlers_verifications.go — Review queue and verdict overrides.
package admin

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/validate"
	"github.com/docverify/docverify/pkg/audit"
)

type reviewItem struct {
	ID          string          `json:"id"`
	DocumentID  string          `json:"document_id"`
	UserID      string          `json:"user_id"`
	UserEmail   string          `json:"user_email"`
	DocType     string          `json:"doc_type"`
	Status      string          `json:"status"`
	Verdict     *string         `json:"verdict"`
	Confidence  *float64        `json:"confidence"`
	Source      *string         `json:"source"`
	Flags       []string        `json:"flags"`
	OCRExcerpt  *string         `json:"ocr_excerpt"`
	ModelReply  *string         `json:"model_reply"`
	ModelModel  *string         `json:"model_model"`
	Inspection  json.RawMessage `json:"inspection"`
	ReviewedBy  *string         `json:"reviewed_by"`
	ReviewNote  *string         `json:"review_note"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

// handleVerifications returns the review queue with full stage records.
// GET /admin/verifications?verdict=&status=&flagged=&limit=&offset=
func (s *Server) handleVerifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	limit, offset := pagination(r, 50, 200)

	query := `
		SELECT v.id, v.document_id, v.user_id, u.email, d.doc_type, v.status,
		       v.verdict, v.confidence, v.source, v.flags, v.ocr_excerpt,
		       v.model_reply, v.model_model, v.inspection, v.reviewed_by, v.review_note,
		       v.created_at, v.completed_at
		FROM verifications v
		JOIN users u ON u.id = v.user_id
		JOIN documents d ON d.id = v.document_id
		WHERE TRUE`
	args := []interface{}{}

	if verdict := r.URL.Query().Get("verdict"); verdict != "" {
		args = append(args, verdict)
		query += fmt.Sprintf(" AND v.verdict = $%d", len(args))
	}
	if status := r.URL.Query().Get("status"); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND v.status = $%d", len(args))
	}
	if r.URL.Query().Get("flagged") == "true" {
		query += " AND array_length(v.flags, 1) > 0"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY v.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to list verifications")
		return
	}
	defer rows.Close()

	items := []reviewItem{}
	for rows.Next() {
		var item reviewItem
		var inspection []byte
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.UserID, &item.UserEmail,
			&item.DocType, &item.Status, &item.Verdict, &item.Confidence, &item.Source,
			pq.Array(&item.Flags), &item.OCRExcerpt, &item.ModelReply, &item.ModelModel, &inspection,
			&item.ReviewedBy, &item.ReviewNote, &item.CreatedAt, &item.CompletedAt); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to read verifications")
			return
		}
		item.Inspection = inspection
		items = append(items, item)
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"verifications": items,
		"limit":         limit,
		"offset":        offset,
	})
}

type reviewRequest struct {
	Verdict string `json:"verdict"`
	Note    string `json:"note"`
}

// handleVerificationReview overrides a verdict after human review.
// POST /admin/verifications/{id}/review — {"verdict": "...", "note": "..."}
func (s *Server) handleVerificationReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/admin/verifications/")
	id, action, _ := strings.Cut(rest, "/")
	if action != "review" {
		auth.WriteError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}
	if err := validate.IsUUID("id", id); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_id", "verification id must be a UUID")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if err := validate.IsVerdict("verdict", req.Verdict); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_verdict", err.Error())
		return
	}
	req.Note = strings.TrimSpace(req.Note)
	if req.Note == "" {
		auth.WriteError(w, http.StatusBadRequest, "note_required", "a review note is required for overrides")
		return
	}

	actor := adminFromCtx(r.Context())

	var docID string
	var previous sql.NullString
	err := s.db.QueryRowContext(r.Context(), `
		SELECT document_id, verdict FROM verifications WHERE id = $1 AND status = 'done'
	`, id).Scan(&docID, &previous)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "no completed verification with that id")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load verification")
		return
	}

	if _, err := s.db.ExecContext(r.Context(), `
		UPDATE verifications
		SET verdict = $1, reviewed_by = $2, review_note = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'done'
	`, req.Verdict, actor.UserID, req.Note, id); err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to record review")
		return
	}

	// Document status follows the overridden verdict.
	docStatus := "rejected"
	if req.Verdict == "genuine" {
		docStatus = "verified"
	}
	if _, err := s.db.ExecContext(r.Context(), `
		UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2
	`, docStatus, docID); err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to update document status")
		return
	}

	_ = audit.LogActionWithRequest(r, s.db, "admin", actor.UserID, "admin.verification_review",
		"verification", id, map[string]interface{}{
			"previous_verdict": previous.String,
			"new_verdict":      req.Verdict,
			"note":             req.Note,
		})

	auth.WriteJSON(w, http.StatusOK, map[string]string{
		"id":      id,
		"verdict": req.Verdict,
		"status":  "reviewed",
	})
}
