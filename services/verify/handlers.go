// handlers.go — Verification endpoints.
package verify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/metrics"
	"github.com/docverify/docverify/internal/validate"
	"github.com/docverify/docverify/pkg/abuse"
	"github.com/docverify/docverify/pkg/telemetry"
)

// syncSizeLimit is the document size below which verification runs in the
// request (2 MiB). Larger documents return 202 and run in the background.
const syncSizeLimit = 2 << 20

type verificationResponse struct {
	ID          string          `json:"id"`
	DocumentID  string          `json:"document_id"`
	Status      string          `json:"status"`
	Verdict     *string         `json:"verdict"`
	Confidence  *float64        `json:"confidence"`
	Source      *string         `json:"source"`
	Flags       []string        `json:"flags"`
	OCRExcerpt  *string         `json:"ocr_excerpt,omitempty"`
	ModelReply  *string         `json:"model_reply,omitempty"`
	ModelModel  *string         `json:"model_model,omitempty"`
	Inspection  json.RawMessage `json:"inspection,omitempty"`
	ErrorDetail *string         `json:"error_detail,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

// HandleVerify starts a verification for a document.
// POST /documents/{id}/verify
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request, docID string) {
	if r.Method != http.MethodPost {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}
	userID := claims.Subject

	if allowed, retryAfter := s.limiter.CheckVerification(r.Context(), userID); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		auth.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many verifications, slow down")
		return
	}

	var docType, mimeType, storageKey string
	var sizeBytes int64
	err = s.db.QueryRowContext(r.Context(), `
		SELECT doc_type, mime_type, storage_key, size_bytes
		FROM documents WHERE id = $1 AND user_id = $2
	`, docID, userID).Scan(&docType, &mimeType, &storageKey, &sizeBytes)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load document")
		return
	}

	// Debit and insert commit together: either the user pays and a
	// verification exists, or neither happened.
	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to start verification")
		return
	}
	defer tx.Rollback()

	if s.billingEnabled {
		res, err := tx.ExecContext(r.Context(), `
			UPDATE users SET credits = credits - 1, updated_at = NOW()
			WHERE id = $1 AND credits >= 1
		`, userID)
		if err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to debit credit")
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			auth.WriteError(w, http.StatusPaymentRequired, "payment_required", "no verification credits left")
			return
		}
	}

	var verificationID string
	err = tx.QueryRowContext(r.Context(), `
		INSERT INTO verifications (document_id, user_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id
	`, docID, userID).Scan(&verificationID)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to create verification")
		return
	}
	if err := tx.Commit(); err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to start verification")
		return
	}

	job := verificationJob{
		VerificationID: verificationID,
		DocumentID:     docID,
		UserID:         userID,
		DocType:        docType,
		MIMEType:       mimeType,
		StorageKey:     storageKey,
	}

	if sizeBytes < syncSizeLimit {
		s.execute(r.Context(), job)
		s.writeVerification(r.Context(), w, verificationID, http.StatusOK)
		return
	}

	go s.execute(context.Background(), job)
	auth.WriteJSON(w, http.StatusAccepted, map[string]string{
		"verification_id": verificationID,
		"status":          "pending",
	})
}

// HandleHistory lists verifications for a document, newest first.
// GET /documents/{id}/verifications
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request, docID string) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}

	var ownerID string
	err = s.db.QueryRowContext(r.Context(), `SELECT user_id FROM documents WHERE id = $1`, docID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load document")
		return
	}
	if ownerID != claims.Subject && claims.Role != "admin" {
		auth.WriteError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, document_id, status, verdict, confidence, source, flags,
		       error_detail, created_at, completed_at
		FROM verifications
		WHERE document_id = $1
		ORDER BY created_at DESC
	`, docID)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to list verifications")
		return
	}
	defer rows.Close()

	list := []verificationResponse{}
	for rows.Next() {
		var v verificationResponse
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Status, &v.Verdict, &v.Confidence,
			&v.Source, pq.Array(&v.Flags), &v.ErrorDetail, &v.CreatedAt, &v.CompletedAt); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to read verifications")
			return
		}
		list = append(list, v)
	}
	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{"verifications": list})
}

// handleVerificationByID returns one verification record.
// GET /verifications/{id} — owner or admin.
func (s *Server) handleVerificationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/verifications/")
	if err := validate.IsUUID("id", id); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_id", "verification id must be a UUID")
		return
	}
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}

	var ownerID string
	err = s.db.QueryRowContext(r.Context(), `SELECT user_id FROM verifications WHERE id = $1`, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "verification not found")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load verification")
		return
	}
	if ownerID != claims.Subject && claims.Role != "admin" {
		auth.WriteError(w, http.StatusNotFound, "not_found", "verification not found")
		return
	}

	s.writeVerification(r.Context(), w, id, http.StatusOK)
}

// writeVerification loads the full record and writes it as JSON.
func (s *Server) writeVerification(ctx context.Context, w http.ResponseWriter, id string, status int) {
	var v verificationResponse
	var inspection []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, status, verdict, confidence, source, flags,
		       ocr_excerpt, model_reply, model_model, inspection, error_detail, created_at, completed_at
		FROM verifications WHERE id = $1
	`, id).Scan(&v.ID, &v.DocumentID, &v.Status, &v.Verdict, &v.Confidence, &v.Source,
		pq.Array(&v.Flags), &v.OCRExcerpt, &v.ModelReply, &v.ModelModel, &inspection, &v.ErrorDetail,
		&v.CreatedAt, &v.CompletedAt)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load verification")
		return
	}
	v.Inspection = inspection
	auth.WriteJSON(w, status, v)
}

// verificationJob carries everything execute needs to run one verification.
type verificationJob struct {
	VerificationID string
	DocumentID     string
	UserID         string
	DocType        string
	MIMEType       string
	StorageKey     string
}

// execute runs one verification end to end: mark running, fetch bytes, run
// the pipeline, persist the outcome and mirror the document status.
func (s *Server) execute(ctx context.Context, job verificationJob) {
	log := s.log.WithFields(map[string]interface{}{
		"verification_id": job.VerificationID,
		"document_id":     job.DocumentID,
	})

	res, err := s.db.ExecContext(ctx, `
		UPDATE verifications
		SET status = 'running', attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, job.VerificationID)
	if err != nil {
		log.WithError(err).Error("failed to mark verification running")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Someone else picked it up, or it is already finished.
		return
	}
	s.setDocumentStatus(ctx, job.DocumentID, "processing")

	data, mimeType, err := s.fetchBytes(job)
	if err != nil {
		log.WithError(err).Error("document bytes unavailable")
		s.fail(ctx, job, "document bytes unavailable")
		return
	}
	if mimeType == "" {
		mimeType = job.MIMEType
	}

	result, err := s.runPipeline(ctx, job.DocType, data, mimeType)
	if err != nil {
		log.WithError(err).WithField("flags", result.Flags).Warn("pipeline aborted")
		s.fail(ctx, job, "image data could not be decoded")
		return
	}

	start := time.Now()
	inspJSON, err := json.Marshal(result.Inspection)
	if err != nil {
		inspJSON = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE verifications
		SET status = 'done', verdict = $1, confidence = $2, source = $3, flags = $4,
		    ocr_excerpt = $5, model_reply = $6, model_model = $7, inspection = $8,
		    completed_at = NOW(), updated_at = NOW()
		WHERE id = $9
	`, result.Verdict, result.Confidence, result.Source, pq.Array(result.Flags),
		result.OCRExcerpt, result.ModelReply, toNullString(result.ModelName), inspJSON, job.VerificationID)
	if err != nil {
		log.WithError(err).Error("failed to persist verification result")
		s.fail(ctx, job, "failed to persist result")
		return
	}
	metrics.StageDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	metrics.Verifications.WithLabelValues(result.Verdict, result.Source).Inc()

	switch result.Verdict {
	case "genuine":
		s.setDocumentStatus(ctx, job.DocumentID, "verified")
	default:
		s.setDocumentStatus(ctx, job.DocumentID, "rejected")
	}

	if detected, event := abuse.RecordVerdict(job.UserID, result.Verdict); detected {
		s.recordAbuseEvent(ctx, event)
	}

	log.WithFields(map[string]interface{}{
		"verdict":    result.Verdict,
		"confidence": result.Confidence,
		"source":     result.Source,
	}).Info("verification completed")
}

// toNullString maps "" to SQL NULL.
func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// fetchBytes retrieves the document payload, preferring the in-memory cache
// over object storage.
func (s *Server) fetchBytes(job verificationJob) ([]byte, string, error) {
	if data, mime, ok := s.cache.Get(job.DocumentID); ok {
		return data, mime, nil
	}
	if s.r2 != nil && job.StorageKey != "" {
		data, err := s.r2.GetObject(s.bucket, job.StorageKey)
		if err != nil {
			return nil, "", fmt.Errorf("fetch from object storage: %w", err)
		}
		return data, "", nil
	}
	return nil, "", errors.New("no cached payload and object storage not configured")
}

// fail marks the verification failed, refunds the credit and mirrors the
// document status.
func (s *Server) fail(ctx context.Context, job verificationJob, detail string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verifications
		SET status = 'failed', error_detail = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`, detail, job.VerificationID)
	if err != nil {
		s.log.WithError(err).Error("failed to mark verification failed")
	}
	s.refundCredit(ctx, job.UserID)
	s.setDocumentStatus(ctx, job.DocumentID, "failed")
	telemetry.CaptureError(errors.New("verification failed: "+detail), map[string]string{
		"user_id":     job.UserID,
		"document_id": job.DocumentID,
	})
}

// refundCredit gives back the debited credit after a failed run.
func (s *Server) refundCredit(ctx context.Context, userID string) {
	if !s.billingEnabled {
		return
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE users SET credits = credits + 1, updated_at = NOW() WHERE id = $1
	`, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("failed to refund credit")
	}
}

func (s *Server) setDocumentStatus(ctx context.Context, docID, status string) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, docID); err != nil {
		s.log.WithError(err).WithField("document_id", docID).Error("failed to update document status")
	}
}

// recordAbuseEvent persists a detector hit for admin review.
func (s *Server) recordAbuseEvent(ctx context.Context, event *abuse.Event) {
	detail, err := json.Marshal(event.Details)
	if err != nil {
		detail = []byte("{}")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO abuse_events (user_id, reason, detail)
		VALUES ($1, $2, $3)
	`, event.UserID, event.Type, detail); err != nil {
		s.log.WithError(err).WithField("user_id", event.UserID).Error("failed to record abuse event")
	}
	s.log.WithFields(map[string]interface{}{
		"user_id": event.UserID,
		"reason":  event.Type,
	}).Warn("abuse pattern detected")
}
