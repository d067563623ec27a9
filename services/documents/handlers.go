// handlers.go — Document upload, listing, retrieval and deletion.
package documents

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docverify/docverify/internal/auth"
	"github.com/docverify/docverify/internal/metrics"
	"github.com/docverify/docverify/internal/validate"
	"github.com/docverify/docverify/pkg/audit"
)

// maxUploadBytes is the hard cap on uploaded file size (10 MiB).
const maxUploadBytes = 10 << 20

type documentResponse struct {
	ID          string     `json:"id"`
	DocType     string     `json:"doc_type"`
	FileName    string     `json:"file_name"`
	MIMEType    string     `json:"mime_type"`
	SizeBytes   int64      `json:"size_bytes"`
	SHA256      string     `json:"sha256"`
	StorageURL  *string    `json:"storage_url"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DuplicateOf *string    `json:"duplicate_of,omitempty"`
	LastVerdict *string    `json:"last_verdict,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// handleDocuments routes the /documents collection endpoint.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.uploadDocument(w, r)
	case http.MethodGet:
		s.listDocuments(w, r)
	default:
		auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or POST required")
	}
}

// handleDocumentByID routes /documents/{id} and its verification subresources.
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if err := validate.IsUUID("id", id); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.getDocument(w, r, id)
		case http.MethodDelete:
			s.deleteDocument(w, r, id)
		default:
			auth.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or DELETE required")
		}
	case "verify":
		if s.verifyFn == nil {
			auth.WriteError(w, http.StatusNotFound, "not_found", "unknown route")
			return
		}
		s.verifyFn(w, r, id)
	case "verifications":
		if s.historyFn == nil {
			auth.WriteError(w, http.StatusNotFound, "not_found", "unknown route")
			return
		}
		s.historyFn(w, r, id)
	default:
		auth.WriteError(w, http.StatusNotFound, "not_found", "unknown route")
	}
}

// uploadDocument accepts a multipart upload and stores bytes + metadata.
// POST /documents — field "file" plus optional "doc_type".
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}
	userID := claims.Subject

	if allowed, retryAfter := s.limiter.CheckUpload(r.Context(), userID); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		auth.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many uploads, slow down")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			auth.WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file must be under 10 MiB")
			return
		}
		auth.WriteError(w, http.StatusBadRequest, "invalid_multipart", "multipart form required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		auth.WriteError(w, http.StatusBadRequest, "missing_file", "file required (field: file)")
		return
	}
	defer file.Close()

	docType := r.FormValue("doc_type")
	if docType == "" {
		docType = "other"
	}
	if err := validate.IsDocType("doc_type", docType); err != nil {
		auth.WriteError(w, http.StatusBadRequest, "invalid_doc_type", err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			auth.WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file must be under 10 MiB")
			return
		}
		auth.WriteError(w, http.StatusInternalServerError, "read_error", "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		auth.WriteError(w, http.StatusBadRequest, "empty_file", "uploaded file is empty")
		return
	}
	if int64(len(data)) > maxUploadBytes {
		auth.WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file must be under 10 MiB")
		return
	}

	sniffed := sniffContentType(data)
	if sniffed == "" {
		auth.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
			"file must be JPEG, PNG, WebP or PDF")
		return
	}
	declared := header.Header.Get("Content-Type")
	if declared != "" && declared != "application/octet-stream" && declared != sniffed {
		auth.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
			"declared content type does not match file contents")
		return
	}

	sum := sha256.Sum256(data)
	shaHex := hex.EncodeToString(sum[:])

	// Duplicate content is allowed; the earlier document is surfaced so the
	// client can decide whether to re-verify or reuse.
	var duplicateOf *string
	var dupID string
	err = s.db.QueryRowContext(r.Context(), `
		SELECT id FROM documents
		WHERE user_id = $1 AND sha256 = $2
		ORDER BY created_at ASC LIMIT 1
	`, userID, shaHex).Scan(&dupID)
	if err == nil {
		duplicateOf = &dupID
	} else if !errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to check for duplicates")
		return
	}

	fileName := header.Filename
	if len(fileName) > 255 {
		fileName = fileName[:255]
	}

	var docID string
	var createdAt time.Time
	err = s.db.QueryRowContext(r.Context(), `
		INSERT INTO documents (user_id, doc_type, file_name, mime_type, size_bytes, sha256)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, userID, docType, fileName, sniffed, len(data), shaHex).Scan(&docID, &createdAt)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to store document metadata")
		return
	}

	// Object keys are derived from server-generated UUIDs only; nothing
	// client-controlled ends up in the storage path.
	objectKey := fmt.Sprintf("documents/%s/%s%s", userID, docID, extensionFor(sniffed))

	var storageURL *string
	if s.r2 != nil {
		if url, uploadErr := s.r2.PutObject(s.bucket, objectKey, data, sniffed); uploadErr != nil {
			log.Printf("WARNING: object storage upload failed for document %s: %v", docID, uploadErr)
		} else {
			storageURL = &url
		}
	} else {
		log.Printf("WARNING: object storage not configured — document %s has no stored object", docID)
	}
	if _, err := s.db.ExecContext(r.Context(), `
		UPDATE documents SET storage_key = $1, storage_url = $2, updated_at = NOW() WHERE id = $3
	`, objectKey, storageURL, docID); err != nil {
		log.Printf("WARNING: failed to record storage location for document %s: %v", docID, err)
	}

	s.cache.Put(docID, data, sniffed)

	metrics.Uploads.WithLabelValues(docType).Inc()
	_ = audit.LogActionWithRequest(r, s.db, "user", userID, "document.upload", "document", docID,
		map[string]interface{}{"doc_type": docType, "size_bytes": len(data), "mime_type": sniffed})

	auth.WriteJSON(w, http.StatusCreated, documentResponse{
		ID:          docID,
		DocType:     docType,
		FileName:    fileName,
		MIMEType:    sniffed,
		SizeBytes:   int64(len(data)),
		SHA256:      shaHex,
		StorageURL:  storageURL,
		Status:      "uploaded",
		CreatedAt:   createdAt,
		DuplicateOf: duplicateOf,
	})
}

// listDocuments returns the caller's documents, newest first.
// GET /documents?status=&doc_type=&limit=&offset=
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}
	userID := claims.Subject

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	query := `
		SELECT d.id, d.doc_type, d.file_name, d.mime_type, d.size_bytes, d.sha256,
		       d.storage_url, d.status, d.created_at
		FROM documents d
		WHERE d.user_id = $1`
	args := []interface{}{userID}

	if status := r.URL.Query().Get("status"); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND d.status = $%d", len(args))
	}
	if docType := r.URL.Query().Get("doc_type"); docType != "" {
		args = append(args, docType)
		query += fmt.Sprintf(" AND d.doc_type = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY d.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to list documents")
		return
	}
	defer rows.Close()

	docs := []documentResponse{}
	for rows.Next() {
		var d documentResponse
		if err := rows.Scan(&d.ID, &d.DocType, &d.FileName, &d.MIMEType, &d.SizeBytes,
			&d.SHA256, &d.StorageURL, &d.Status, &d.CreatedAt); err != nil {
			auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to read documents")
			return
		}
		docs = append(docs, d)
	}

	auth.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"limit":     limit,
		"offset":    offset,
	})
}

// getDocument returns one document with its latest verification summary.
// GET /documents/{id} — owner or admin only.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request, docID string) {
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}

	var d documentResponse
	var ownerID string
	err = s.db.QueryRowContext(r.Context(), `
		SELECT id, user_id, doc_type, file_name, mime_type, size_bytes, sha256,
		       storage_url, status, created_at
		FROM documents WHERE id = $1
	`, docID).Scan(&d.ID, &ownerID, &d.DocType, &d.FileName, &d.MIMEType, &d.SizeBytes,
		&d.SHA256, &d.StorageURL, &d.Status, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load document")
		return
	}

	if ownerID != claims.Subject && claims.Role != "admin" {
		// Same response as a missing document; ids must not be probeable.
		auth.WriteError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}

	var verdict sql.NullString
	var checked sql.NullTime
	err = s.db.QueryRowContext(r.Context(), `
		SELECT verdict, completed_at FROM verifications
		WHERE document_id = $1 AND status = 'done'
		ORDER BY completed_at DESC LIMIT 1
	`, docID).Scan(&verdict, &checked)
	if err == nil {
		if verdict.Valid {
			d.LastVerdict = &verdict.String
		}
		if checked.Valid {
			d.LastChecked = &checked.Time
		}
	}

	auth.WriteJSON(w, http.StatusOK, d)
}

// deleteDocument removes a document, its verifications and the stored object.
// DELETE /documents/{id} — owner only.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, docID string) {
	claims, err := auth.ValidateJWT(r)
	if err != nil {
		auth.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid JWT required")
		return
	}
	userID := claims.Subject

	var storageKey string
	err = s.db.QueryRowContext(r.Context(), `
		SELECT storage_key FROM documents WHERE id = $1 AND user_id = $2
	`, docID, userID).Scan(&storageKey)
	if errors.Is(err, sql.ErrNoRows) {
		auth.WriteError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to load document")
		return
	}

	// Verifications cascade via the FK.
	if _, err := s.db.ExecContext(r.Context(), `
		DELETE FROM documents WHERE id = $1 AND user_id = $2
	`, docID, userID); err != nil {
		auth.WriteError(w, http.StatusInternalServerError, "db_error", "failed to delete document")
		return
	}

	// Object deletion is best-effort; an orphaned object is harmless and a
	// failed delete must not resurrect the metadata row.
	if s.r2 != nil && storageKey != "" {
		if err := s.r2.DeleteObject(s.bucket, storageKey); err != nil {
			log.Printf("WARNING: failed to delete stored object %s: %v", storageKey, err)
		}
	}

	s.cache.Delete(docID)
	_ = audit.LogActionWithRequest(r, s.db, "user", userID, "document.delete", "document", docID, nil)

	auth.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
